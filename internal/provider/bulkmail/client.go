// Package bulkmail is the HTTP client for the mail provider's bulk
// send API. One Submit call delivers one recipient batch; delivery
// outcome arrives later through webhooks, correlated by ProviderID.
package bulkmail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultMaxRecipients is the provider's recipients-per-call cap. The
// engine's configured batch size must not exceed it.
const DefaultMaxRecipients = 2000

// Client talks to the provider's transmissions endpoint.
type Client struct {
	apiKey        string
	baseURL       string
	httpClient    *http.Client
	maxRecipients int
}

// Config holds client construction options.
type Config struct {
	APIKey        string
	BaseURL       string
	Timeout       time.Duration
	MaxRecipients int
}

// NewClient creates a bulk mail client. Each call carries the
// configured timeout; on timeout the error classifies as transient.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRecipients <= 0 || cfg.MaxRecipients > DefaultMaxRecipients {
		cfg.MaxRecipients = DefaultMaxRecipients
	}
	return &Client{
		apiKey:        cfg.APIKey,
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		maxRecipients: cfg.MaxRecipients,
	}
}

// MaxRecipients returns the per-call recipient cap.
func (c *Client) MaxRecipients() int { return c.maxRecipients }

// Submit sends one batch. A zero-recipient submission is rejected here
// rather than at the provider; callers audit empty batches themselves.
func (c *Client) Submit(ctx context.Context, sub Submission) (*Result, error) {
	if c.apiKey == "" {
		return nil, &APIError{StatusCode: http.StatusUnauthorized, Code: "no_api_key", Message: "provider API key not configured"}
	}
	if len(sub.Recipients) == 0 {
		return nil, fmt.Errorf("bulkmail: empty submission")
	}
	if len(sub.Recipients) > c.maxRecipients {
		return nil, &APIError{
			StatusCode: http.StatusBadRequest,
			Code:       "batch_too_large",
			Message:    fmt.Sprintf("%d recipients exceeds cap %d", len(sub.Recipients), c.maxRecipients),
		}
	}

	payload, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("bulkmail: marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transmissions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("bulkmail: build request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bulkmail: submit: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bulkmail: read response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil && resp.StatusCode < 400 {
		return nil, fmt.Errorf("bulkmail: parse response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if len(parsed.Errors) > 0 {
			apiErr.Code = parsed.Errors[0].Code
			apiErr.Message = parsed.Errors[0].Message
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return nil, apiErr
	}

	return &Result{
		ProviderID: parsed.Results.ID,
		Accepted:   parsed.Results.TotalAcceptedRecips,
		Rejected:   parsed.Results.TotalRejectedRecips,
	}, nil
}
