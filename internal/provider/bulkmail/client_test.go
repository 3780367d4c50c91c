package bulkmail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSubmission(n int) Submission {
	sub := Submission{
		Content: Content{
			From:    Address{Email: "news@example.com", Name: "Example Weekly"},
			Subject: "This week",
			HTML:    "<p>hello</p>",
		},
	}
	for i := 0; i < n; i++ {
		sub.Recipients = append(sub.Recipients, BatchRecipient{
			Address: Address{Email: "reader@example.com"},
		})
	}
	return sub
}

func TestSubmit_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transmissions", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))

		var sub Submission
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sub))
		assert.Len(t, sub.Recipients, 3)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": map[string]interface{}{
				"id":                        "tx-1234",
				"total_accepted_recipients": 3,
				"total_rejected_recipients": 0,
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	res, err := c.Submit(context.Background(), testSubmission(3))
	require.NoError(t, err)
	assert.Equal(t, "tx-1234", res.ProviderID)
	assert.Equal(t, 3, res.Accepted)
}

func TestSubmit_RateLimited_ClassifiesTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"errors":[{"code":"1902","message":"rate limit exceeded"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := c.Submit(context.Background(), testSubmission(1))
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 429, apiErr.StatusCode)
	assert.Equal(t, ClassTransient, Classify(err))
}

func TestSubmit_BadRequest_ClassifiesPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":[{"code":"7001","message":"invalid template"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := c.Submit(context.Background(), testSubmission(1))
	require.Error(t, err)
	assert.Equal(t, ClassPermanent, Classify(err))
}

func TestSubmit_Timeout_ClassifiesTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := c.Submit(context.Background(), testSubmission(1))
	require.Error(t, err)
	assert.Equal(t, ClassTransient, Classify(err))
}

func TestSubmit_RejectsOversizedBatch(t *testing.T) {
	c := NewClient(Config{APIKey: "test-key", BaseURL: "http://unused", MaxRecipients: 2})
	_, err := c.Submit(context.Background(), testSubmission(3))
	require.Error(t, err)
	assert.Equal(t, ClassPermanent, Classify(err))
}

func TestClassify_UnknownError(t *testing.T) {
	assert.Equal(t, ClassUnknown, Classify(errors.New("something odd")))
}
