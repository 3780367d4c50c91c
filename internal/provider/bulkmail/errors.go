package bulkmail

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorClass is the closed classification consumed by the retry policy.
// Unknown errors are retried like transient ones but still count
// against the attempt cap, so an unclassifiable failure can never loop
// forever.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassTransient
	ClassPermanent
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API error %d: %s %s", e.StatusCode, e.Code, e.Message)
}

// Classify maps a send error to its retry class. Timeouts and
// rate-limit/server statuses are transient; other HTTP statuses
// (malformed payload, suspended account) are permanent; anything else
// is unknown.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return ClassTransient
		case apiErr.StatusCode >= 500:
			return ClassTransient
		case apiErr.StatusCode >= 400:
			return ClassPermanent
		}
	}

	return ClassUnknown
}
