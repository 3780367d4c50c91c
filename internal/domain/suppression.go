package domain

import "time"

// SuppressionReason enumerates why an address was suppressed.
// Complaint outranks delivery failure: once an address has complained,
// a later bounce must not weaken the recorded reason.
type SuppressionReason string

const (
	ReasonSpam   SuppressionReason = "spam"
	ReasonFailed SuppressionReason = "failed"
)

// Severity returns the rank used by the most-severe-reason-wins merge.
func (r SuppressionReason) Severity() int {
	switch r {
	case ReasonSpam:
		return 2
	case ReasonFailed:
		return 1
	default:
		return 0
	}
}

// SuppressionEntry is a standing instruction not to send to an address.
// Absence of an entry means the address is not suppressed.
type SuppressionEntry struct {
	Email     string            `json:"email" db:"email"`
	Reason    SuppressionReason `json:"reason" db:"reason"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// SuppressionInfo is the detail half of a suppression check result.
type SuppressionInfo struct {
	Reason    SuppressionReason `json:"reason"`
	Timestamp time.Time         `json:"timestamp"`
}

// SuppressionData is the shape callers pattern-match on: Info is
// non-nil exactly when Suppressed is true.
type SuppressionData struct {
	Suppressed bool             `json:"suppressed"`
	Info       *SuppressionInfo `json:"info"`
}
