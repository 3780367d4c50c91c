package suppression

import "errors"

// Sentinel errors for the suppression service layer.
var (
	ErrEmptyEmail = errors.New("email address is required")
)
