package sending

import "errors"

var (
	// ErrEmailNotFound is returned when the engine is asked to send an
	// email id that does not exist.
	ErrEmailNotFound = errors.New("sending: email not found")
)
