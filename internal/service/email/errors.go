package email

import "errors"

var (
	// ErrPostNotFound is returned when the post id does not resolve.
	ErrPostNotFound = errors.New("email: post not found")

	// ErrNoNewsletter is returned for posts with no attached newsletter.
	ErrNoNewsletter = errors.New("email: post has no newsletter")

	// ErrNewsletterArchived rejects sends on archived newsletters so the
	// caller can surface a distinct message.
	ErrNewsletterArchived = errors.New("email: cannot send to archived newsletter")

	// ErrAlreadySent is returned when an Email already exists for the post.
	ErrAlreadySent = errors.New("email: post already has an email")

	// ErrEmailNotFound is returned by retry for an unknown email id.
	ErrEmailNotFound = errors.New("email: email not found")

	// ErrAlreadySubmitted rejects retrying an email that finished
	// submitting successfully.
	ErrAlreadySubmitted = errors.New("email: email already submitted")
)
