package email

import (
	"context"
	"fmt"

	"github.com/quillcast/quillmail/internal/domain"
)

// DefaultHeaders derives the envelope from the newsletter's sender
// settings. Sites with custom sender logic supply their own
// HeaderRenderer instead.
type DefaultHeaders struct {
	// FallbackFrom is used when the newsletter has no sender address.
	FallbackFrom string
}

func (d DefaultHeaders) RenderHeaders(_ context.Context, post *domain.Post, nl *domain.Newsletter) (Headers, error) {
	from := nl.SenderEmail
	if from == "" {
		from = d.FallbackFrom
	}
	if from == "" {
		return Headers{}, fmt.Errorf("email: no sender address for newsletter %s", nl.ID)
	}
	if nl.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", nl.SenderName, from)
	}
	return Headers{
		Subject: post.Title,
		From:    from,
		ReplyTo: nl.ReplyTo,
	}, nil
}
