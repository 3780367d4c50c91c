package email

import (
	"context"

	"github.com/quillcast/quillmail/internal/domain"
)

// Repository is the Email persistence contract. Get methods return
// (nil, nil) when no row exists.
type Repository interface {
	Insert(ctx context.Context, email *domain.Email) error
	Get(ctx context.Context, id string) (*domain.Email, error)
	GetByPostID(ctx context.Context, postID string) (*domain.Email, error)
	MarkPending(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
}

// PostRepository reads posts owned by the publishing collaborator.
type PostRepository interface {
	Get(ctx context.Context, id string) (*domain.Post, error)
}

// NewsletterRepository reads newsletters owned by the publishing
// collaborator.
type NewsletterRepository interface {
	Get(ctx context.Context, id string) (*domain.Newsletter, error)
}

// Scheduler queues background work. Satisfied by the jobs queue; a
// disabled queue returns (nil, nil) and the email simply stays pending.
type Scheduler interface {
	AddQueuedJob(ctx context.Context, name, method string, metadata interface{}) (*domain.Job, error)
}

// Headers are the sender-facing fields computed outside the pipeline.
type Headers struct {
	Subject string
	From    string
	ReplyTo string
}

// HeaderRenderer computes subject/from/reply-to for a send. Content
// rendering stays with the sending engine's renderer; this only covers
// the envelope captured on the Email row at creation time.
type HeaderRenderer interface {
	RenderHeaders(ctx context.Context, post *domain.Post, newsletter *domain.Newsletter) (Headers, error)
}
