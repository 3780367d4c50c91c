package sending

import (
	"context"

	"github.com/quillcast/quillmail/internal/domain"
	"github.com/quillcast/quillmail/internal/provider/bulkmail"
)

// EmailRepository persists Email state transitions for the engine.
type EmailRepository interface {
	Get(ctx context.Context, id string) (*domain.Email, error)
	MarkSubmitting(ctx context.Context, id string) error
	MarkSubmitted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	UpdateEmailCount(ctx context.Context, id string, count int) error
}

// BatchRepository persists batches and their frozen recipient
// membership. Membership is written once at batch creation and never
// mutated; retries re-read the same rows.
type BatchRepository interface {
	ListForEmail(ctx context.Context, emailID string) ([]domain.EmailBatch, error)
	Create(ctx context.Context, batch *domain.EmailBatch, recipients []domain.Recipient) error
	Recipients(ctx context.Context, batchID string) ([]domain.Recipient, error)
	MarkSubmitting(ctx context.Context, id string) error
	MarkSubmitted(ctx context.Context, id, providerID string, attempts int) error
	MarkFailed(ctx context.Context, id, errMsg string, attempts int) error
}

// MemberRepository resolves a recipient filter to concrete members in
// a stable order (by member id), so batch partitioning is
// deterministic and resumable after a crash.
type MemberRepository interface {
	ListForFilter(ctx context.Context, filter string) ([]domain.Member, error)
}

// SuppressionChecker is the slice of the suppression service the
// engine consults before every submission.
type SuppressionChecker interface {
	GetBulkSuppressionData(ctx context.Context, emails []string) ([]domain.SuppressionData, error)
}

// Sender submits one recipient batch to the provider.
type Sender interface {
	Submit(ctx context.Context, sub bulkmail.Submission) (*bulkmail.Result, error)
}

// Renderer is the external collaborator that turns a post into email
// content. The pipeline never renders HTML itself.
type Renderer interface {
	Render(ctx context.Context, postID string) (Content, error)
}

// Content is the rendered template for one email.
type Content struct {
	HTML string
	Text string
}
