package email

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quillcast/quillmail/internal/domain"
	"github.com/quillcast/quillmail/internal/pkg/logger"
)

// MethodBatchSend is the job queue method name the sending engine
// registers under.
const MethodBatchSend = "batch-send"

// SendJobMetadata is the payload of a batch-send job.
type SendJobMetadata struct {
	EmailID string `json:"email_id"`
}

// DefaultRecipientFilter targets all active members when a post does
// not carry its own filter.
const DefaultRecipientFilter = "status:active"

// Service orchestrates email creation and retry.
type Service struct {
	emails      Repository
	posts       PostRepository
	newsletters NewsletterRepository
	renderer    HeaderRenderer
	scheduler   Scheduler
}

// NewService creates the orchestrator.
func NewService(emails Repository, posts PostRepository, newsletters NewsletterRepository,
	renderer HeaderRenderer, scheduler Scheduler) *Service {
	return &Service{
		emails:      emails,
		posts:       posts,
		newsletters: newsletters,
		renderer:    renderer,
		scheduler:   scheduler,
	}
}

// CreateEmail validates the send, creates the Email row, and schedules
// delivery. Validation errors surface synchronously and create no row.
// A scheduling failure after the row exists is recorded as the email's
// failed status and the email is still returned with a nil error: the
// record must exist for later retry.
func (s *Service) CreateEmail(ctx context.Context, postID string) (*domain.Email, error) {
	post, err := s.posts.Get(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("email: load post: %w", err)
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	if post.NewsletterID == "" {
		return nil, ErrNoNewsletter
	}

	newsletter, err := s.newsletters.Get(ctx, post.NewsletterID)
	if err != nil {
		return nil, fmt.Errorf("email: load newsletter: %w", err)
	}
	if newsletter == nil {
		return nil, ErrNoNewsletter
	}
	if newsletter.Status == domain.NewsletterArchived {
		return nil, ErrNewsletterArchived
	}

	existing, err := s.emails.GetByPostID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("email: check existing: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadySent
	}

	headers, err := s.renderer.RenderHeaders(ctx, post, newsletter)
	if err != nil {
		return nil, fmt.Errorf("email: render headers: %w", err)
	}

	filter := post.RecipientFilter
	if filter == "" {
		filter = DefaultRecipientFilter
	}

	email := &domain.Email{
		ID:              uuid.New().String(),
		PostID:          post.ID,
		NewsletterID:    newsletter.ID,
		Status:          domain.EmailPending,
		Subject:         headers.Subject,
		FromAddress:     headers.From,
		ReplyTo:         headers.ReplyTo,
		RecipientFilter: filter,
		TrackOpens:      newsletter.TrackOpens,
		TrackClicks:     newsletter.TrackClicks,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.emails.Insert(ctx, email); err != nil {
		return nil, fmt.Errorf("email: insert: %w", err)
	}
	logger.Info("email created",
		"email_id", email.ID, "post_id", post.ID, "newsletter_id", newsletter.ID)

	s.schedule(ctx, email)
	return email, nil
}

// RetryEmail re-schedules delivery for an email that did not finish
// submitting. Rejects emails already submitted.
func (s *Service) RetryEmail(ctx context.Context, emailID string) (*domain.Email, error) {
	email, err := s.emails.Get(ctx, emailID)
	if err != nil {
		return nil, fmt.Errorf("email: load: %w", err)
	}
	if email == nil {
		return nil, ErrEmailNotFound
	}
	if email.IsTerminalSuccess() {
		return nil, ErrAlreadySubmitted
	}

	if err := s.emails.MarkPending(ctx, emailID); err != nil {
		return nil, fmt.Errorf("email: mark pending: %w", err)
	}
	email.Status = domain.EmailPending
	email.Error = ""

	logger.Info("email retry requested", "email_id", emailID)
	s.schedule(ctx, email)
	return email, nil
}

// GetEmail loads one email row for status polling.
func (s *Service) GetEmail(ctx context.Context, id string) (*domain.Email, error) {
	email, err := s.emails.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("email: load: %w", err)
	}
	if email == nil {
		return nil, ErrEmailNotFound
	}
	return email, nil
}

// schedule queues the batch-send job, recording any failure on the
// email row instead of propagating it.
func (s *Service) schedule(ctx context.Context, email *domain.Email) {
	_, err := s.scheduler.AddQueuedJob(ctx, "send-email-"+email.ID, MethodBatchSend,
		SendJobMetadata{EmailID: email.ID})
	if err != nil {
		logger.Error("scheduling send failed", "email_id", email.ID, "err", err.Error())
		if mErr := s.emails.MarkFailed(ctx, email.ID, err.Error()); mErr != nil {
			logger.Error("mark email failed", "email_id", email.ID, "err", mErr.Error())
		}
		email.Status = domain.EmailFailed
		email.Error = err.Error()
	}
}
