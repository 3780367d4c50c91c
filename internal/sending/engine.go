package sending

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/quillcast/quillmail/internal/domain"
	"github.com/quillcast/quillmail/internal/linkrewrite"
	"github.com/quillcast/quillmail/internal/pkg/logger"
	"github.com/quillcast/quillmail/internal/provider/bulkmail"
)

// Config tunes batch partitioning and submission pacing.
type Config struct {
	// BatchSize is the maximum recipients per provider call.
	BatchSize int
	// Concurrency bounds how many batches are in flight at once.
	Concurrency int
	// MaxAttempts caps submissions per batch, first try included.
	MaxAttempts int
	// RatePerSecond paces provider calls across all workers.
	RatePerSecond float64
	// RetryInterval is the initial backoff delay between attempts.
	RetryInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 10
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Second
	}
}

// Engine drives the full send of one email: partition, suppress,
// submit, join. Safe for concurrent use across distinct email ids.
type Engine struct {
	emails   EmailRepository
	batches  BatchRepository
	members  MemberRepository
	supp     SuppressionChecker
	sender   Sender
	renderer Renderer
	rewriter *linkrewrite.Rewriter
	limiter  *rate.Limiter
	cfg      Config
}

// NewEngine wires the engine's collaborators together.
func NewEngine(emails EmailRepository, batches BatchRepository, members MemberRepository,
	supp SuppressionChecker, sender Sender, renderer Renderer, rewriter *linkrewrite.Rewriter, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		emails:   emails,
		batches:  batches,
		members:  members,
		supp:     supp,
		sender:   sender,
		renderer: renderer,
		rewriter: rewriter,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		cfg:      cfg,
	}
}

// SendEmail runs the send pipeline for one email to completion. It is
// the entry point for both first sends and retries: batches that
// already submitted are never re-sent, only pending and failed ones
// are (re-)attempted. An already-submitted email is a no-op.
func (e *Engine) SendEmail(ctx context.Context, emailID string) error {
	email, err := e.emails.Get(ctx, emailID)
	if err != nil {
		return fmt.Errorf("sending: load email: %w", err)
	}
	if email == nil {
		return ErrEmailNotFound
	}
	if email.IsTerminalSuccess() {
		logger.Info("email already submitted, nothing to send", "email_id", emailID)
		return nil
	}

	if err := e.emails.MarkSubmitting(ctx, emailID); err != nil {
		return fmt.Errorf("sending: mark submitting: %w", err)
	}

	batches, err := e.ensureBatches(ctx, email)
	if err != nil {
		e.failEmail(ctx, emailID, err)
		return err
	}
	if len(batches) == 0 {
		// Empty segment. Terminal success with nothing delivered.
		logger.Info("recipient segment is empty", "email_id", emailID)
		return e.emails.MarkSubmitted(ctx, emailID)
	}

	content, err := e.renderer.Render(ctx, email.PostID)
	if err != nil {
		err = fmt.Errorf("sending: render content: %w", err)
		e.failEmail(ctx, emailID, err)
		return err
	}
	if email.TrackClicks {
		content.HTML = e.rewriter.RewriteHTML(content.HTML, email.ID, email.PostID)
	}

	pending := make([]domain.EmailBatch, 0, len(batches))
	for _, b := range batches {
		if b.Status != domain.BatchSubmitted {
			pending = append(pending, b)
		}
	}
	logger.Info("submitting batches",
		"email_id", emailID, "total", len(batches), "pending", len(pending))

	var (
		mu      sync.Mutex
		lastErr error
		failed  int
	)
	work := make(chan domain.EmailBatch)
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range work {
				if err := e.submitBatch(ctx, email, batch, content); err != nil {
					mu.Lock()
					lastErr = err
					failed++
					mu.Unlock()
				}
			}
		}()
	}
	for _, b := range pending {
		work <- b
	}
	close(work)
	wg.Wait()

	// Join barrier: every batch is terminal here, so the email's own
	// terminal status can be decided.
	if failed > 0 {
		e.failEmail(ctx, emailID, lastErr)
		return fmt.Errorf("sending: %d of %d batches failed: %w", failed, len(pending), lastErr)
	}
	if err := e.emails.MarkSubmitted(ctx, emailID); err != nil {
		return fmt.Errorf("sending: mark submitted: %w", err)
	}
	logger.Info("email submitted", "email_id", emailID, "batches", len(batches))
	return nil
}

// ensureBatches loads the email's partition, creating it when absent.
// The recorded email_count says how many batches a complete partition
// has; fewer on disk means a crash interrupted an earlier run, and the
// missing tail is rebuilt from the repository's stable member order
// without touching the frozen membership of existing batches.
func (e *Engine) ensureBatches(ctx context.Context, email *domain.Email) ([]domain.EmailBatch, error) {
	batches, err := e.batches.ListForEmail(ctx, email.ID)
	if err != nil {
		return nil, fmt.Errorf("sending: list batches: %w", err)
	}

	if len(batches) == 0 && email.EmailCount == 0 {
		members, err := e.members.ListForFilter(ctx, email.RecipientFilter)
		if err != nil {
			return nil, fmt.Errorf("sending: resolve recipients: %w", err)
		}
		if err := e.emails.UpdateEmailCount(ctx, email.ID, len(members)); err != nil {
			return nil, fmt.Errorf("sending: update email count: %w", err)
		}
		created, err := e.partition(ctx, email, members, 0, 0)
		if err != nil {
			return nil, err
		}
		logger.Info("recipient segment partitioned",
			"email_id", email.ID, "members", len(members), "batches", len(created))
		return created, nil
	}

	expected := (email.EmailCount + e.cfg.BatchSize - 1) / e.cfg.BatchSize
	if len(batches) >= expected {
		return batches, nil
	}

	members, err := e.members.ListForFilter(ctx, email.RecipientFilter)
	if err != nil {
		return nil, fmt.Errorf("sending: resolve recipients: %w", err)
	}
	assigned := 0
	nextOrdinal := 0
	for _, b := range batches {
		recipients, err := e.batches.Recipients(ctx, b.ID)
		if err != nil {
			return nil, fmt.Errorf("sending: load batch %d recipients: %w", b.Ordinal, err)
		}
		assigned += len(recipients)
		if b.Ordinal >= nextOrdinal {
			nextOrdinal = b.Ordinal + 1
		}
	}
	created, err := e.partition(ctx, email, members, assigned, nextOrdinal)
	if err != nil {
		return nil, err
	}
	logger.Warn("recipient partition resumed",
		"email_id", email.ID, "existing", len(batches), "created", len(created))
	return append(batches, created...), nil
}

// partition slices members[start:] into BatchSize chunks and persists
// one batch per chunk, numbering them from ordinal.
func (e *Engine) partition(ctx context.Context, email *domain.Email, members []domain.Member, start, ordinal int) ([]domain.EmailBatch, error) {
	var batches []domain.EmailBatch
	for ; start < len(members); ordinal++ {
		end := start + e.cfg.BatchSize
		if end > len(members) {
			end = len(members)
		}

		batch := domain.EmailBatch{
			ID:        uuid.New().String(),
			EmailID:   email.ID,
			Ordinal:   ordinal,
			Status:    domain.BatchPending,
			CreatedAt: time.Now().UTC(),
		}
		recipients := make([]domain.Recipient, 0, end-start)
		for _, m := range members[start:end] {
			recipients = append(recipients, domain.Recipient{
				BatchID:    batch.ID,
				MemberID:   m.ID,
				MemberUUID: m.UUID,
				Email:      m.Email,
				Name:       m.Name,
			})
		}
		if err := e.batches.Create(ctx, &batch, recipients); err != nil {
			return nil, fmt.Errorf("sending: create batch %d: %w", ordinal, err)
		}
		batches = append(batches, batch)
		start = end
	}
	return batches, nil
}

// submitBatch sends one batch to the provider, retrying transient and
// unknown failures up to the attempt cap. Permanent failures stop
// immediately. Suppression is checked against the live list on every
// attempt, so addresses suppressed after batch creation are excluded.
func (e *Engine) submitBatch(ctx context.Context, email *domain.Email, batch domain.EmailBatch, content Content) error {
	if err := e.batches.MarkSubmitting(ctx, batch.ID); err != nil {
		return fmt.Errorf("batch %d: mark submitting: %w", batch.Ordinal, err)
	}

	recipients, err := e.batches.Recipients(ctx, batch.ID)
	if err != nil {
		e.failBatch(ctx, batch, err)
		return fmt.Errorf("batch %d: load recipients: %w", batch.Ordinal, err)
	}

	deliverable, err := e.excludeSuppressed(ctx, recipients)
	if err != nil {
		e.failBatch(ctx, batch, err)
		return fmt.Errorf("batch %d: suppression check: %w", batch.Ordinal, err)
	}
	if len(deliverable) == 0 {
		// Still a terminal success so the join barrier and audit trail
		// see the batch, just with nothing delivered.
		logger.Info("batch fully suppressed",
			"email_id", email.ID, "batch_id", batch.ID, "members", len(recipients))
		return e.batches.MarkSubmitted(ctx, batch.ID, "", batch.Attempts)
	}

	sub := e.buildSubmission(email, batch, deliverable, content)

	attempts := batch.Attempts
	var providerID string
	operation := func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		result, err := e.sender.Submit(ctx, sub)
		if err == nil {
			providerID = result.ProviderID
			return nil
		}

		class := bulkmail.Classify(err)
		logger.Warn("batch submission attempt failed",
			"email_id", email.ID, "batch_id", batch.ID,
			"attempt", attempts, "class", class.String(), "err", err.Error())
		if class == bulkmail.ClassPermanent {
			return backoff.Permanent(err)
		}
		if attempts >= e.cfg.MaxAttempts {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.cfg.RetryInterval
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		if mErr := e.batches.MarkFailed(ctx, batch.ID, err.Error(), attempts); mErr != nil {
			logger.Error("mark batch failed", "batch_id", batch.ID, "err", mErr.Error())
		}
		return fmt.Errorf("batch %d: %w", batch.Ordinal, err)
	}

	if err := e.batches.MarkSubmitted(ctx, batch.ID, providerID, attempts); err != nil {
		return fmt.Errorf("batch %d: mark submitted: %w", batch.Ordinal, err)
	}
	logger.Info("batch submitted",
		"email_id", email.ID, "batch_id", batch.ID,
		"provider_id", providerID, "recipients", len(deliverable), "attempts", attempts)
	return nil
}

// excludeSuppressed filters recipients against the suppression list in
// one bulk lookup, preserving order.
func (e *Engine) excludeSuppressed(ctx context.Context, recipients []domain.Recipient) ([]domain.Recipient, error) {
	addresses := make([]string, len(recipients))
	for i, r := range recipients {
		addresses[i] = r.Email
	}
	data, err := e.supp.GetBulkSuppressionData(ctx, addresses)
	if err != nil {
		return nil, err
	}

	deliverable := make([]domain.Recipient, 0, len(recipients))
	for i, r := range recipients {
		if i < len(data) && data[i].Suppressed {
			continue
		}
		deliverable = append(deliverable, r)
	}
	return deliverable, nil
}

func (e *Engine) buildSubmission(email *domain.Email, batch domain.EmailBatch, recipients []domain.Recipient, content Content) bulkmail.Submission {
	batchRecips := make([]bulkmail.BatchRecipient, 0, len(recipients))
	for _, r := range recipients {
		batchRecips = append(batchRecips, bulkmail.BatchRecipient{
			Address: bulkmail.Address{Email: r.Email, Name: r.Name},
			SubstitutionData: map[string]interface{}{
				"recipient_uuid": r.MemberUUID,
				"name":           r.Name,
			},
		})
	}
	return bulkmail.Submission{
		Recipients: batchRecips,
		Content: bulkmail.Content{
			From:    bulkmail.Address{Email: email.FromAddress},
			Subject: email.Subject,
			HTML:    content.HTML,
			Text:    content.Text,
			ReplyTo: email.ReplyTo,
		},
		Metadata: map[string]interface{}{
			"email_id": email.ID,
			"batch_id": batch.ID,
		},
		Options: &bulkmail.Options{
			OpenTracking: email.TrackOpens,
			// Click tracking routes through our own redirect service;
			// the provider must not re-wrap the rewritten links.
			ClickTracking: false,
		},
	}
}

func (e *Engine) failEmail(ctx context.Context, emailID string, cause error) {
	if err := e.emails.MarkFailed(ctx, emailID, cause.Error()); err != nil {
		logger.Error("mark email failed", "email_id", emailID, "err", err.Error())
	}
}

func (e *Engine) failBatch(ctx context.Context, batch domain.EmailBatch, cause error) {
	if err := e.batches.MarkFailed(ctx, batch.ID, cause.Error(), batch.Attempts); err != nil {
		logger.Error("mark batch failed", "batch_id", batch.ID, "err", err.Error())
	}
}
