package suppression

import (
	"context"
	"strings"
	"time"

	"github.com/quillcast/quillmail/internal/domain"
)

// Service implements suppression business logic. It is safe for
// concurrent use if the underlying repository is.
type Service struct {
	repo Repository
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetSuppressionData returns the suppression state for one address.
// Info is non-nil exactly when Suppressed is true, so callers can
// pattern-match without conditional null checks.
func (s *Service) GetSuppressionData(ctx context.Context, email string) (domain.SuppressionData, error) {
	entry, err := s.repo.Get(ctx, normalize(email))
	if err != nil {
		return domain.SuppressionData{}, err
	}
	return toData(entry), nil
}

// GetBulkSuppressionData returns suppression state for many addresses
// in input order. A repository exposing a true bulk query is used
// directly; otherwise the lookup fans out to the single-address form.
func (s *Service) GetBulkSuppressionData(ctx context.Context, emails []string) ([]domain.SuppressionData, error) {
	normalized := make([]string, len(emails))
	for i, e := range emails {
		normalized[i] = normalize(e)
	}

	if bulk, ok := s.repo.(BulkGetter); ok {
		entries, err := bulk.GetBulk(ctx, normalized)
		if err != nil {
			return nil, err
		}
		out := make([]domain.SuppressionData, len(normalized))
		for i, e := range normalized {
			out[i] = toData(entries[e])
		}
		return out, nil
	}

	out := make([]domain.SuppressionData, len(normalized))
	for i, e := range normalized {
		entry, err := s.repo.Get(ctx, e)
		if err != nil {
			return nil, err
		}
		out[i] = toData(entry)
	}
	return out, nil
}

// Suppress records an address as undeliverable. The repository applies
// the most-severe-reason-wins merge, so suppressing an already
// complained address with a failed reason preserves the complaint.
func (s *Service) Suppress(ctx context.Context, email string, reason domain.SuppressionReason, at time.Time) error {
	email = normalize(email)
	if email == "" {
		return ErrEmptyEmail
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return s.repo.Upsert(ctx, &domain.SuppressionEntry{
		Email:     email,
		Reason:    reason,
		CreatedAt: at,
	})
}

// RemoveEmail un-suppresses an address, for example after a support
// request. It succeeds even if the address was never suppressed.
func (s *Service) RemoveEmail(ctx context.Context, email string) (bool, error) {
	email = normalize(email)
	if email == "" {
		return false, ErrEmptyEmail
	}
	if err := s.repo.Remove(ctx, email); err != nil {
		return false, err
	}
	return true, nil
}

// List returns suppression entries for support tooling.
func (s *Service) List(ctx context.Context, limit, offset int) ([]domain.SuppressionEntry, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func toData(entry *domain.SuppressionEntry) domain.SuppressionData {
	if entry == nil {
		return domain.SuppressionData{Suppressed: false, Info: nil}
	}
	return domain.SuppressionData{
		Suppressed: true,
		Info: &domain.SuppressionInfo{
			Reason:    entry.Reason,
			Timestamp: entry.CreatedAt,
		},
	}
}
