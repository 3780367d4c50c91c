package suppression

import (
	"context"

	"github.com/quillcast/quillmail/internal/domain"
)

// Repository defines the data access contract for the suppression list.
type Repository interface {
	// Get returns the entry for an address, or nil if the address is
	// not suppressed.
	Get(ctx context.Context, email string) (*domain.SuppressionEntry, error)

	// Upsert adds or updates an entry. Implementations must apply the
	// most-severe-reason-wins merge: an existing spam entry is never
	// overwritten with a failed reason.
	Upsert(ctx context.Context, entry *domain.SuppressionEntry) error

	// Remove deletes an entry. Removing an absent address is not an
	// error (idempotent).
	Remove(ctx context.Context, email string) error

	// List returns entries for support tooling, newest first.
	List(ctx context.Context, limit, offset int) ([]domain.SuppressionEntry, int, error)
}

// BulkGetter is the optional capability for a true bulk lookup. Repos
// that implement it are used directly by GetBulkSuppressionData;
// otherwise the service fans out to Get per address.
type BulkGetter interface {
	GetBulk(ctx context.Context, emails []string) (map[string]*domain.SuppressionEntry, error)
}
