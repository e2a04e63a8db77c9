package history

import (
	"context"

	"github.com/google/uuid"
)

// RepositoryInterface defines the interface for fraud history storage
type RepositoryInterface interface {
	// Insert appends one entry. Entries are immutable once written.
	Insert(ctx context.Context, entry *Entry) (*Entry, error)

	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Entry, int64, error)
	GetUserSummary(ctx context.Context, userID uuid.UUID) (*UserSummary, error)
}
