package documents

import "context"

// Repo is a keyed store of records with atomic compare-and-set on Version.
type Repo interface {
	Get(ctx context.Context, userID, documentType string) (Record, error)
	// Create inserts rec at version 1. ErrStale if the key already exists.
	Create(ctx context.Context, rec Record) (Record, error)
	// CompareAndSet replaces the stored record only if its version equals expected.
	// The written record gets version expected+1.
	CompareAndSet(ctx context.Context, rec Record, expected int64) (Record, error)
	ListByUser(ctx context.Context, userID string) ([]Record, error)
}
