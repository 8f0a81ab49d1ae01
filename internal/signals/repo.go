package signals

import "context"

// Repo defines persistence operations for signals.
type Repo interface {
	Create(ctx context.Context, signal Signal) error
	// CreateBatch stores signals atomically; IDs and timestamps must be set.
	CreateBatch(ctx context.Context, signals []Signal) error
	GetByID(ctx context.Context, id string) (Signal, error)
	// ListRecent returns the newest signals for a repository, newest first.
	ListRecent(ctx context.Context, repositoryID string, limit int) ([]Signal, error)
	ListByRepository(ctx context.Context, repositoryID string, filter ListFilter) ([]Signal, error)
	CountByRepository(ctx context.Context, repositoryID string) (int, error)
}
