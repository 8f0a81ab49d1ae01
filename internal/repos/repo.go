package repos

import (
	"context"
	"time"
)

// Repo defines persistence operations for repositories.
type Repo interface {
	Create(ctx context.Context, repo Repository) error
	GetByID(ctx context.Context, id string) (Repository, error)
	GetByOwnerName(ctx context.Context, owner, name string) (Repository, error)
	// List returns repositories, most recently updated first.
	List(ctx context.Context) ([]Repository, error)
	UpdateMetadata(ctx context.Context, id string, meta Metadata) error
	// UpdateScanStatus sets scan_status; lastScanAt is left unchanged when nil.
	UpdateScanStatus(ctx context.Context, id string, status ScanStatus, lastScanAt *time.Time) error
	Delete(ctx context.Context, id string) error
}
