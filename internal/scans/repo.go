package scans

import (
	"context"
	"encoding/json"
)

// Repo defines persistence operations for scan jobs.
type Repo interface {
	Create(ctx context.Context, job ScanJob) error
	GetByID(ctx context.Context, id string) (ScanJob, error)
	// LatestForRepository returns the most recently created job of any status.
	LatestForRepository(ctx context.Context, repositoryID string) (ScanJob, error)
	// LatestResumable returns the most recent non-completed job that carries a cursor.
	LatestResumable(ctx context.Context, repositoryID string) (ScanJob, error)
	ActiveForRepository(ctx context.Context, repositoryID string) (ScanJob, error)
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) error
	// SaveCursor writes the checkpoint and running signal count together. A nil cursor clears it.
	SaveCursor(ctx context.Context, id string, cursor json.RawMessage, signalsFound int) error
	// SetProgress stores max(current, pct) and returns the stored value.
	SetProgress(ctx context.Context, id string, pct int) (int, error)
	// SaveProgressLog replaces the event log and mirrors phase into current_phase.
	SaveProgressLog(ctx context.Context, id string, events []ProgressEvent, phase string) error
	// WithRepositoryLock runs fn while holding an exclusive per-repository lock.
	// Writes made through the Repo passed to fn are atomic with the lock.
	WithRepositoryLock(ctx context.Context, repositoryID string, fn func(ctx context.Context, jobs Repo) error) error
}
