package issues

import "context"

// Repo defines persistence operations for issue candidates.
type Repo interface {
	// Create stores a candidate; a second candidate for the same signal is ErrCandidateExists.
	Create(ctx context.Context, c Candidate) error
	GetByID(ctx context.Context, id string) (Candidate, error)
	FindBySignal(ctx context.Context, signalID string) (Candidate, error)
	// List returns candidates ordered by confidence, highest first.
	List(ctx context.Context, filter ListFilter) ([]Candidate, error)
	Update(ctx context.Context, c Candidate) error
}
