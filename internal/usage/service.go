package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type store interface {
	Append(ctx context.Context, rec Record) error
	ListByRepository(ctx context.Context, repositoryID string) ([]Record, error)
}

// Service records LLM usage via an underlying store.
type Service struct {
	store   store
	pricing Pricing
	now     func() time.Time
}

// NewService constructs a Service with in-memory store.
func NewService(pricing Pricing) *Service {
	return &Service{store: newMemoryStore(), pricing: pricing, now: utcNow}
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(pgStore store, pricing Pricing) *Service {
	return &Service{store: pgStore, pricing: pricing, now: utcNow}
}

func utcNow() time.Time { return time.Now().UTC() }

// Record prices and appends one usage row.
func (s *Service) Record(ctx context.Context, e Entry) (Record, error) {
	if e.Phase != PhaseClassification && e.Phase != PhaseDrafting {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidPhase, e.Phase)
	}
	in, out, cost := s.pricing.Cost(e.Phase, e.TokensIn, e.TokensOut)
	rec := Record{
		ID:            uuid.NewString(),
		RepositoryID:  e.RepositoryID,
		TokensIn:      in,
		TokensOut:     out,
		EstimatedCost: cost,
		Phase:         e.Phase,
		Provider:      e.Provider,
		Model:         e.Model,
		CreatedAt:     s.now(),
	}
	if err := s.store.Append(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns the usage rows of a repository, oldest first.
func (s *Service) List(ctx context.Context, repositoryID string) ([]Record, error) {
	return s.store.ListByRepository(ctx, repositoryID)
}

// Summary totals usage for a repository by phase.
func (s *Service) Summary(ctx context.Context, repositoryID string) (Summary, error) {
	recs, err := s.store.ListByRepository(ctx, repositoryID)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{RepositoryID: repositoryID, ByPhase: make(map[Phase]PhaseTotals)}
	for _, r := range recs {
		sum.add(r)
	}
	return sum, nil
}
