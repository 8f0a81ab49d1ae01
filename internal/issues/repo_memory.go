package issues

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu       sync.RWMutex
	data     map[string]Candidate
	bySignal map[string]string // signalID -> candidateID
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data:     make(map[string]Candidate),
		bySignal: make(map[string]string),
	}
}

func (r *MemoryRepo) Create(ctx context.Context, c Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.SignalID != nil {
		if _, ok := r.bySignal[*c.SignalID]; ok {
			return ErrCandidateExists
		}
		r.bySignal[*c.SignalID] = c.ID
	}
	r.data[c.ID] = c
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Candidate, error) {
	if err := ctx.Err(); err != nil {
		return Candidate{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.data[id]
	if !ok {
		return Candidate{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) FindBySignal(ctx context.Context, signalID string) (Candidate, error) {
	if err := ctx.Err(); err != nil {
		return Candidate{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySignal[signalID]
	if !ok {
		return Candidate{}, ErrNotFound
	}
	return r.data[id], nil
}

func (r *MemoryRepo) List(ctx context.Context, filter ListFilter) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Candidate, 0, len(r.data))
	for _, c := range r.data {
		if filter.RepositoryID != "" && c.RepositoryID != filter.RepositoryID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConfidenceScore != out[j].ConfidenceScore {
			return out[i].ConfidenceScore > out[j].ConfidenceScore
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepo) Update(ctx context.Context, c Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[c.ID]; !ok {
		return ErrNotFound
	}
	r.data[c.ID] = c
	return nil
}

// DeleteByRepository drops every candidate of a repository.
func (r *MemoryRepo) DeleteByRepository(ctx context.Context, repositoryID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.data {
		if c.RepositoryID != repositoryID {
			continue
		}
		if c.SignalID != nil {
			delete(r.bySignal, *c.SignalID)
		}
		delete(r.data, id)
	}
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
