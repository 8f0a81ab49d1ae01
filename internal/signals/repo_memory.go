package signals

import (
	"context"
	"sort"
	"sync"
)

type storedSignal struct {
	seq    int
	signal Signal
}

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	seq  int
	data map[string][]storedSignal // repositoryID -> signals
	byID map[string]Signal
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string][]storedSignal),
		byID: make(map[string]Signal),
	}
}

// Create stores one signal.
func (r *MemoryRepo) Create(ctx context.Context, signal Signal) error {
	return r.CreateBatch(ctx, []Signal{signal})
}

// CreateBatch stores all signals.
func (r *MemoryRepo) CreateBatch(ctx context.Context, signals []Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range signals {
		r.seq++
		r.data[s.RepositoryID] = append(r.data[s.RepositoryID], storedSignal{seq: r.seq, signal: s})
		r.byID[s.ID] = s
	}
	return nil
}

// GetByID returns a signal by ID.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Signal, error) {
	if err := ctx.Err(); err != nil {
		return Signal{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return Signal{}, ErrNotFound
	}
	return s, nil
}

// ListRecent returns up to limit signals, newest first.
func (r *MemoryRepo) ListRecent(ctx context.Context, repositoryID string, limit int) ([]Signal, error) {
	return r.ListByRepository(ctx, repositoryID, ListFilter{Limit: limit})
}

// ListByRepository returns signals for a repository, newest first, optionally filtered by type.
func (r *MemoryRepo) ListByRepository(ctx context.Context, repositoryID string, filter ListFilter) ([]Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	stored := make([]storedSignal, 0, len(r.data[repositoryID]))
	for _, s := range r.data[repositoryID] {
		if filter.Type != "" && s.signal.Type != filter.Type {
			continue
		}
		stored = append(stored, s)
	}
	r.mu.RUnlock()

	sort.Slice(stored, func(i, j int) bool {
		a, b := stored[i].signal.CreatedAt, stored[j].signal.CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return stored[i].seq > stored[j].seq
	})
	if filter.Limit > 0 && len(stored) > filter.Limit {
		stored = stored[:filter.Limit]
	}
	out := make([]Signal, len(stored))
	for i := range stored {
		out[i] = stored[i].signal
	}
	return out, nil
}

// CountByRepository returns the number of stored signals for a repository.
func (r *MemoryRepo) CountByRepository(ctx context.Context, repositoryID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data[repositoryID]), nil
}

// DeleteByRepository drops every signal of a repository.
func (r *MemoryRepo) DeleteByRepository(ctx context.Context, repositoryID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.data[repositoryID] {
		delete(r.byID, s.signal.ID)
	}
	delete(r.data, repositoryID)
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
