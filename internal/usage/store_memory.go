package usage

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu   sync.RWMutex
	data map[string][]Record
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]Record)}
}

func (s *memoryStore) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[rec.RepositoryID] = append(s.data[rec.RepositoryID], rec)
	return nil
}

func (s *memoryStore) ListByRepository(ctx context.Context, repositoryID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.data[repositoryID]))
	copy(out, s.data[repositoryID])
	return out, nil
}
