package repos

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Repository
	now  func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]Repository),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepo) Create(ctx context.Context, repo Repository) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.data {
		if sameSlug(existing, repo.Owner, repo.Name) {
			return ErrAlreadyExists
		}
	}
	repo.IgnoredPaths = append([]string(nil), repo.IgnoredPaths...)
	r.data[repo.ID] = repo
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Repository, error) {
	if err := ctx.Err(); err != nil {
		return Repository{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	repo, ok := r.data[id]
	if !ok {
		return Repository{}, ErrNotFound
	}
	return repo, nil
}

func (r *MemoryRepo) GetByOwnerName(ctx context.Context, owner, name string) (Repository, error) {
	if err := ctx.Err(); err != nil {
		return Repository{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, repo := range r.data {
		if sameSlug(repo, owner, name) {
			return repo, nil
		}
	}
	return Repository{}, ErrNotFound
}

func (r *MemoryRepo) List(ctx context.Context) ([]Repository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Repository, 0, len(r.data))
	for _, repo := range r.data {
		out = append(out, repo)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *MemoryRepo) UpdateMetadata(ctx context.Context, id string, meta Metadata) error {
	return r.update(ctx, id, func(repo *Repository) {
		repo.Stars = meta.Stars
		repo.Language = meta.Language
		repo.DefaultBranch = meta.DefaultBranch
	})
}

func (r *MemoryRepo) UpdateScanStatus(ctx context.Context, id string, status ScanStatus, lastScanAt *time.Time) error {
	return r.update(ctx, id, func(repo *Repository) {
		repo.ScanStatus = status
		if lastScanAt != nil {
			t := *lastScanAt
			repo.LastScanAt = &t
		}
	})
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return ErrNotFound
	}
	delete(r.data, id)
	return nil
}

func (r *MemoryRepo) update(ctx context.Context, id string, fn func(*Repository)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	repo, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	fn(&repo)
	repo.UpdatedAt = r.now()
	r.data[id] = repo
	return nil
}

func sameSlug(repo Repository, owner, name string) bool {
	return strings.EqualFold(repo.Owner, owner) && strings.EqualFold(repo.Name, name)
}

var _ Repo = (*MemoryRepo)(nil)
