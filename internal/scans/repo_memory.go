package scans

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu    sync.RWMutex
	data  map[string]ScanJob
	seq   map[string]int
	next  int
	repos keyedMutex
	now   func() time.Time
}

var _ Repo = (*MemoryRepo)(nil)

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]ScanJob),
		seq:  make(map[string]int),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepo) Create(ctx context.Context, job ScanJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.Status == StatusActive {
		for _, existing := range r.data {
			if existing.RepositoryID == job.RepositoryID && existing.Status == StatusActive {
				return ErrScanInProgress
			}
		}
	}
	r.next++
	r.seq[job.ID] = r.next
	r.data[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (ScanJob, error) {
	if err := ctx.Err(); err != nil {
		return ScanJob{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.data[id]
	if !ok {
		return ScanJob{}, ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *MemoryRepo) LatestForRepository(ctx context.Context, repositoryID string) (ScanJob, error) {
	return r.latest(ctx, repositoryID, func(ScanJob) bool { return true })
}

func (r *MemoryRepo) LatestResumable(ctx context.Context, repositoryID string) (ScanJob, error) {
	return r.latest(ctx, repositoryID, func(j ScanJob) bool {
		return j.Status != StatusCompleted && len(j.Cursor) > 0
	})
}

func (r *MemoryRepo) ActiveForRepository(ctx context.Context, repositoryID string) (ScanJob, error) {
	return r.latest(ctx, repositoryID, func(j ScanJob) bool { return j.Status == StatusActive })
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, update StatusUpdate) error {
	return r.update(ctx, id, func(job *ScanJob) {
		job.Status = update.Status
		if update.CurrentPhase != "" {
			job.CurrentPhase = update.CurrentPhase
		}
		job.CompletedAt = update.CompletedAt
		if update.LastError != nil {
			job.LastError = *update.LastError
		}
	})
}

func (r *MemoryRepo) SaveCursor(ctx context.Context, id string, cursor json.RawMessage, signalsFound int) error {
	return r.update(ctx, id, func(job *ScanJob) {
		job.Cursor = append(json.RawMessage(nil), cursor...)
		if len(cursor) == 0 {
			job.Cursor = nil
		}
		job.SignalsFound = signalsFound
	})
}

func (r *MemoryRepo) SetProgress(ctx context.Context, id string, pct int) (int, error) {
	var stored int
	err := r.update(ctx, id, func(job *ScanJob) {
		if pct > job.ProgressPercentage {
			job.ProgressPercentage = clampPercentage(pct)
		}
		stored = job.ProgressPercentage
	})
	return stored, err
}

func (r *MemoryRepo) SaveProgressLog(ctx context.Context, id string, events []ProgressEvent, phase string) error {
	return r.update(ctx, id, func(job *ScanJob) {
		job.ProgressLog = append([]ProgressEvent(nil), events...)
		job.CurrentPhase = phase
	})
}

func (r *MemoryRepo) WithRepositoryLock(ctx context.Context, repositoryID string, fn func(ctx context.Context, jobs Repo) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := r.repos.lock(repositoryID)
	defer unlock()
	return fn(ctx, r)
}

func (r *MemoryRepo) latest(ctx context.Context, repositoryID string, match func(ScanJob) bool) (ScanJob, error) {
	if err := ctx.Err(); err != nil {
		return ScanJob{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best ScanJob
	bestSeq := -1
	for id, job := range r.data {
		if job.RepositoryID != repositoryID || !match(job) {
			continue
		}
		if newer(job, r.seq[id], best, bestSeq) {
			best, bestSeq = job, r.seq[id]
		}
	}
	if bestSeq < 0 {
		return ScanJob{}, ErrNotFound
	}
	return cloneJob(best), nil
}

func (r *MemoryRepo) update(ctx context.Context, id string, apply func(*ScanJob)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	apply(&job)
	job.UpdatedAt = r.now()
	r.data[id] = job
	return nil
}

func newer(a ScanJob, aSeq int, b ScanJob, bSeq int) bool {
	if bSeq < 0 {
		return true
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return aSeq > bSeq
}

func cloneJob(job ScanJob) ScanJob {
	if job.Cursor != nil {
		job.Cursor = append(json.RawMessage(nil), job.Cursor...)
	}
	job.ProgressLog = append([]ProgressEvent(nil), job.ProgressLog...)
	return job
}

// DeleteByRepository drops every job of a repository. Postgres relies on FK cascades instead.
func (r *MemoryRepo) DeleteByRepository(ctx context.Context, repositoryID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, job := range r.data {
		if job.RepositoryID == repositoryID {
			delete(r.data, id)
			delete(r.seq, id)
		}
	}
	return nil
}
