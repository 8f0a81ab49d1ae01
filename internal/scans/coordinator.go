package scans

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"issue-scout/internal/codehost"
	"issue-scout/internal/issues"
	"issue-scout/internal/repos"
	"issue-scout/internal/shared/metrics"
	"issue-scout/internal/shared/telemetry"
	"issue-scout/internal/signals"
	"issue-scout/internal/structure"
)

// DefaultBatchSize is the number of files scanned between checkpoints.
const DefaultBatchSize = 10

// RepositoryStore is the slice of the repository store the coordinator writes to.
type RepositoryStore interface {
	GetByID(ctx context.Context, id string) (repos.Repository, error)
	UpdateMetadata(ctx context.Context, id string, meta repos.Metadata) error
	UpdateScanStatus(ctx context.Context, id string, status repos.ScanStatus, lastScanAt *time.Time) error
}

// SignalWriter persists extracted signals.
type SignalWriter interface {
	CreateBatch(ctx context.Context, sigs []signals.Signal) error
}

// SignalProcessor turns persisted signals into issue candidates.
type SignalProcessor interface {
	ProcessSignals(ctx context.Context, repositoryID string) (issues.RunResult, error)
}

// Deps wires a Coordinator.
type Deps struct {
	Jobs      Repo
	Repos     RepositoryStore
	Signals   SignalWriter
	Hosts     codehost.Factory
	Analyzer  *structure.Analyzer
	Extractor *signals.Extractor
	Pipeline  SignalProcessor
	BatchSize int
}

// Coordinator owns scan jobs: it starts, resumes and cancels runs and executes
// the tree, files, signals and llm phases in the background.
type Coordinator struct {
	jobs      Repo
	repos     RepositoryStore
	signals   SignalWriter
	hosts     codehost.Factory
	analyzer  *structure.Analyzer
	extractor *signals.Extractor
	pipeline  SignalProcessor
	recorder  *Recorder
	batchSize int

	group   singleflight.Group
	mu      sync.Mutex
	running map[string]*runner
	wg      sync.WaitGroup

	now     func() time.Time
	onPhase func(jobID string, phase Phase)
	onFile  func(jobID string, index int, path string)
}

type runner struct {
	repositoryID string
	ctx          context.Context
	cancel       context.CancelCauseFunc
	done         chan struct{}
}

// NewCoordinator builds a Coordinator from d.
func NewCoordinator(d Deps) *Coordinator {
	batch := d.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	extractor := d.Extractor
	if extractor == nil {
		extractor = signals.NewExtractor()
	}
	return &Coordinator{
		jobs:      d.Jobs,
		repos:     d.Repos,
		signals:   d.Signals,
		hosts:     d.Hosts,
		analyzer:  d.Analyzer,
		extractor: extractor,
		pipeline:  d.Pipeline,
		recorder:  NewRecorder(d.Jobs),
		batchSize: batch,
		running:   make(map[string]*runner),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Recorder exposes the progress recorder used by runs.
func (c *Coordinator) Recorder() *Recorder {
	return c.recorder
}

// Trigger starts a scan for a repository and returns its job without waiting for
// the run. With resume set, the newest non-completed job carrying a cursor is
// reactivated; otherwise a fresh job is created.
func (c *Coordinator) Trigger(ctx context.Context, repositoryID, requesterID string, resume bool) (ScanJob, error) {
	key := repositoryID
	if resume {
		key += ":resume"
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.trigger(ctx, repositoryID, requesterID, resume)
	})
	if err != nil {
		return ScanJob{}, err
	}
	return v.(ScanJob), nil
}

// Resume continues the latest interrupted scan. ErrNothingToResume when no job has a cursor.
func (c *Coordinator) Resume(ctx context.Context, repositoryID, requesterID string) (ScanJob, error) {
	if _, err := c.repos.GetByID(ctx, repositoryID); err != nil {
		return ScanJob{}, err
	}
	if _, err := c.jobs.LatestResumable(ctx, repositoryID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ScanJob{}, ErrNothingToResume
		}
		return ScanJob{}, err
	}
	return c.Trigger(ctx, repositoryID, requesterID, true)
}

func (c *Coordinator) trigger(ctx context.Context, repositoryID, requesterID string, resume bool) (ScanJob, error) {
	if _, err := c.repos.GetByID(ctx, repositoryID); err != nil {
		return ScanJob{}, err
	}

	var job ScanJob
	var resumed bool
	var r *runner
	err := c.jobs.WithRepositoryLock(ctx, repositoryID, func(ctx context.Context, jobs Repo) error {
		active, err := jobs.ActiveForRepository(ctx, repositoryID)
		switch {
		case err == nil:
			if c.isRunning(active.ID) {
				return ErrScanInProgress
			}
			if !resume || len(active.Cursor) == 0 {
				msg := "superseded by a new scan"
				if err := jobs.UpdateStatus(ctx, active.ID, StatusUpdate{Status: StatusFailed, CurrentPhase: StageFailed, LastError: &msg}); err != nil {
					return err
				}
				telemetry.Warn("scan.orphan_superseded", map[string]any{"scan_job_id": active.ID, "repository_id": repositoryID})
			}
		case !errors.Is(err, ErrNotFound):
			return err
		}

		now := c.now()
		if resume {
			prev, err := jobs.LatestResumable(ctx, repositoryID)
			switch {
			case err == nil:
				clear := ""
				if err := jobs.UpdateStatus(ctx, prev.ID, StatusUpdate{Status: StatusActive, CurrentPhase: StageResuming, LastError: &clear}); err != nil {
					return err
				}
				prev.Status = StatusActive
				prev.CurrentPhase = StageResuming
				prev.CompletedAt = nil
				prev.LastError = ""
				job, resumed = prev, true
				r = c.reserve(ctx, prev.ID, repositoryID)
				return nil
			case !errors.Is(err, ErrNotFound):
				return err
			}
		}

		job = ScanJob{
			ID:           uuid.NewString(),
			RepositoryID: repositoryID,
			RequestedBy:  requesterID,
			Status:       StatusActive,
			StartedAt:    now,
			CurrentPhase: StagePending,
			ProgressLog:  []ProgressEvent{},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := jobs.Create(ctx, job); err != nil {
			return err
		}
		r = c.reserve(ctx, job.ID, repositoryID)
		return nil
	})
	if err != nil {
		if r != nil {
			c.release(job.ID)
		}
		return ScanJob{}, err
	}

	persist := context.WithoutCancel(ctx)
	if resumed {
		_ = c.logEvent(persist, job.ID, StageResuming, "Resuming scan from previous position", EventMeta{})
	} else {
		_ = c.logEvent(persist, job.ID, StageFetchingTree, "Initializing scan...", EventMeta{})
	}
	if err := c.repos.UpdateScanStatus(persist, repositoryID, repos.ScanStatusScanning, nil); err != nil {
		telemetry.Warn("scan.repo_status_failed", map[string]any{"repository_id": repositoryID, "err": err})
	}

	telemetry.Info("scan.triggered", map[string]any{
		"scan_job_id":   job.ID,
		"repository_id": repositoryID,
		"resumed":       resumed,
		"request_id":    telemetry.RequestID(ctx),
	})
	c.launch(job.ID, r)
	return job, nil
}

// reserve registers a runner slot for jobID so concurrent triggers see it as running.
func (c *Coordinator) reserve(ctx context.Context, jobID, repositoryID string) *runner {
	runCtx, cancel := context.WithCancelCause(telemetry.Detach(ctx))
	r := &runner{repositoryID: repositoryID, ctx: runCtx, cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	c.running[jobID] = r
	c.mu.Unlock()
	return r
}

func (c *Coordinator) release(jobID string) {
	c.mu.Lock()
	r, ok := c.running[jobID]
	delete(c.running, jobID)
	c.mu.Unlock()
	if ok {
		r.cancel(nil)
	}
}

func (c *Coordinator) isRunning(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.running[jobID]
	return ok
}

func (c *Coordinator) launch(jobID string, r *runner) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(r.done)
		defer c.release(jobID)
		defer func() {
			if rec := recover(); rec != nil {
				telemetry.Error("scan.panic", map[string]any{"scan_job_id": jobID, "panic": rec})
				metrics.IncPanic("scan")
				c.fail(context.WithoutCancel(r.ctx), jobID, r.repositoryID, fmt.Errorf("internal error: %v", rec))
			}
		}()
		_ = c.Run(r.ctx, jobID)
	}()
}

// Cancel stops an active job and keeps its cursor for a later resume. A live
// runner records the cancelled state itself once it stops, so the outcome does
// not depend on ctx outliving the wait.
func (c *Coordinator) Cancel(ctx context.Context, jobID string) (ScanJob, error) {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return ScanJob{}, err
	}
	if job.Status != StatusActive {
		return ScanJob{}, ErrNotActive
	}

	c.mu.Lock()
	r := c.running[jobID]
	c.mu.Unlock()
	if r != nil {
		r.cancel(ErrCancelled)
		select {
		case <-r.done:
		case <-ctx.Done():
			return ScanJob{}, ctx.Err()
		}
	}

	persist := context.WithoutCancel(ctx)
	if _, err := c.markCancelled(persist, jobID, job.RepositoryID); err != nil {
		return ScanJob{}, err
	}
	job, err = c.jobs.GetByID(persist, jobID)
	if err != nil {
		return ScanJob{}, err
	}
	if job.CurrentPhase != StageCancelled {
		return ScanJob{}, ErrNotActive
	}
	return job, nil
}

// markCancelled moves a still-active job to failed/cancelled under the
// repository lock and reports whether it did.
func (c *Coordinator) markCancelled(ctx context.Context, jobID, repositoryID string) (bool, error) {
	marked := false
	err := c.jobs.WithRepositoryLock(ctx, repositoryID, func(ctx context.Context, jobs Repo) error {
		job, err := jobs.GetByID(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != StatusActive {
			return nil
		}
		msg := "cancelled by user"
		if err := jobs.UpdateStatus(ctx, jobID, StatusUpdate{Status: StatusFailed, CurrentPhase: StageCancelled, LastError: &msg}); err != nil {
			return err
		}
		marked = true
		return nil
	})
	if err != nil || !marked {
		return false, err
	}

	metrics.IncScanCancelled()
	_ = c.logEvent(ctx, jobID, StageCancelled, "Scan cancelled by user", EventMeta{})
	if err := c.repos.UpdateScanStatus(ctx, repositoryID, repos.ScanStatusFailed, nil); err != nil {
		telemetry.Warn("scan.repo_status_failed", map[string]any{"repository_id": repositoryID, "err": err})
	}
	telemetry.Info("scan.cancelled", map[string]any{"scan_job_id": jobID, "repository_id": repositoryID})
	return true, nil
}

// CancelRepository cancels the active job of a repository.
func (c *Coordinator) CancelRepository(ctx context.Context, repositoryID string) (ScanJob, error) {
	active, err := c.jobs.ActiveForRepository(ctx, repositoryID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ScanJob{}, ErrNotActive
		}
		return ScanJob{}, err
	}
	return c.Cancel(ctx, active.ID)
}

// GetProgress returns the progress of a job.
func (c *Coordinator) GetProgress(ctx context.Context, jobID string) (Progress, error) {
	return c.recorder.Get(ctx, jobID)
}

// RepositoryProgress returns the progress of the newest job for a repository.
// Unknown repositories give repos.ErrNotFound; a repository never scanned gives ErrNotFound.
func (c *Coordinator) RepositoryProgress(ctx context.Context, repositoryID string) (Progress, error) {
	if _, err := c.repos.GetByID(ctx, repositoryID); err != nil {
		return Progress{}, err
	}
	job, err := c.jobs.LatestForRepository(ctx, repositoryID)
	if err != nil {
		return Progress{}, err
	}
	return progressOf(job), nil
}

// Wait blocks until the in-process runner of jobID exits or ctx is done.
func (c *Coordinator) Wait(ctx context.Context, jobID string) error {
	c.mu.Lock()
	r := c.running[jobID]
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown interrupts every in-flight run and waits for them to persist their
// state. Interrupted jobs stay resumable.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	for _, r := range c.running {
		r.cancel(ErrShutdown)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RepositoryDeleted stops any run for a repository that is about to be removed.
func (c *Coordinator) RepositoryDeleted(ctx context.Context, repositoryID string) error {
	c.mu.Lock()
	var pending []*runner
	for _, r := range c.running {
		if r.repositoryID == repositoryID {
			r.cancel(ErrCancelled)
			pending = append(pending, r)
		}
	}
	c.mu.Unlock()
	for _, r := range pending {
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *Coordinator) logEvent(ctx context.Context, jobID, phase, message string, meta EventMeta) error {
	if err := c.recorder.Log(ctx, jobID, phase, message, meta); err != nil {
		telemetry.Warn("scan.progress_write_failed", map[string]any{"scan_job_id": jobID, "err": err})
		return err
	}
	return nil
}

func (c *Coordinator) setPercentage(ctx context.Context, jobID string, pct int) {
	if _, err := c.recorder.SetPercentage(ctx, jobID, pct); err != nil {
		telemetry.Warn("scan.progress_write_failed", map[string]any{"scan_job_id": jobID, "err": err})
	}
}
