package scans

import (
	"context"
	"time"

	"issue-scout/internal/shared/telemetry"
)

// Recorder appends progress events and percentages for scan jobs. Writes for the
// same job are serialized so concurrent loggers cannot drop each other's events.
type Recorder struct {
	jobs  Repo
	locks keyedMutex
	now   func() time.Time
}

// NewRecorder constructs a Recorder over jobs.
func NewRecorder(jobs Repo) *Recorder {
	return &Recorder{jobs: jobs, now: func() time.Time { return time.Now().UTC() }}
}

// Log appends an event, keeps the newest MaxProgressEvents and mirrors phase into
// the job's current phase.
func (r *Recorder) Log(ctx context.Context, jobID, phase, message string, meta EventMeta) error {
	unlock := r.locks.lock(jobID)
	defer unlock()

	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	events := append(job.ProgressLog, ProgressEvent{
		Timestamp:      r.now(),
		Phase:          phase,
		Message:        message,
		Percentage:     job.ProgressPercentage,
		FilesProcessed: meta.FilesProcessed,
		TotalFiles:     meta.TotalFiles,
		CurrentFile:    meta.CurrentFile,
	})
	if len(events) > MaxProgressEvents {
		events = events[len(events)-MaxProgressEvents:]
	}
	if err := r.jobs.SaveProgressLog(ctx, jobID, events, phase); err != nil {
		return err
	}
	telemetry.Info("scan.progress", map[string]any{
		"scan_job_id": jobID,
		"phase":       phase,
		"message":     message,
		"request_id":  telemetry.RequestID(ctx),
	})
	return nil
}

// SetPercentage clamps pct to [0,100] and never lowers the stored value.
func (r *Recorder) SetPercentage(ctx context.Context, jobID string, pct int) (int, error) {
	unlock := r.locks.lock(jobID)
	defer unlock()
	return r.jobs.SetProgress(ctx, jobID, clampPercentage(pct))
}

// Get returns the current progress of a job.
func (r *Recorder) Get(ctx context.Context, jobID string) (Progress, error) {
	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		return Progress{}, err
	}
	return progressOf(job), nil
}
