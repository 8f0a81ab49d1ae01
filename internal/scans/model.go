package scans

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle state of a scan job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Display phases written to current_phase and the progress log.
const (
	StagePending            = "pending"
	StageFetchingTree       = "fetching_tree"
	StageAnalyzingStructure = "analyzing_structure"
	StageScanningFiles      = "scanning_files"
	StageProcessingSignals  = "processing_signals"
	StageCompleted          = "completed"
	StageFailed             = "failed"
	StageCancelled          = "cancelled"
	StageResuming           = "resuming"
)

// MaxProgressEvents bounds the stored progress log; older events are dropped.
const MaxProgressEvents = 100

var (
	ErrNotFound = errors.New("scan job not found")
	// ErrScanInProgress is returned when a runner already owns the repository's active job.
	ErrScanInProgress = errors.New("scan already in progress")
	ErrNotActive      = errors.New("no active scan")
	// ErrNothingToResume is returned by Resume when no job carries a cursor.
	ErrNothingToResume = errors.New("no scan to resume")
	ErrCursorCorrupt   = errors.New("scan cursor corrupt")
	// ErrCancelled is the cancellation cause used when a user cancels a scan.
	ErrCancelled = errors.New("scan cancelled")
	// ErrShutdown is the cancellation cause used when the process stops.
	ErrShutdown = errors.New("scan interrupted by shutdown")
)

// ScanJob is one attempt to scan a repository.
type ScanJob struct {
	ID                 string          `json:"id"`
	RepositoryID       string          `json:"repositoryId"`
	RequestedBy        string          `json:"requestedBy,omitempty"`
	Status             Status          `json:"status"`
	StartedAt          time.Time       `json:"startedAt"`
	CompletedAt        *time.Time      `json:"completedAt,omitempty"`
	SignalsFound       int             `json:"signalsFound"`
	Cursor             json.RawMessage `json:"cursor,omitempty"`
	ProgressPercentage int             `json:"progressPercentage"`
	CurrentPhase       string          `json:"currentPhase"`
	ProgressLog        []ProgressEvent `json:"progressLog"`
	LastError          string          `json:"lastError,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// ProgressEvent is a single entry in a job's progress log.
type ProgressEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	Phase          string    `json:"phase"`
	Message        string    `json:"message"`
	Percentage     int       `json:"percentage"`
	FilesProcessed int       `json:"filesProcessed,omitempty"`
	TotalFiles     int       `json:"totalFiles,omitempty"`
	CurrentFile    string    `json:"currentFile,omitempty"`
}

// EventMeta carries the optional per-file fields of a progress event.
type EventMeta struct {
	FilesProcessed int
	TotalFiles     int
	CurrentFile    string
}

// StatusUpdate is applied by Repo.UpdateStatus. Nil LastError leaves the column unchanged;
// an empty string clears it.
type StatusUpdate struct {
	Status       Status
	CurrentPhase string
	CompletedAt  *time.Time
	LastError    *string
}

// Progress is the read model served to clients.
type Progress struct {
	ScanJobID    string          `json:"scanJobId"`
	RepositoryID string          `json:"repositoryId"`
	Status       Status          `json:"status"`
	Phase        string          `json:"phase"`
	Percentage   int             `json:"percentage"`
	SignalsFound int             `json:"signalsFound"`
	LastError    string          `json:"lastError,omitempty"`
	Events       []ProgressEvent `json:"events"`
}

func progressOf(job ScanJob) Progress {
	events := job.ProgressLog
	if events == nil {
		events = []ProgressEvent{}
	}
	return Progress{
		ScanJobID:    job.ID,
		RepositoryID: job.RepositoryID,
		Status:       job.Status,
		Phase:        job.CurrentPhase,
		Percentage:   job.ProgressPercentage,
		SignalsFound: job.SignalsFound,
		LastError:    job.LastError,
		Events:       events,
	}
}

func clampPercentage(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
