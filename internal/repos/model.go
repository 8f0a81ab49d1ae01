package repos

import (
	"errors"
	"time"
)

// ScanStatus is the repository-level view of its latest scan.
type ScanStatus string

const (
	ScanStatusIdle      ScanStatus = "idle"
	ScanStatusQueued    ScanStatus = "queued"
	ScanStatusScanning  ScanStatus = "scanning"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

var (
	ErrNotFound      = errors.New("repository not found")
	ErrAlreadyExists = errors.New("repository already exists")
	ErrInvalidInput  = errors.New("invalid input")
)

const (
	defaultLanguage = "Unknown"
	defaultBranch   = "main"
)

// DefaultIgnoredPaths seeds the per-repository ignore list.
func DefaultIgnoredPaths() []string {
	return []string{"node_modules", "dist", "build", ".git", "vendor", "coverage"}
}

// Repository is a tracked code-host repository.
type Repository struct {
	ID            string     `json:"id"`
	Owner         string     `json:"owner"`
	Name          string     `json:"name"`
	Stars         int        `json:"stars"`
	Language      string     `json:"language"`
	DefaultBranch string     `json:"defaultBranch"`
	ScanStatus    ScanStatus `json:"scanStatus"`
	LastScanAt    *time.Time `json:"lastScanAt,omitempty"`
	IgnoredPaths  []string   `json:"ignoredPaths"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// FullName returns owner/name.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// Metadata is the code-host derived part of a repository.
type Metadata struct {
	Stars         int
	Language      string
	DefaultBranch string
}
