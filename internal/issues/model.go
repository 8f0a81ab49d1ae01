package issues

import (
	"errors"
	"time"
)

// Status is the review state of a candidate.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusPublished Status = "published"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusApproved, StatusRejected, StatusPublished:
		return true
	}
	return false
}

// Categories accepted for candidates.
const (
	CategoryBug         = "bug"
	CategoryEnhancement = "enhancement"
	CategorySecurity    = "security"
)

var (
	ErrNotFound        = errors.New("issue candidate not found")
	ErrCandidateExists = errors.New("issue candidate already exists for signal")
	ErrInvalidInput    = errors.New("invalid input")
)

// Candidate is a proposed issue awaiting review.
type Candidate struct {
	ID              string    `json:"id"`
	RepositoryID    string    `json:"repositoryId"`
	SignalID        *string   `json:"signalId,omitempty"`
	Title           string    `json:"title"`
	Body            string    `json:"body"`
	Category        string    `json:"category"`
	ConfidenceScore float64   `json:"confidenceScore"`
	Status          Status    `json:"status"`
	PublishedURL    *string   `json:"publishedUrl,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ListFilter narrows List. Empty fields match everything.
type ListFilter struct {
	RepositoryID string
	Status       Status
}

// Patch holds the editable fields of a candidate. Empty values are left unchanged.
type Patch struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Status Status `json:"status"`
}
