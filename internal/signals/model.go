package signals

import (
	"errors"
	"time"
)

// Signal types produced by the extractor. Marker comments become <MARKER>_COMMENT.
const (
	TypeTodo        = "TODO_COMMENT"
	TypeFixme       = "FIXME_COMMENT"
	TypeHack        = "HACK_COMMENT"
	TypeXXX         = "XXX_COMMENT"
	TypeMissingDocs = "MISSING_DOCS"
)

// ErrNotFound is returned when a signal does not exist.
var ErrNotFound = errors.New("signal not found")

// Signal is an immutable point of interest discovered in source text.
type Signal struct {
	ID           string    `json:"id"`
	RepositoryID string    `json:"repositoryId"`
	Type         string    `json:"type"`
	FilePath     string    `json:"filePath"`
	LineNumber   int       `json:"lineNumber"`
	Snippet      string    `json:"snippet"`
	Context      string    `json:"context"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ListFilter narrows ListByRepository.
type ListFilter struct {
	Type  string
	Limit int
}
