package llm

import (
	"context"
	"errors"
)

// Provider classifies signals and drafts issues from them.
type Provider interface {
	Classify(ctx context.Context, signal SignalInput, repoContext string) (Classification, error)
	Draft(ctx context.Context, signal SignalInput, repoContext string) (Draft, error)
}

// SignalInput is the part of a signal a provider sees.
type SignalInput struct {
	ID         string
	Type       string
	FilePath   string
	LineNumber int
	Snippet    string
	Context    string
}

// TokenUsage is what a provider reports for a single call. Zero counts mean unknown.
type TokenUsage struct {
	Provider     string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Classification is the verdict on whether a signal deserves an issue.
type Classification struct {
	Worthy     bool    `json:"worthy"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`

	Usage TokenUsage `json:"-"`
}

// Draft is a proposed issue.
type Draft struct {
	Title           string  `json:"title"`
	Body            string  `json:"body"`
	Category        string  `json:"category"`
	ConfidenceScore float64 `json:"confidence_score"`

	Usage TokenUsage `json:"-"`
}

var (
	// ErrNotImplemented is returned by the placeholder provider.
	ErrNotImplemented = errors.New("LLM not implemented")
	// ErrMalformedResponse is returned when model output does not match the expected schema.
	ErrMalformedResponse = errors.New("llm: malformed response")
)

// PlaceholderProvider is used when no provider is configured.
type PlaceholderProvider struct{}

// Classify returns ErrNotImplemented.
func (PlaceholderProvider) Classify(ctx context.Context, signal SignalInput, repoContext string) (Classification, error) {
	return Classification{}, ErrNotImplemented
}

// Draft returns ErrNotImplemented.
func (PlaceholderProvider) Draft(ctx context.Context, signal SignalInput, repoContext string) (Draft, error) {
	return Draft{}, ErrNotImplemented
}

var _ Provider = PlaceholderProvider{}
