package issues

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"issue-scout/internal/repos"
	"issue-scout/internal/shared/telemetry"
	"issue-scout/internal/signals"
)

// SignalLookup resolves a single signal.
type SignalLookup interface {
	GetByID(ctx context.Context, id string) (signals.Signal, error)
}

// Detail is a candidate with its source signal and repository.
type Detail struct {
	Candidate
	Signal     *signals.Signal   `json:"signal,omitempty"`
	Repository *repos.Repository `json:"repository,omitempty"`
}

// Service manages review of issue candidates.
type Service struct {
	repo    Repo
	signals SignalLookup
	repos   RepositoryLookup
	now     func() time.Time
}

// NewService constructs a Service. signals and repos may be nil; Get then omits them.
func NewService(repo Repo, signals SignalLookup, repos RepositoryLookup) *Service {
	return &Service{
		repo:    repo,
		signals: signals,
		repos:   repos,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// List returns candidates ordered by confidence, highest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Candidate, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidInput, filter.Status)
	}
	return s.repo.List(ctx, filter)
}

// Get returns a candidate with its signal and repository when they still exist.
func (s *Service) Get(ctx context.Context, id string) (Detail, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	d := Detail{Candidate: c}
	if s.signals != nil && c.SignalID != nil {
		sig, err := s.signals.GetByID(ctx, *c.SignalID)
		switch {
		case err == nil:
			d.Signal = &sig
		case !errors.Is(err, signals.ErrNotFound):
			return Detail{}, err
		}
	}
	if s.repos != nil {
		repo, err := s.repos.GetByID(ctx, c.RepositoryID)
		switch {
		case err == nil:
			d.Repository = &repo
		case !errors.Is(err, repos.ErrNotFound):
			return Detail{}, err
		}
	}
	return d, nil
}

// Update applies the non-empty fields of patch.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (Candidate, error) {
	if patch.Status != "" && !patch.Status.Valid() {
		return Candidate{}, fmt.Errorf("%w: status %q", ErrInvalidInput, patch.Status)
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Candidate{}, err
	}
	if strings.TrimSpace(patch.Title) != "" {
		c.Title = patch.Title
	}
	if strings.TrimSpace(patch.Body) != "" {
		c.Body = patch.Body
	}
	if patch.Status != "" {
		c.Status = patch.Status
	}
	c.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, c); err != nil {
		return Candidate{}, err
	}
	return c, nil
}

// Publish marks a candidate published. The issue itself is opened by the user on the code
// host; url, when given, records where it landed.
func (s *Service) Publish(ctx context.Context, id, url string) (Candidate, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Candidate{}, err
	}
	c.Status = StatusPublished
	if u := strings.TrimSpace(url); u != "" {
		c.PublishedURL = &u
	}
	c.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, c); err != nil {
		return Candidate{}, err
	}
	telemetry.Info("issues.published", map[string]any{
		"candidate_id":  c.ID,
		"repository_id": c.RepositoryID,
	})
	return c, nil
}
