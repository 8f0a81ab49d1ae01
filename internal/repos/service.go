package repos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"issue-scout/internal/codehost"
	"issue-scout/internal/shared/telemetry"
	"issue-scout/internal/shared/util"
)

// LanguageDetector guesses a repository language from its tree.
type LanguageDetector interface {
	DominantLanguage(tree []codehost.TreeEntry) string
}

// DeleteHook runs before a repository is removed.
type DeleteHook func(ctx context.Context, repositoryID string) error

// Service manages repository records.
type Service struct {
	repo     Repo
	hosts    codehost.Factory
	detector LanguageDetector
	hooks    []DeleteHook
	now      func() time.Time
}

// NewService constructs a Service. detector may be nil.
func NewService(repo Repo, hosts codehost.Factory, detector LanguageDetector) *Service {
	return &Service{
		repo:     repo,
		hosts:    hosts,
		detector: detector,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// OnDelete registers a hook run before every delete.
func (s *Service) OnDelete(h DeleteHook) {
	s.hooks = append(s.hooks, h)
}

// Add returns the existing record for owner/name, or fetches metadata from the code host
// and creates one. created reports whether a new record was stored.
func (s *Service) Add(ctx context.Context, requesterID, owner, name string) (repo Repository, created bool, err error) {
	owner, err = util.CleanSlug(owner)
	if err != nil {
		return Repository{}, false, fmt.Errorf("%w: owner", ErrInvalidInput)
	}
	name, err = util.CleanSlug(name)
	if err != nil {
		return Repository{}, false, fmt.Errorf("%w: name", ErrInvalidInput)
	}

	existing, err := s.repo.GetByOwnerName(ctx, owner, name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Repository{}, false, err
	}

	meta, err := s.fetchMetadata(ctx, requesterID, owner, name)
	if err != nil {
		return Repository{}, false, err
	}

	now := s.now()
	repo = Repository{
		ID:            uuid.NewString(),
		Owner:         owner,
		Name:          name,
		Stars:         meta.Stars,
		Language:      meta.Language,
		DefaultBranch: meta.DefaultBranch,
		ScanStatus:    ScanStatusIdle,
		IgnoredPaths:  DefaultIgnoredPaths(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, repo); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			// Lost a race with a concurrent add.
			existing, getErr := s.repo.GetByOwnerName(ctx, owner, name)
			if getErr == nil {
				return existing, false, nil
			}
		}
		return Repository{}, false, err
	}

	telemetry.Info("repos.added", map[string]any{
		"repository_id": repo.ID,
		"repository":    repo.FullName(),
		"language":      repo.Language,
		"stars":         repo.Stars,
		"user_id":       requesterID,
	})
	return repo, true, nil
}

func (s *Service) fetchMetadata(ctx context.Context, requesterID, owner, name string) (Metadata, error) {
	client, err := s.hosts.ForRequester(ctx, requesterID)
	if err != nil {
		return Metadata{}, fmt.Errorf("code host client: %w", err)
	}
	raw, err := client.GetRepoMetadata(ctx, owner, name)
	if err != nil {
		return Metadata{}, fmt.Errorf("fetch repository metadata: %w", err)
	}

	meta := Metadata{
		Stars:         raw.Stars,
		Language:      strings.TrimSpace(raw.Language),
		DefaultBranch: strings.TrimSpace(raw.DefaultBranch),
	}
	if meta.DefaultBranch == "" {
		meta.DefaultBranch = defaultBranch
	}
	if meta.Language == "" && s.detector != nil {
		tree, err := client.GetTree(ctx, owner, name, meta.DefaultBranch)
		if err != nil {
			telemetry.Warn("repos.language_detect_failed", map[string]any{
				"repository": owner + "/" + name,
				"error":      err,
			})
		} else {
			meta.Language = s.detector.DominantLanguage(tree)
		}
	}
	if meta.Language == "" {
		meta.Language = defaultLanguage
	}
	return meta, nil
}

// Get returns a repository by id.
func (s *Service) Get(ctx context.Context, id string) (Repository, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns all repositories, most recently updated first.
func (s *Service) List(ctx context.Context) ([]Repository, error) {
	return s.repo.List(ctx)
}

// Delete runs the delete hooks and removes the repository.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	for _, h := range s.hooks {
		if err := h(ctx, id); err != nil {
			return err
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	telemetry.Info("repos.deleted", map[string]any{"repository_id": id})
	return nil
}
