package issues

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"issue-scout/internal/llm"
	"issue-scout/internal/repos"
	"issue-scout/internal/shared/metrics"
	"issue-scout/internal/shared/telemetry"
	"issue-scout/internal/signals"
	"issue-scout/internal/usage"
)

const (
	// DefaultMaxIssuesPerScan caps candidates drafted by one pipeline run.
	DefaultMaxIssuesPerScan = 3
	signalWindow            = 50
	minConfidence           = 0.7
)

// SignalSource lists recent signals of a repository.
type SignalSource interface {
	ListRecent(ctx context.Context, repositoryID string, limit int) ([]signals.Signal, error)
}

// RepositoryLookup resolves a repository for prompt context.
type RepositoryLookup interface {
	GetByID(ctx context.Context, id string) (repos.Repository, error)
}

// UsageRecorder appends LLM usage rows.
type UsageRecorder interface {
	Record(ctx context.Context, e usage.Entry) (usage.Record, error)
}

// RunResult summarizes one pipeline run.
type RunResult struct {
	Considered int `json:"considered"`
	Skipped    int `json:"skipped"`
	Classified int `json:"classified"`
	Drafted    int `json:"drafted"`
	Failed     int `json:"failed"`
}

// Pipeline turns stored signals into draft candidates with an LLM provider.
type Pipeline struct {
	Signals    SignalSource
	Repos      RepositoryLookup
	Candidates Repo
	Provider   llm.Provider
	Usage      UsageRecorder
	// MaxIssuesPerScan defaults to DefaultMaxIssuesPerScan when zero.
	MaxIssuesPerScan int

	now func() time.Time
}

// ProcessSignals classifies the most recent signals and drafts candidates for the worthy
// ones until the per-run cap is reached. Provider failures skip the signal; storage
// failures abort the run.
func (p *Pipeline) ProcessSignals(ctx context.Context, repositoryID string) (RunResult, error) {
	var res RunResult
	repo, err := p.Repos.GetByID(ctx, repositoryID)
	if err != nil {
		return res, err
	}
	repoContext := fmt.Sprintf("Repo: %s, Language: %s", repo.FullName(), repo.Language)

	recent, err := p.Signals.ListRecent(ctx, repositoryID, signalWindow)
	if err != nil {
		return res, fmt.Errorf("list signals: %w", err)
	}

	maxIssues := p.MaxIssuesPerScan
	if maxIssues <= 0 {
		maxIssues = DefaultMaxIssuesPerScan
	}

	for _, sig := range recent {
		if res.Drafted >= maxIssues {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Considered++

		if _, err := p.Candidates.FindBySignal(ctx, sig.ID); err == nil {
			res.Skipped++
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return res, fmt.Errorf("find candidate: %w", err)
		}

		drafted, err := p.processOne(ctx, repositoryID, repoContext, sig, &res)
		if err != nil {
			return res, err
		}
		if drafted {
			res.Drafted++
		}
	}

	telemetry.Info("issues.pipeline_done", map[string]any{
		"repository_id": repositoryID,
		"considered":    res.Considered,
		"skipped":       res.Skipped,
		"classified":    res.Classified,
		"drafted":       res.Drafted,
		"failed":        res.Failed,
	})
	return res, nil
}

// processOne returns an error only for failures that must abort the run.
func (p *Pipeline) processOne(ctx context.Context, repositoryID, repoContext string, sig signals.Signal, res *RunResult) (bool, error) {
	input := llm.SignalInput{
		ID:         sig.ID,
		Type:       sig.Type,
		FilePath:   sig.FilePath,
		LineNumber: sig.LineNumber,
		Snippet:    sig.Snippet,
		Context:    sig.Context,
	}
	fields := map[string]any{
		"repository_id": repositoryID,
		"signal_id":     sig.ID,
		"file_path":     sig.FilePath,
	}

	cls, err := p.Provider.Classify(ctx, input, repoContext)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		metrics.ObserveLLMCall(string(usage.PhaseClassification), "error")
		res.Failed++
		fields["error"] = err
		telemetry.Warn("issues.classify_failed", fields)
		return false, nil
	}
	metrics.ObserveLLMCall(string(usage.PhaseClassification), "ok")
	res.Classified++
	if err := p.recordUsage(ctx, repositoryID, usage.PhaseClassification, cls.Usage); err != nil {
		return false, err
	}

	if !cls.Worthy || cls.Confidence < minConfidence {
		res.Skipped++
		return false, nil
	}

	draft, err := p.Provider.Draft(ctx, input, repoContext)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		metrics.ObserveLLMCall(string(usage.PhaseDrafting), "error")
		res.Failed++
		fields["error"] = err
		telemetry.Warn("issues.draft_failed", fields)
		return false, nil
	}
	metrics.ObserveLLMCall(string(usage.PhaseDrafting), "ok")
	if err := p.recordUsage(ctx, repositoryID, usage.PhaseDrafting, draft.Usage); err != nil {
		return false, err
	}

	now := p.clock()
	signalID := sig.ID
	candidate := Candidate{
		ID:              uuid.NewString(),
		RepositoryID:    repositoryID,
		SignalID:        &signalID,
		Title:           orDefault(draft.Title, "Issue from "+sig.FilePath),
		Body:            orDefault(draft.Body, "No description provided."),
		Category:        orDefault(draft.Category, CategoryBug),
		ConfidenceScore: cls.Confidence,
		Status:          StatusDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := p.Candidates.Create(ctx, candidate); err != nil {
		if errors.Is(err, ErrCandidateExists) {
			res.Skipped++
			return false, nil
		}
		return false, fmt.Errorf("create candidate: %w", err)
	}
	metrics.IncCandidatesDrafted()
	fields["candidate_id"] = candidate.ID
	fields["confidence"] = candidate.ConfidenceScore
	telemetry.Info("issues.candidate_drafted", fields)
	return true, nil
}

func (p *Pipeline) recordUsage(ctx context.Context, repositoryID string, phase usage.Phase, u llm.TokenUsage) error {
	if p.Usage == nil {
		return nil
	}
	_, err := p.Usage.Record(ctx, usage.Entry{
		RepositoryID: repositoryID,
		Phase:        phase,
		Provider:     u.Provider,
		Model:        u.Model,
		TokensIn:     u.InputTokens,
		TokensOut:    u.OutputTokens,
	})
	if err != nil {
		return fmt.Errorf("record %s usage: %w", phase, err)
	}
	return nil
}

func (p *Pipeline) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now().UTC()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
