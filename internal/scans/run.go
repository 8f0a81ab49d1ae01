package scans

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"issue-scout/internal/codehost"
	"issue-scout/internal/repos"
	"issue-scout/internal/shared/metrics"
	"issue-scout/internal/shared/telemetry"
	"issue-scout/internal/signals"
	"issue-scout/internal/structure"
)

// Percentages reported at phase boundaries. The files phase spans pctPlanned..pctFilesEnd.
const (
	pctTreeFetch   = 5
	pctTreeFetched = 10
	pctPlanned     = 15
	pctFilesSpan   = 55
	pctFilesEnd    = pctPlanned + pctFilesSpan
	pctLLMStart    = 75
	pctLLMDone     = 95
	pctComplete    = 100
)

type runState struct {
	job          ScanJob
	repo         repos.Repository
	client       codehost.Client
	cursor       Cursor
	signalsFound int
}

// Run executes a job's remaining phases starting from its persisted cursor and
// records the terminal state, including a user cancellation.
func (c *Coordinator) Run(ctx context.Context, jobID string) error {
	start := c.now()
	metrics.IncScanStarted()
	persist := context.WithoutCancel(ctx)

	job, err := c.jobs.GetByID(persist, jobID)
	if err != nil {
		return err
	}
	st := &runState{job: job, signalsFound: job.SignalsFound}

	err = c.prepare(ctx, st)
	if err == nil {
		err = c.runPhases(ctx, st)
	}
	metrics.ObserveScanDuration(c.now().Sub(start))

	switch {
	case err == nil:
		return c.complete(persist, st)
	case errors.Is(context.Cause(ctx), ErrCancelled):
		telemetry.Info("scan.run_cancelled", map[string]any{"scan_job_id": jobID, "phase": st.cursor.Phase})
		if _, merr := c.markCancelled(persist, jobID, job.RepositoryID); merr != nil {
			telemetry.Error("scan.cancel_persist_failed", map[string]any{"scan_job_id": jobID, "err": merr})
		}
		return ErrCancelled
	case errors.Is(context.Cause(ctx), ErrShutdown):
		c.fail(persist, jobID, job.RepositoryID, ErrShutdown)
		return ErrShutdown
	default:
		c.fail(persist, jobID, job.RepositoryID, err)
		return err
	}
}

func (c *Coordinator) prepare(ctx context.Context, st *runState) error {
	repo, err := c.repos.GetByID(ctx, st.job.RepositoryID)
	if err != nil {
		return fmt.Errorf("load repository: %w", err)
	}
	st.repo = repo

	cur, err := DecodeCursor(st.job.Cursor)
	switch {
	case errors.Is(err, ErrCursorCorrupt):
		telemetry.Warn("scan.cursor_corrupt", map[string]any{"scan_job_id": st.job.ID, "err": err})
		st.cursor = NewCursor(c.now())
	case err != nil:
		return err
	case cur == nil:
		st.cursor = NewCursor(c.now())
	default:
		st.cursor = *cur
	}

	client, err := c.hosts.ForRequester(ctx, st.job.RequestedBy)
	if err != nil {
		return fmt.Errorf("code host client: %w", err)
	}
	st.client = client
	return nil
}

func (c *Coordinator) runPhases(ctx context.Context, st *runState) error {
	for {
		if c.onPhase != nil {
			c.onPhase(st.job.ID, st.cursor.Phase)
		}
		if err := stopped(ctx); err != nil {
			return err
		}
		var err error
		switch st.cursor.Phase {
		case PhaseTree:
			err = c.runTree(ctx, st)
		case PhaseFiles:
			err = c.runFiles(ctx, st)
		case PhaseSignals:
			err = c.runSignals(ctx, st)
		case PhaseLLM:
			return nil
		default:
			return fmt.Errorf("%w: phase %q", ErrCursorCorrupt, st.cursor.Phase)
		}
		if err != nil {
			return err
		}
	}
}

func (c *Coordinator) runTree(ctx context.Context, st *runState) error {
	jobID := st.job.ID
	persist := context.WithoutCancel(ctx)

	_ = c.logEvent(persist, jobID, StageFetchingTree, "Fetching repository structure...", EventMeta{})
	c.setPercentage(persist, jobID, pctTreeFetch)

	meta, err := st.client.GetRepoMetadata(ctx, st.repo.Owner, st.repo.Name)
	if err != nil {
		return fmt.Errorf("fetch repository metadata: %w", err)
	}
	branch := meta.DefaultBranch
	if branch == "" {
		branch = st.repo.DefaultBranch
	}
	if branch == "" {
		branch = "main"
	}
	tree, err := st.client.GetTree(ctx, st.repo.Owner, st.repo.Name, branch)
	if err != nil {
		return fmt.Errorf("fetch tree: %w", err)
	}

	language := meta.Language
	if language == "" {
		language = c.analyzer.DominantLanguage(tree)
	}
	if language == "" {
		language = st.repo.Language
	}
	if err := c.repos.UpdateMetadata(persist, st.repo.ID, repos.Metadata{Stars: meta.Stars, Language: language, DefaultBranch: branch}); err != nil {
		return fmt.Errorf("update repository metadata: %w", err)
	}
	st.repo.Stars, st.repo.Language, st.repo.DefaultBranch = meta.Stars, language, branch

	_ = c.logEvent(persist, jobID, StageAnalyzingStructure,
		fmt.Sprintf("Found %s items in repository", humanize.Comma(int64(len(tree)))), EventMeta{})
	c.setPercentage(persist, jobID, pctTreeFetched)

	plan := c.analyzer.BuildPlan(tree, st.repo.IgnoredPaths)
	source, config, other := structure.CountByPriority(plan.Categorized)
	_ = c.logEvent(persist, jobID, StageScanningFiles,
		fmt.Sprintf("Will scan %d files (%d source, %d config, %d test)", len(plan.Files), source, config, other),
		EventMeta{TotalFiles: len(plan.Files)})
	c.setPercentage(persist, jobID, pctPlanned)

	next, err := st.cursor.EnterFiles(plan.Files, c.now())
	if err != nil {
		return err
	}
	return c.checkpoint(persist, st, next)
}

func (c *Coordinator) runFiles(ctx context.Context, st *runState) error {
	jobID := st.job.ID
	persist := context.WithoutCancel(ctx)
	files := st.cursor.Files.FilesToScan
	total := len(files)
	processed := st.cursor.FilesProcessed
	lastFile := st.cursor.LastProcessedFile

	for processed < total {
		end := min(processed+c.batchSize, total)
		for i := processed; i < end; i++ {
			if err := stopped(ctx); err != nil {
				_ = c.checkpoint(persist, st, st.cursor.Checkpoint(i, lastFile, c.now()))
				return err
			}
			file := files[i]
			if c.onFile != nil {
				c.onFile(jobID, i, file.Path)
			}
			_ = c.logEvent(persist, jobID, StageScanningFiles, "Scanning "+file.Path,
				EventMeta{FilesProcessed: i + 1, TotalFiles: total, CurrentFile: file.Path})

			found, err := c.scanFile(ctx, st, file)
			if err != nil {
				if stopped(ctx) != nil {
					_ = c.checkpoint(persist, st, st.cursor.Checkpoint(i, lastFile, c.now()))
					return stopped(ctx)
				}
				metrics.IncFileErrors()
				telemetry.Warn("scan.file_skipped", map[string]any{"scan_job_id": jobID, "path": file.Path, "err": err})
			} else if len(found) > 0 {
				if err := c.signals.CreateBatch(persist, found); err != nil {
					return fmt.Errorf("store signals: %w", err)
				}
				st.signalsFound += len(found)
				metrics.AddSignalsFound(len(found))
				_ = c.logEvent(persist, jobID, StageScanningFiles,
					fmt.Sprintf("Found %d signal(s) in %s", len(found), file.Path), EventMeta{})
			}
			lastFile = file.Path
		}
		processed = end
		if err := c.checkpoint(persist, st, st.cursor.Checkpoint(processed, lastFile, c.now())); err != nil {
			return err
		}
		c.setPercentage(persist, jobID, int(math.Floor(pctPlanned+float64(processed)/float64(total)*pctFilesSpan)))
	}
	if total == 0 {
		c.setPercentage(persist, jobID, pctFilesEnd)
	}

	_ = c.logEvent(persist, jobID, StageProcessingSignals,
		fmt.Sprintf("Scan complete. Found %d signals in %d files", st.signalsFound, total), EventMeta{})
	next, err := st.cursor.Advance(PhaseSignals, c.now())
	if err != nil {
		return err
	}
	return c.checkpoint(persist, st, next)
}

// scanFile fetches one blob and extracts its signals. Errors are per-file and skippable.
func (c *Coordinator) scanFile(ctx context.Context, st *runState, file structure.CategorizedFile) ([]signals.Signal, error) {
	encoded, err := st.client.GetBlob(ctx, file.URL)
	if err != nil {
		return nil, err
	}
	content, err := codehost.DecodeBlob(encoded)
	if err != nil {
		return nil, err
	}
	metrics.IncFilesScanned()

	found := c.extractor.Extract(content, file.Path)
	now := c.now()
	for i := range found {
		found[i].ID = uuid.NewString()
		found[i].RepositoryID = st.repo.ID
		found[i].CreatedAt = now
	}
	return found, nil
}

func (c *Coordinator) runSignals(ctx context.Context, st *runState) error {
	jobID := st.job.ID
	persist := context.WithoutCancel(ctx)

	_ = c.logEvent(persist, jobID, StageProcessingSignals, "Processing signals with AI...", EventMeta{})
	c.setPercentage(persist, jobID, pctLLMStart)

	res, err := c.pipeline.ProcessSignals(ctx, st.repo.ID)
	if err != nil {
		if stopped(ctx) != nil {
			return stopped(ctx)
		}
		return fmt.Errorf("process signals: %w", err)
	}
	telemetry.Info("scan.llm_done", map[string]any{"scan_job_id": jobID, "drafted": res.Drafted, "failed": res.Failed})

	_ = c.logEvent(persist, jobID, StageProcessingSignals, "AI processing complete", EventMeta{})
	c.setPercentage(persist, jobID, pctLLMDone)

	next, err := st.cursor.Advance(PhaseLLM, c.now())
	if err != nil {
		return err
	}
	return c.checkpoint(persist, st, next)
}

func (c *Coordinator) complete(ctx context.Context, st *runState) error {
	jobID := st.job.ID
	now := c.now()
	if err := c.jobs.UpdateStatus(ctx, jobID, StatusUpdate{Status: StatusCompleted, CurrentPhase: StageCompleted, CompletedAt: &now}); err != nil {
		return err
	}
	if err := c.jobs.SaveCursor(ctx, jobID, nil, st.signalsFound); err != nil {
		return err
	}
	_ = c.logEvent(ctx, jobID, StageCompleted, "Scan completed successfully", EventMeta{})
	c.setPercentage(ctx, jobID, pctComplete)
	if err := c.repos.UpdateScanStatus(ctx, st.repo.ID, repos.ScanStatusCompleted, &now); err != nil {
		telemetry.Warn("scan.repo_status_failed", map[string]any{"repository_id": st.repo.ID, "err": err})
	}
	metrics.IncScanCompleted()
	telemetry.Info("scan.completed", map[string]any{
		"scan_job_id":   jobID,
		"repository_id": st.repo.ID,
		"signals_found": st.signalsFound,
	})
	return nil
}

// fail marks the job failed. The cursor is left in place so the job can be resumed.
func (c *Coordinator) fail(ctx context.Context, jobID, repositoryID string, cause error) {
	msg := cause.Error()
	now := c.now()
	if err := c.jobs.UpdateStatus(ctx, jobID, StatusUpdate{Status: StatusFailed, CurrentPhase: StageFailed, CompletedAt: &now, LastError: &msg}); err != nil {
		telemetry.Error("scan.fail_write_failed", map[string]any{"scan_job_id": jobID, "err": err})
	}
	_ = c.logEvent(ctx, jobID, StageFailed, "Scan failed: "+msg, EventMeta{})
	if err := c.repos.UpdateScanStatus(ctx, repositoryID, repos.ScanStatusFailed, nil); err != nil {
		telemetry.Warn("scan.repo_status_failed", map[string]any{"repository_id": repositoryID, "err": err})
	}
	metrics.IncScanFailed()
	telemetry.Error("scan.failed", map[string]any{"scan_job_id": jobID, "repository_id": repositoryID, "err": cause})
}

func (c *Coordinator) checkpoint(ctx context.Context, st *runState, next Cursor) error {
	raw, err := next.Encode()
	if err != nil {
		return err
	}
	if err := c.jobs.SaveCursor(ctx, st.job.ID, raw, st.signalsFound); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	st.cursor = next
	return nil
}

// stopped returns the cancellation cause once ctx is done.
func stopped(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}
