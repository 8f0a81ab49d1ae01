package scans

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issue-scout/internal/codehost"
	"issue-scout/internal/issues"
	"issue-scout/internal/repos"
	"issue-scout/internal/signals"
	"issue-scout/internal/structure"
)

type fakeHost struct {
	mu       sync.Mutex
	meta     codehost.RepoMetadata
	tree     []codehost.TreeEntry
	treeErr  error
	blobs    map[string]string
	blobErrs map[string]error
	fetched  []string
	onBlob   func(ctx context.Context, url string) error
}

func (f *fakeHost) GetRepoMetadata(ctx context.Context, owner, name string) (codehost.RepoMetadata, error) {
	return f.meta, nil
}

func (f *fakeHost) GetTree(ctx context.Context, owner, name, branch string) ([]codehost.TreeEntry, error) {
	if f.treeErr != nil {
		return nil, f.treeErr
	}
	return f.tree, nil
}

func (f *fakeHost) GetBlob(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	hook := f.onBlob
	f.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, url); err != nil {
			return "", err
		}
	}
	if err := f.blobErrs[url]; err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString([]byte(f.blobs[url])), nil
}

func (f *fakeHost) fetchedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

type fakePipeline struct {
	calls atomic.Int32

	mu    sync.Mutex
	block func(ctx context.Context) error
}

func (p *fakePipeline) ProcessSignals(ctx context.Context, repositoryID string) (issues.RunResult, error) {
	p.calls.Add(1)
	p.mu.Lock()
	block := p.block
	p.mu.Unlock()
	if block != nil {
		if err := block(ctx); err != nil {
			return issues.RunResult{}, err
		}
	}
	return issues.RunResult{}, nil
}

func (p *fakePipeline) setBlock(fn func(ctx context.Context) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.block = fn
}

type harness struct {
	coord    *Coordinator
	jobs     *MemoryRepo
	repos    *repos.MemoryRepo
	signals  *signals.MemoryRepo
	host     *fakeHost
	pipeline *fakePipeline

	mu     sync.Mutex
	phases map[string][]Phase
}

func newHarness(t *testing.T, host *fakeHost) *harness {
	t.Helper()
	ctx := context.Background()
	repoStore := repos.NewMemoryRepo()
	now := time.Now().UTC()
	require.NoError(t, repoStore.Create(ctx, repos.Repository{
		ID:            "repo-1",
		Owner:         "acme",
		Name:          "widgets",
		Language:      "Unknown",
		DefaultBranch: "main",
		ScanStatus:    repos.ScanStatusIdle,
		IgnoredPaths:  repos.DefaultIgnoredPaths(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}))

	h := &harness{
		jobs:     NewMemoryRepo(),
		repos:    repoStore,
		signals:  signals.NewMemoryRepo(),
		host:     host,
		pipeline: &fakePipeline{},
		phases:   make(map[string][]Phase),
	}
	h.coord = NewCoordinator(Deps{
		Jobs:      h.jobs,
		Repos:     repoStore,
		Signals:   h.signals,
		Hosts:     codehost.StaticFactory(host),
		Analyzer:  structure.NewAnalyzer(structure.DefaultHeuristics()),
		Pipeline:  h.pipeline,
		BatchSize: 5,
	})
	h.coord.onPhase = func(jobID string, p Phase) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.phases[jobID] = append(h.phases[jobID], p)
	}
	return h
}

func (h *harness) phasesOf(jobID string) []Phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Phase(nil), h.phases[jobID]...)
}

func (h *harness) wait(t *testing.T, jobID string) ScanJob {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.coord.Wait(ctx, jobID))
	job, err := h.jobs.GetByID(context.Background(), jobID)
	require.NoError(t, err)
	return job
}

func srcTree(files []structure.CategorizedFile) []codehost.TreeEntry {
	tree := []codehost.TreeEntry{{Path: "src", Type: codehost.EntryTree}}
	for _, f := range files {
		tree = append(tree, codehost.TreeEntry{Path: f.Path, Type: codehost.EntryBlob, URL: f.URL})
	}
	return tree
}

func urlsOf(files []structure.CategorizedFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.URL
	}
	return out
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for runner")
	}
}

// blockOnce makes the first fetch of url hang until the run is cancelled.
func blockOnce(url string) (func(ctx context.Context, u string) error, <-chan struct{}) {
	reached := make(chan struct{})
	var blocked atomic.Bool
	return func(ctx context.Context, u string) error {
		if u != url || !blocked.CompareAndSwap(false, true) {
			return nil
		}
		close(reached)
		<-ctx.Done()
		return ctx.Err()
	}, reached
}

func TestTriggerRunsAllPhasesToCompletion(t *testing.T) {
	host := &fakeHost{
		meta: codehost.RepoMetadata{Stars: 42, Language: "TypeScript", DefaultBranch: "main"},
		tree: []codehost.TreeEntry{
			{Path: "src", Type: codehost.EntryTree},
			{Path: "src/a.ts", Type: codehost.EntryBlob, URL: "blob://a"},
			{Path: "src/b.ts", Type: codehost.EntryBlob, URL: "blob://b"},
			{Path: "package.json", Type: codehost.EntryBlob, URL: "blob://pkg"},
			{Path: "node_modules/x/index.js", Type: codehost.EntryBlob, URL: "blob://nm"},
		},
		blobs: map[string]string{
			"blob://a":   "// TODO: handle retries\nconst x = 1\n",
			"blob://b":   "const y = 2\n",
			"blob://pkg": "{}",
		},
	}
	h := newHarness(t, host)

	job, err := h.coord.Trigger(context.Background(), "repo-1", "user-1", false)
	require.NoError(t, err)
	got := h.wait(t, job.ID)

	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, StageCompleted, got.CurrentPhase)
	assert.Equal(t, 100, got.ProgressPercentage)
	assert.Equal(t, 1, got.SignalsFound)
	assert.Nil(t, got.Cursor, "cursor is cleared on completion")
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, []Phase{PhaseTree, PhaseFiles, PhaseSignals, PhaseLLM}, h.phasesOf(job.ID))
	assert.NotContains(t, host.fetchedURLs(), "blob://nm")
	assert.EqualValues(t, 1, h.pipeline.calls.Load())

	last := -1
	for _, ev := range got.ProgressLog {
		assert.GreaterOrEqual(t, ev.Percentage, last, "event %q lowered progress", ev.Message)
		last = ev.Percentage
	}
	require.NotEmpty(t, got.ProgressLog)
	assert.Equal(t, "Initializing scan...", got.ProgressLog[0].Message)
	assert.Equal(t, "Scan completed successfully", got.ProgressLog[len(got.ProgressLog)-1].Message)

	count, err := h.signals.CountByRepository(context.Background(), "repo-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	repo, err := h.repos.GetByID(context.Background(), "repo-1")
	require.NoError(t, err)
	assert.Equal(t, repos.ScanStatusCompleted, repo.ScanStatus)
	assert.NotNil(t, repo.LastScanAt)
	assert.Equal(t, 42, repo.Stars)
	assert.Equal(t, "TypeScript", repo.Language)
}

func TestResumeProcessesOnlyRemainingFiles(t *testing.T) {
	files := testFiles(20)
	host := &fakeHost{}
	h := newHarness(t, host)

	now := time.Now().UTC()
	cur, err := NewCursor(now).EnterFiles(files, now)
	require.NoError(t, err)
	raw, err := cur.Checkpoint(7, files[6].Path, now).Encode()
	require.NoError(t, err)
	seedJob(t, h.jobs, ScanJob{ID: "job-old", Status: StatusFailed, Cursor: raw, SignalsFound: 4, ProgressPercentage: 34})

	job, err := h.coord.Resume(context.Background(), "repo-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "job-old", job.ID)

	got := h.wait(t, job.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, urlsOf(files[7:]), host.fetchedURLs())
	assert.Equal(t, []Phase{PhaseFiles, PhaseSignals, PhaseLLM}, h.phasesOf(job.ID))
	assert.Equal(t, 4, got.SignalsFound)
	assert.Equal(t, "Resuming scan from previous position", got.ProgressLog[0].Message)
}

func TestCancelPreservesCursorForResume(t *testing.T) {
	files := testFiles(5)
	hook, reached := blockOnce(files[2].URL)
	host := &fakeHost{tree: srcTree(files), onBlob: hook}
	h := newHarness(t, host)

	job, err := h.coord.Trigger(context.Background(), "repo-1", "user-1", false)
	require.NoError(t, err)
	waitFor(t, reached)

	cancelled, err := h.coord.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, cancelled.Status)
	assert.Equal(t, StageCancelled, cancelled.CurrentPhase)
	assert.Equal(t, "Scan cancelled by user", cancelled.ProgressLog[len(cancelled.ProgressLog)-1].Message)

	cur, err := DecodeCursor(cancelled.Cursor)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, PhaseFiles, cur.Phase)
	assert.Equal(t, 2, cur.FilesProcessed)

	repo, err := h.repos.GetByID(context.Background(), "repo-1")
	require.NoError(t, err)
	assert.Equal(t, repos.ScanStatusFailed, repo.ScanStatus)

	before := len(host.fetchedURLs())
	resumed, err := h.coord.Resume(context.Background(), "repo-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, resumed.ID)
	got := h.wait(t, job.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, urlsOf(files[2:]), host.fetchedURLs()[before:])
	assert.GreaterOrEqual(t, got.ProgressPercentage, cancelled.ProgressPercentage)
}

func TestCancelWithoutActiveScan(t *testing.T) {
	h := newHarness(t, &fakeHost{})
	_, err := h.coord.CancelRepository(context.Background(), "repo-1")
	assert.ErrorIs(t, err, ErrNotActive)

	seedJob(t, h.jobs, ScanJob{ID: "done", Status: StatusCompleted})
	_, err = h.coord.Cancel(context.Background(), "done")
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestTriggerRejectsSecondRunWhileActive(t *testing.T) {
	files := testFiles(3)
	hook, reached := blockOnce(files[0].URL)
	h := newHarness(t, &fakeHost{tree: srcTree(files), onBlob: hook})

	job, err := h.coord.Trigger(context.Background(), "repo-1", "user-1", false)
	require.NoError(t, err)
	waitFor(t, reached)

	_, err = h.coord.Trigger(context.Background(), "repo-1", "user-2", false)
	assert.ErrorIs(t, err, ErrScanInProgress)

	_, err = h.coord.CancelRepository(context.Background(), "repo-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, h.wait(t, job.ID).Status)
}

func TestResumeWithoutCursor(t *testing.T) {
	h := newHarness(t, &fakeHost{})
	seedJob(t, h.jobs, ScanJob{ID: "old", Status: StatusFailed})

	_, err := h.coord.Resume(context.Background(), "repo-1", "user-1")
	assert.ErrorIs(t, err, ErrNothingToResume)

	_, err = h.coord.Resume(context.Background(), "missing", "user-1")
	assert.ErrorIs(t, err, repos.ErrNotFound)
}

func TestTriggerSupersedesOrphanedActiveJob(t *testing.T) {
	h := newHarness(t, &fakeHost{tree: srcTree(testFiles(1))})
	seedJob(t, h.jobs, ScanJob{ID: "orphan", Status: StatusActive})

	job, err := h.coord.Trigger(context.Background(), "repo-1", "user-1", false)
	require.NoError(t, err)
	assert.NotEqual(t, "orphan", job.ID)
	assert.Equal(t, StatusCompleted, h.wait(t, job.ID).Status)

	orphan, err := h.jobs.GetByID(context.Background(), "orphan")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, orphan.Status)
	assert.Equal(t, "superseded by a new scan", orphan.LastError)
}

func TestCorruptCursorRestartsFromTree(t *testing.T) {
	h := newHarness(t, &fakeHost{tree: srcTree(testFiles(2))})
	seedJob(t, h.jobs, ScanJob{ID: "bad", Status: StatusFailed, Cursor: json.RawMessage(`{"version":9,"phase":"files"}`)})

	job, err := h.coord.Resume(context.Background(), "repo-1", "user-1")
	require.NoError(t, err)
	got := h.wait(t, job.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, []Phase{PhaseTree, PhaseFiles, PhaseSignals, PhaseLLM}, h.phasesOf(job.ID))
}

func TestTreeFailureMarksJobFailed(t *testing.T) {
	h := newHarness(t, &fakeHost{treeErr: errors.New("tree exploded")})

	job, err := h.coord.Trigger(context.Background(), "repo-1", "user-1", false)
	require.NoError(t, err)
	got := h.wait(t, job.ID)

	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.LastError, "tree exploded")
	assert.Contains(t, got.ProgressLog[len(got.ProgressLog)-1].Message, "Scan failed: ")

	repo, err := h.repos.GetByID(context.Background(), "repo-1")
	require.NoError(t, err)
	assert.Equal(t, repos.ScanStatusFailed, repo.ScanStatus)
}

func TestFileErrorsAreSkipped(t *testing.T) {
	files := testFiles(3)
	host := &fakeHost{
		tree:     srcTree(files),
		blobs:    map[string]string{files[0].URL: "# FIXME: broken", files[2].URL: "// HACK: temporary"},
		blobErrs: map[string]error{files[1].URL: errors.New("boom")},
	}
	h := newHarness(t, host)

	job, err := h.coord.Trigger(context.Background(), "repo-1", "user-1", false)
	require.NoError(t, err)
	got := h.wait(t, job.ID)

	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 2, got.SignalsFound)
	assert.Equal(t, urlsOf(files), host.fetchedURLs())
}

func TestShutdownLeavesJobResumable(t *testing.T) {
	files := testFiles(4)
	hook, reached := blockOnce(files[1].URL)
	h := newHarness(t, &fakeHost{tree: srcTree(files), onBlob: hook})

	job, err := h.coord.Trigger(context.Background(), "repo-1", "user-1", false)
	require.NoError(t, err)
	waitFor(t, reached)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.coord.Shutdown(ctx))

	got, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, ErrShutdown.Error(), got.LastError)

	resumable, err := h.jobs.LatestResumable(context.Background(), "repo-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, resumable.ID)
	cur, err := DecodeCursor(resumable.Cursor)
	require.NoError(t, err)
	assert.Equal(t, 1, cur.FilesProcessed)
}

func TestCancelDuringSignalProcessingResumesAtSignals(t *testing.T) {
	files := testFiles(2)
	host := &fakeHost{tree: srcTree(files)}
	h := newHarness(t, host)
	reached := make(chan struct{})
	var once sync.Once
	h.pipeline.setBlock(func(ctx context.Context) error {
		once.Do(func() { close(reached) })
		<-ctx.Done()
		return ctx.Err()
	})

	job, err := h.coord.Trigger(context.Background(), "repo-1", "user-1", false)
	require.NoError(t, err)
	waitFor(t, reached)

	cancelled, err := h.coord.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, cancelled.Status)
	assert.Equal(t, StageCancelled, cancelled.CurrentPhase)
	cur, err := DecodeCursor(cancelled.Cursor)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, PhaseSignals, cur.Phase)

	h.pipeline.setBlock(nil)
	fetched := len(host.fetchedURLs())
	_, err = h.coord.Resume(context.Background(), "repo-1", "user-1")
	require.NoError(t, err)
	got := h.wait(t, job.ID)

	assert.Equal(t, StatusCompleted, got.Status)
	assert.Len(t, host.fetchedURLs(), fetched, "resume must not rescan files")
	assert.Equal(t, []Phase{PhaseTree, PhaseFiles, PhaseSignals, PhaseSignals, PhaseLLM}, h.phasesOf(job.ID))
	assert.EqualValues(t, 2, h.pipeline.calls.Load())
}

func TestCancelBetweenPhasesStopsBeforeNextPhase(t *testing.T) {
	h := newHarness(t, &fakeHost{tree: srcTree(testFiles(1))})
	reached := make(chan struct{})
	release := make(chan struct{})
	record := h.coord.onPhase
	h.coord.onPhase = func(jobID string, p Phase) {
		record(jobID, p)
		if p == PhaseSignals {
			close(reached)
			<-release
		}
	}

	job, err := h.coord.Trigger(context.Background(), "repo-1", "user-1", false)
	require.NoError(t, err)
	waitFor(t, reached)

	type result struct {
		job ScanJob
		err error
	}
	done := make(chan result, 1)
	go func() {
		j, err := h.coord.Cancel(context.Background(), job.ID)
		done <- result{j, err}
	}()
	require.Eventually(t, func() bool {
		h.coord.mu.Lock()
		defer h.coord.mu.Unlock()
		r := h.coord.running[job.ID]
		return r != nil && r.ctx.Err() != nil
	}, 5*time.Second, 5*time.Millisecond)
	close(release)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, StageCancelled, res.job.CurrentPhase)
	assert.Zero(t, h.pipeline.calls.Load(), "signal phase must not start after cancel")
	cur, err := DecodeCursor(res.job.Cursor)
	require.NoError(t, err)
	assert.Equal(t, PhaseSignals, cur.Phase)
}

func TestCancelStateSurvivesCallerTimeout(t *testing.T) {
	files := testFiles(3)
	release := make(chan struct{})
	reached := make(chan struct{})
	var once sync.Once
	host := &fakeHost{tree: srcTree(files), onBlob: func(ctx context.Context, url string) error {
		once.Do(func() {
			close(reached)
			<-release
		})
		return nil
	}}
	h := newHarness(t, host)

	job, err := h.coord.Trigger(context.Background(), "repo-1", "user-1", false)
	require.NoError(t, err)
	waitFor(t, reached)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.coord.Cancel(ctx, job.ID)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	got := h.wait(t, job.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, StageCancelled, got.CurrentPhase)
	assert.Equal(t, "cancelled by user", got.LastError)
	assert.Equal(t, "Scan cancelled by user", got.ProgressLog[len(got.ProgressLog)-1].Message)
	assert.False(t, h.coord.isRunning(job.ID))

	repo, err := h.repos.GetByID(context.Background(), "repo-1")
	require.NoError(t, err)
	assert.Equal(t, repos.ScanStatusFailed, repo.ScanStatus)

	_, err = h.coord.Cancel(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrNotActive)
}
