package issues

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"

	"issue-scout/internal/repos"
	"issue-scout/internal/signals"
)

func seedCandidates(t *testing.T) (*Service, *MemoryRepo) {
	t.Helper()
	ctx := context.Background()
	repo := NewMemoryRepo()
	sigs := signals.NewMemoryRepo()
	repoStore := repos.NewMemoryRepo()
	if err := repoStore.Create(ctx, repos.Repository{ID: "r1", Owner: "acme", Name: "widgets"}); err != nil {
		t.Fatalf("Create repo: %v", err)
	}
	if err := sigs.Create(ctx, signals.Signal{ID: "s1", RepositoryID: "r1", Type: signals.TypeFixme}); err != nil {
		t.Fatalf("Create signal: %v", err)
	}
	sid := "s1"
	for _, c := range []Candidate{
		{ID: "c1", RepositoryID: "r1", SignalID: &sid, Title: "low", ConfidenceScore: 0.7, Status: StatusDraft},
		{ID: "c2", RepositoryID: "r1", Title: "high", ConfidenceScore: 0.95, Status: StatusDraft},
		{ID: "c3", RepositoryID: "r2", Title: "other", ConfidenceScore: 0.8, Status: StatusApproved},
	} {
		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("Create candidate: %v", err)
		}
	}
	return NewService(repo, sigs, repoStore), repo
}

func TestServiceListOrdersByConfidence(t *testing.T) {
	svc, _ := seedCandidates(t)
	got, err := svc.List(context.Background(), ListFilter{RepositoryID: "r1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c2" || got[1].ID != "c1" {
		t.Fatalf("unexpected order %+v", got)
	}
	if _, err := svc.List(context.Background(), ListFilter{Status: "bogus"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestServiceGetIncludesSignalAndRepository(t *testing.T) {
	svc, _ := seedCandidates(t)
	d, err := svc.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Signal == nil || d.Signal.Type != signals.TypeFixme {
		t.Fatalf("expected signal, got %+v", d.Signal)
	}
	if d.Repository == nil || d.Repository.FullName() != "acme/widgets" {
		t.Fatalf("expected repository, got %+v", d.Repository)
	}
}

func TestServiceUpdateAppliesOnlyNonEmptyFields(t *testing.T) {
	svc, _ := seedCandidates(t)
	ctx := context.Background()

	got, err := svc.Update(ctx, "c1", Patch{Body: "new body"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "low" || got.Body != "new body" || got.Status != StatusDraft {
		t.Fatalf("unexpected candidate %+v", got)
	}
	if _, err := svc.Update(ctx, "c1", Patch{Status: "shipped"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Update(ctx, "nope", Patch{Title: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServicePublish(t *testing.T) {
	svc, repo := seedCandidates(t)
	got, err := svc.Publish(context.Background(), "c2", "https://github.com/acme/widgets/issues/7")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got.Status != StatusPublished || got.PublishedURL == nil {
		t.Fatalf("unexpected candidate %+v", got)
	}
	stored, _ := repo.GetByID(context.Background(), "c2")
	if stored.Status != StatusPublished {
		t.Fatalf("expected stored status published, got %s", stored.Status)
	}
}

func TestHandlerRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := seedCandidates(t)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/issues?repo_id=r1&status=draft", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"id":"c2"`) {
		t.Fatalf("unexpected list response %d %s", resp.Code, resp.Body.String())
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/issues/c1", strings.NewReader(`{"title":"Better title"}`))
	req.Header.Set("Content-Type", "application/json")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "Better title") {
		t.Fatalf("unexpected patch response %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/issues/c1/publish", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"success":true`) {
		t.Fatalf("unexpected publish response %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/issues/missing", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestPGRepoCreateMapsSignalConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now().UTC()
	sid := "s1"
	mock.ExpectExec("INSERT INTO issue_candidates").
		WithArgs("c1", "r1", "s1", "t", "b", CategoryBug, 0.8, StatusDraft, nil, now, now).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "issue_candidates_signal_key"})

	err = (&PGRepo{DB: db}).Create(context.Background(), Candidate{
		ID: "c1", RepositoryID: "r1", SignalID: &sid, Title: "t", Body: "b",
		Category: CategoryBug, ConfidenceScore: 0.8, Status: StatusDraft, CreatedAt: now, UpdatedAt: now,
	})
	if !errors.Is(err, ErrCandidateExists) {
		t.Fatalf("expected ErrCandidateExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoListFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "repository_id", "signal_id", "title", "body", "category", "confidence_score", "status", "published_url", "created_at", "updated_at"}).
		AddRow("c2", "r1", nil, "t", "b", "bug", 0.9, "draft", nil, now, now)
	mock.ExpectQuery("SELECT (.+) FROM issue_candidates").
		WithArgs("r1", "draft").
		WillReturnRows(rows)

	got, err := (&PGRepo{DB: db}).List(context.Background(), ListFilter{RepositoryID: "r1", Status: StatusDraft})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].SignalID != nil || got[0].Status != StatusDraft {
		t.Fatalf("unexpected candidates %+v", got)
	}
}
