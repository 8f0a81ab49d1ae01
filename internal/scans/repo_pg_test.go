package scans

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"issue-scout/internal/shared/util"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return &PGRepo{DB: sqlDB}, mock
}

func TestPGRepoSetProgressUsesGreatest(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`GREATEST\(progress_percentage, \$2\)`).
		WithArgs("job-1", 40).
		WillReturnRows(sqlmock.NewRows([]string{"progress_percentage"}).AddRow(55))

	got, err := repo.SetProgress(context.Background(), "job-1", 40)
	if err != nil {
		t.Fatalf("SetProgress: %v", err)
	}
	if got != 55 {
		t.Fatalf("expected stored value 55, got %d", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoSetProgressNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("UPDATE scan_jobs").WillReturnError(sql.ErrNoRows)

	if _, err := repo.SetProgress(context.Background(), "missing", 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoWithRepositoryLockTakesAdvisoryLock(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(util.LockKey("scan:repo-1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE scan_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.WithRepositoryLock(context.Background(), "repo-1", func(ctx context.Context, jobs Repo) error {
		return jobs.SaveCursor(ctx, "job-1", nil, 3)
	})
	if err != nil {
		t.Fatalf("WithRepositoryLock: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoWithRepositoryLockRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.WithRepositoryLock(context.Background(), "repo-1", func(ctx context.Context, jobs Repo) error {
		return ErrScanInProgress
	})
	if !errors.Is(err, ErrScanInProgress) {
		t.Fatalf("expected ErrScanInProgress, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCreateMapsActiveConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO scan_jobs").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "scan_jobs_one_active_per_repository"})

	now := time.Now().UTC()
	err := repo.Create(context.Background(), ScanJob{ID: "job-2", RepositoryID: "repo-1", Status: StatusActive, CreatedAt: now, UpdatedAt: now, StartedAt: now})
	if !errors.Is(err, ErrScanInProgress) {
		t.Fatalf("expected ErrScanInProgress, got %v", err)
	}
}

func TestPGRepoLatestResumable(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	cols := []string{"id", "repository_id", "requested_by", "status", "started_at", "completed_at", "signals_found", "cursor", "progress_percentage", "current_phase", "progress_log", "last_error", "created_at", "updated_at"}
	mock.ExpectQuery(`status <> 'completed' AND cursor IS NOT NULL`).
		WithArgs("repo-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"job-1", "repo-1", "user-1", "failed", now, nil, 6,
			[]byte(`{"version":1,"phase":"signals","filesProcessed":0,"totalFiles":0,"timestamp":"2026-01-01T00:00:00Z"}`),
			70, "cancelled",
			[]byte(`[{"timestamp":"2026-01-01T00:00:00Z","phase":"cancelled","message":"Scan cancelled by user","percentage":70}]`),
			"cancelled by user", now, now,
		))

	job, err := repo.LatestResumable(context.Background(), "repo-1")
	if err != nil {
		t.Fatalf("LatestResumable: %v", err)
	}
	if job.Status != StatusFailed || job.SignalsFound != 6 || job.LastError != "cancelled by user" {
		t.Fatalf("unexpected job %+v", job)
	}
	if len(job.ProgressLog) != 1 || job.ProgressLog[0].Message != "Scan cancelled by user" {
		t.Fatalf("unexpected progress log %+v", job.ProgressLog)
	}
	cur, err := DecodeCursor(job.Cursor)
	if err != nil || cur == nil || cur.Phase != PhaseSignals {
		t.Fatalf("unexpected cursor %+v err=%v", cur, err)
	}

	mock.ExpectQuery("FROM scan_jobs").WithArgs("repo-2").WillReturnError(sql.ErrNoRows)
	if _, err := repo.LatestResumable(context.Background(), "repo-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
