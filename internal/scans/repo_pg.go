package scans

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"issue-scout/internal/shared/storage/db"
	"issue-scout/internal/shared/util"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
	tx *sql.Tx
}

var _ Repo = (*PGRepo)(nil)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const jobColumns = `id, repository_id, requested_by, status, started_at, completed_at, signals_found, cursor, progress_percentage, current_phase, progress_log, last_error, created_at, updated_at`

func (r *PGRepo) conn() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.DB
}

func (r *PGRepo) Create(ctx context.Context, job ScanJob) error {
	const query = `
INSERT INTO scan_jobs (` + jobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	events, err := marshalEvents(job.ProgressLog)
	if err != nil {
		return err
	}
	_, err = r.conn().ExecContext(ctx, query,
		job.ID,
		job.RepositoryID,
		job.RequestedBy,
		job.Status,
		job.StartedAt,
		job.CompletedAt,
		job.SignalsFound,
		nullableJSON(job.Cursor),
		job.ProgressPercentage,
		job.CurrentPhase,
		events,
		nullableString(job.LastError),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if db.IsUniqueViolation(err, "scan_jobs_one_active_per_repository") {
		return ErrScanInProgress
	}
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (ScanJob, error) {
	query := `SELECT ` + jobColumns + ` FROM scan_jobs WHERE id = $1 LIMIT 1`
	return scanJob(r.conn().QueryRowContext(ctx, query, id))
}

func (r *PGRepo) LatestForRepository(ctx context.Context, repositoryID string) (ScanJob, error) {
	query := `SELECT ` + jobColumns + ` FROM scan_jobs WHERE repository_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	return scanJob(r.conn().QueryRowContext(ctx, query, repositoryID))
}

func (r *PGRepo) LatestResumable(ctx context.Context, repositoryID string) (ScanJob, error) {
	query := `SELECT ` + jobColumns + ` FROM scan_jobs
WHERE repository_id = $1 AND status <> 'completed' AND cursor IS NOT NULL
ORDER BY created_at DESC, id DESC LIMIT 1`
	return scanJob(r.conn().QueryRowContext(ctx, query, repositoryID))
}

func (r *PGRepo) ActiveForRepository(ctx context.Context, repositoryID string) (ScanJob, error) {
	query := `SELECT ` + jobColumns + ` FROM scan_jobs WHERE repository_id = $1 AND status = 'active' LIMIT 1`
	return scanJob(r.conn().QueryRowContext(ctx, query, repositoryID))
}

func (r *PGRepo) UpdateStatus(ctx context.Context, id string, update StatusUpdate) error {
	const query = `
UPDATE scan_jobs
SET status = $2,
    current_phase = COALESCE(NULLIF($3, ''), current_phase),
    completed_at = $4,
    last_error = CASE WHEN $5::boolean THEN NULLIF($6, '') ELSE last_error END,
    updated_at = now()
WHERE id = $1`
	var lastError string
	if update.LastError != nil {
		lastError = *update.LastError
	}
	res, err := r.conn().ExecContext(ctx, query, id, update.Status, update.CurrentPhase, update.CompletedAt, update.LastError != nil, lastError)
	if db.IsUniqueViolation(err, "scan_jobs_one_active_per_repository") {
		return ErrScanInProgress
	}
	return affectedOrNotFound(res, err)
}

func (r *PGRepo) SaveCursor(ctx context.Context, id string, cursor json.RawMessage, signalsFound int) error {
	const query = `
UPDATE scan_jobs
SET cursor = $2, signals_found = $3, updated_at = now()
WHERE id = $1`
	res, err := r.conn().ExecContext(ctx, query, id, nullableJSON(cursor), signalsFound)
	return affectedOrNotFound(res, err)
}

func (r *PGRepo) SetProgress(ctx context.Context, id string, pct int) (int, error) {
	const query = `
UPDATE scan_jobs
SET progress_percentage = GREATEST(progress_percentage, $2), updated_at = now()
WHERE id = $1
RETURNING progress_percentage`
	var stored int
	err := r.conn().QueryRowContext(ctx, query, id, clampPercentage(pct)).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return stored, err
}

func (r *PGRepo) SaveProgressLog(ctx context.Context, id string, events []ProgressEvent, phase string) error {
	const query = `
UPDATE scan_jobs
SET progress_log = $2, current_phase = $3, updated_at = now()
WHERE id = $1`
	payload, err := marshalEvents(events)
	if err != nil {
		return err
	}
	res, err := r.conn().ExecContext(ctx, query, id, payload, phase)
	return affectedOrNotFound(res, err)
}

// WithRepositoryLock takes a transaction-scoped advisory lock keyed by the repository id.
// Nested calls reuse the outer transaction.
func (r *PGRepo) WithRepositoryLock(ctx context.Context, repositoryID string, fn func(ctx context.Context, jobs Repo) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, util.LockKey("scan:"+repositoryID)); err != nil {
			return err
		}
		return fn(ctx, &PGRepo{DB: r.DB, tx: tx})
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (ScanJob, error) {
	var job ScanJob
	var completedAt sql.NullTime
	var cursor, events []byte
	var lastError sql.NullString
	err := row.Scan(
		&job.ID,
		&job.RepositoryID,
		&job.RequestedBy,
		&job.Status,
		&job.StartedAt,
		&completedAt,
		&job.SignalsFound,
		&cursor,
		&job.ProgressPercentage,
		&job.CurrentPhase,
		&events,
		&lastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ScanJob{}, ErrNotFound
		}
		return ScanJob{}, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if len(cursor) > 0 {
		job.Cursor = json.RawMessage(cursor)
	}
	if len(events) > 0 {
		if err := json.Unmarshal(events, &job.ProgressLog); err != nil {
			return ScanJob{}, err
		}
	}
	job.LastError = lastError.String
	return job, nil
}

func marshalEvents(events []ProgressEvent) ([]byte, error) {
	if events == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(events)
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
