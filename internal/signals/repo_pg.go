package signals

import (
	"context"
	"database/sql"
	"errors"

	"issue-scout/internal/shared/storage/db"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const signalColumns = `id, repository_id, type, file_path, line_number, snippet, context, created_at`

// Create inserts one signal.
func (r *PGRepo) Create(ctx context.Context, signal Signal) error {
	return r.CreateBatch(ctx, []Signal{signal})
}

// CreateBatch inserts all signals in one transaction.
func (r *PGRepo) CreateBatch(ctx context.Context, signals []Signal) error {
	if len(signals) == 0 {
		return nil
	}
	const query = `
INSERT INTO signals (` + signalColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	return db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		for _, s := range signals {
			if _, err := tx.ExecContext(ctx, query,
				s.ID,
				s.RepositoryID,
				s.Type,
				s.FilePath,
				s.LineNumber,
				s.Snippet,
				s.Context,
				s.CreatedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID returns a signal by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE id = $1 LIMIT 1`
	s, err := scanSignal(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Signal{}, ErrNotFound
	}
	return s, err
}

// ListRecent returns up to limit signals, newest first.
func (r *PGRepo) ListRecent(ctx context.Context, repositoryID string, limit int) ([]Signal, error) {
	return r.ListByRepository(ctx, repositoryID, ListFilter{Limit: limit})
}

// ListByRepository returns signals for a repository, newest first, optionally filtered by type.
func (r *PGRepo) ListByRepository(ctx context.Context, repositoryID string, filter ListFilter) ([]Signal, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query := `
SELECT ` + signalColumns + `
FROM signals
WHERE repository_id = $1 AND ($2 = '' OR type = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3`
	rows, err := r.DB.QueryContext(ctx, query, repositoryID, filter.Type, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Signal{}
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountByRepository returns the number of stored signals for a repository.
func (r *PGRepo) CountByRepository(ctx context.Context, repositoryID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM signals WHERE repository_id = $1`, repositoryID).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(row rowScanner) (Signal, error) {
	var s Signal
	err := row.Scan(
		&s.ID,
		&s.RepositoryID,
		&s.Type,
		&s.FilePath,
		&s.LineNumber,
		&s.Snippet,
		&s.Context,
		&s.CreatedAt,
	)
	return s, err
}

var _ Repo = (*PGRepo)(nil)
