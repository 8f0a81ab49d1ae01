package issues

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

const candidateColumns = `id, repository_id, signal_id, title, body, category, confidence_score, status, published_url, created_at, updated_at`

func (r *PGRepo) Create(ctx context.Context, c Candidate) error {
	const query = `
INSERT INTO issue_candidates (` + candidateColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.DB.ExecContext(ctx, query,
		c.ID,
		c.RepositoryID,
		c.SignalID,
		c.Title,
		c.Body,
		c.Category,
		c.ConfidenceScore,
		c.Status,
		c.PublishedURL,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if db.IsUniqueViolation(err, "issue_candidates_signal_key") {
		return ErrCandidateExists
	}
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM issue_candidates WHERE id = $1 LIMIT 1`
	return scanCandidate(r.DB.QueryRowContext(ctx, query, id))
}

func (r *PGRepo) FindBySignal(ctx context.Context, signalID string) (Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM issue_candidates WHERE signal_id = $1 LIMIT 1`
	return scanCandidate(r.DB.QueryRowContext(ctx, query, signalID))
}

func (r *PGRepo) List(ctx context.Context, filter ListFilter) ([]Candidate, error) {
	query := `
SELECT ` + candidateColumns + `
FROM issue_candidates
WHERE ($1 = '' OR repository_id = $1)
  AND ($2 = '' OR status = $2)
ORDER BY confidence_score DESC, created_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, filter.RepositoryID, string(filter.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGRepo) Update(ctx context.Context, c Candidate) error {
	const query = `
UPDATE issue_candidates
SET title = $2, body = $3, status = $4, published_url = $5, updated_at = $6
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, c.ID, c.Title, c.Body, c.Status, c.PublishedURL, c.UpdatedAt)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (Candidate, error) {
	var c Candidate
	var signalID sql.NullString
	var publishedURL sql.NullString
	err := row.Scan(
		&c.ID,
		&c.RepositoryID,
		&signalID,
		&c.Title,
		&c.Body,
		&c.Category,
		&c.ConfidenceScore,
		&c.Status,
		&publishedURL,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Candidate{}, ErrNotFound
		}
		return Candidate{}, err
	}
	if signalID.Valid {
		c.SignalID = &signalID.String
	}
	if publishedURL.Valid {
		c.PublishedURL = &publishedURL.String
	}
	return c, nil
}

var _ Repo = (*PGRepo)(nil)
