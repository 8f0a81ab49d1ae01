package repos

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"issue-scout/internal/shared/storage/db"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const repositoryColumns = `id, owner, name, stars, language, default_branch, scan_status, last_scan_at, ignored_paths, created_at, updated_at`

func (r *PGRepo) Create(ctx context.Context, repo Repository) error {
	const query = `
INSERT INTO repositories (` + repositoryColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	ignored, err := marshalJSONB(repo.IgnoredPaths)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		repo.ID,
		repo.Owner,
		repo.Name,
		repo.Stars,
		repo.Language,
		repo.DefaultBranch,
		repo.ScanStatus,
		repo.LastScanAt,
		ignored,
		repo.CreatedAt,
		repo.UpdatedAt,
	)
	if db.IsUniqueViolation(err, "") {
		return ErrAlreadyExists
	}
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (Repository, error) {
	query := `SELECT ` + repositoryColumns + ` FROM repositories WHERE id = $1 LIMIT 1`
	return scanRepository(r.DB.QueryRowContext(ctx, query, id))
}

func (r *PGRepo) GetByOwnerName(ctx context.Context, owner, name string) (Repository, error) {
	query := `SELECT ` + repositoryColumns + ` FROM repositories WHERE lower(owner) = lower($1) AND lower(name) = lower($2) LIMIT 1`
	return scanRepository(r.DB.QueryRowContext(ctx, query, owner, name))
}

func (r *PGRepo) List(ctx context.Context) ([]Repository, error) {
	query := `SELECT ` + repositoryColumns + ` FROM repositories ORDER BY updated_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Repository{}
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, repo)
	}
	return out, rows.Err()
}

func (r *PGRepo) UpdateMetadata(ctx context.Context, id string, meta Metadata) error {
	const query = `
UPDATE repositories
SET stars = $2, language = $3, default_branch = $4, updated_at = now()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, id, meta.Stars, meta.Language, meta.DefaultBranch)
	return affectedOrNotFound(res, err)
}

func (r *PGRepo) UpdateScanStatus(ctx context.Context, id string, status ScanStatus, lastScanAt *time.Time) error {
	const query = `
UPDATE repositories
SET scan_status = $2, last_scan_at = COALESCE($3, last_scan_at), updated_at = now()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, id, status, lastScanAt)
	return affectedOrNotFound(res, err)
}

// Delete removes a repository; jobs, signals and candidates go with it through FK cascades.
func (r *PGRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM repositories WHERE id = $1`, id)
	return affectedOrNotFound(res, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepository(row rowScanner) (Repository, error) {
	var repo Repository
	var lastScanAt sql.NullTime
	var ignored []byte
	err := row.Scan(
		&repo.ID,
		&repo.Owner,
		&repo.Name,
		&repo.Stars,
		&repo.Language,
		&repo.DefaultBranch,
		&repo.ScanStatus,
		&lastScanAt,
		&ignored,
		&repo.CreatedAt,
		&repo.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Repository{}, ErrNotFound
		}
		return Repository{}, err
	}
	if lastScanAt.Valid {
		t := lastScanAt.Time
		repo.LastScanAt = &t
	}
	if len(ignored) > 0 {
		if err := json.Unmarshal(ignored, &repo.IgnoredPaths); err != nil {
			return Repository{}, err
		}
	}
	return repo, nil
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

func marshalJSONB(value []string) ([]byte, error) {
	if value == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(value)
}

var _ Repo = (*PGRepo)(nil)
