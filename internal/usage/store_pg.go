package usage

import (
	"context"
	"database/sql"
)

type pgStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed usage store.
func NewPGStore(db *sql.DB) *pgStore {
	return &pgStore{DB: db}
}

func (s *pgStore) Append(ctx context.Context, rec Record) error {
	const query = `
INSERT INTO llm_usage (id, repository_id, tokens_in, tokens_out, estimated_cost, phase, provider, model, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.DB.ExecContext(ctx, query,
		rec.ID,
		rec.RepositoryID,
		rec.TokensIn,
		rec.TokensOut,
		rec.EstimatedCost,
		rec.Phase,
		rec.Provider,
		rec.Model,
		rec.CreatedAt,
	)
	return err
}

func (s *pgStore) ListByRepository(ctx context.Context, repositoryID string) ([]Record, error) {
	const query = `
SELECT id, repository_id, tokens_in, tokens_out, estimated_cost, phase, provider, model, created_at
FROM llm_usage
WHERE repository_id = $1
ORDER BY created_at ASC, id ASC`
	rows, err := s.DB.QueryContext(ctx, query, repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID,
			&r.RepositoryID,
			&r.TokensIn,
			&r.TokensOut,
			&r.EstimatedCost,
			&r.Phase,
			&r.Provider,
			&r.Model,
			&r.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
