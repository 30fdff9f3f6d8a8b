// Package stepstore persists memoized pipeline step results in Postgres.
package stepstore

import (
	"context"
	"database/sql"
	"errors"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, jobID, step string) ([]byte, bool, error) {
	var result []byte
	query := `SELECT result FROM job_steps WHERE job_id = $1 AND step_name = $2`
	err := s.db.QueryRowContext(ctx, query, jobID, step).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, jobID, step string, result []byte) error {
	query := `INSERT INTO job_steps (job_id, step_name, result, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (job_id, step_name) DO UPDATE SET result = EXCLUDED.result, updated_at = now()`
	_, err := s.db.ExecContext(ctx, query, jobID, step, result)
	return err
}

// Clear forgets every step of a job so the next run starts from scratch.
func (s *PostgresStore) Clear(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM job_steps WHERE job_id = $1`, jobID)
	return err
}
