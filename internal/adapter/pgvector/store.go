// Package pgvector stores chunk records in Postgres using the vector extension.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pgvector/pgvector-go"

	"docvault/internal/pipeline"
	"docvault/internal/vector"
)

var tableRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// HNSW indexes vector columns up to 2000 dimensions and halfvec up to 4000.
const (
	maxVectorIndexDims  = 2000
	maxHalfvecIndexDims = 4000
)

// TableName maps an index name such as "DocumentChunk" to "document_chunk".
func TableName(index string) string {
	var b strings.Builder
	for i, r := range index {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

type Store struct {
	db    *sql.DB
	table string
	dims  int
}

func NewStore(db *sql.DB, index string, dims int) (*Store, error) {
	table := TableName(index)
	if !tableRe.MatchString(table) {
		return nil, fmt.Errorf("invalid vector table name %q", table)
	}
	if dims <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", dims)
	}
	return &Store{db: db, table: table, dims: dims}, nil
}

// EnsureSchema creates the extension, table and HNSW cosine index if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			file_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			metadata JSONB NOT NULL,
			embedding vector(%d) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table, s.dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_file_idx ON %s (file_id)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_user_idx ON %s (user_id)`, s.table, s.table),
	}
	if idx := s.annIndex(); idx != "" {
		stmts = append(stmts, idx)
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure vector index: %w", err)
		}
	}
	return nil
}

// annIndex returns the HNSW index statement for the configured size. Wide
// embeddings are indexed as halfvec; past that the search falls back to a scan.
func (s *Store) annIndex() string {
	switch {
	case s.dims <= maxVectorIndexDims:
		return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, s.table, s.table)
	case s.dims <= maxHalfvecIndexDims:
		return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw ((embedding::halfvec(%d)) halfvec_cosine_ops)`, s.table, s.table, s.dims)
	default:
		return ""
	}
}

// distance is the ORDER BY expression matching annIndex, so the planner can use it.
func (s *Store) distance() string {
	if s.dims > maxVectorIndexDims && s.dims <= maxHalfvecIndexDims {
		return fmt.Sprintf("embedding::halfvec(%d) <=> $1::halfvec(%d)", s.dims, s.dims)
	}
	return "embedding <=> $1"
}

// Upsert writes all records in one transaction, replacing rows with the same id.
func (s *Store) Upsert(ctx context.Context, records []pipeline.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		if len(rec.Vector) != s.dims {
			return fmt.Errorf("%w: record %s has %d, index expects %d", pipeline.ErrDimensionMismatch, rec.ID, len(rec.Vector), s.dims)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, file_id, user_id, metadata, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			file_id = EXCLUDED.file_id,
			user_id = EXCLUDED.user_id,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = now()`, s.table))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.Metadata.FileID, rec.Metadata.OwnerUserID, meta, pgvector.NewVector(rec.Vector)); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// Search ranks the owner's chunks by cosine similarity to vec.
func (s *Store) Search(ctx context.Context, ownerUserID string, vec []float32, limit int) ([]vector.Hit, error) {
	dist := s.distance()
	q := fmt.Sprintf(`
		SELECT id, metadata, 1 - (%s) AS score
		FROM %s
		WHERE user_id = $2
		ORDER BY %s
		LIMIT $3`, dist, s.table, dist)

	rows, err := s.db.QueryContext(ctx, q, pgvector.NewVector(vec), ownerUserID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []vector.Hit
	for rows.Next() {
		var (
			hit  vector.Hit
			meta []byte
		)
		if err := rows.Scan(&hit.ID, &meta, &hit.Score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &hit.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", hit.ID, err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func (s *Store) CountChunks(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n)
	return n, err
}

func (s *Store) DeleteByFile(ctx context.Context, fileID string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE file_id = $1`, s.table), fileID)
	return err
}
