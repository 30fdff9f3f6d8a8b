package file

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Create inserts the record, keeping an existing row with the same id.
func (r *PostgresRepo) Create(ctx context.Context, f *ManagedFile) error {
	query := `INSERT INTO managed_files (id, owner_user_id, file_name, blob_url, blob_download_url, mime_type, size_bytes)
		VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET updated_at = managed_files.updated_at
		RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, f.ID, f.OwnerUserID, f.FileName, f.BlobURL, f.BlobDownloadURL, f.MimeType, f.SizeBytes).
		Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*ManagedFile, error) {
	query := `SELECT f.id, f.owner_user_id, f.file_name, f.blob_url, f.blob_download_url, f.mime_type,
			f.size_bytes, f.is_embedded, f.ai_summary, f.created_at, f.updated_at,
			COALESCE(array_agg(t.name ORDER BY t.name) FILTER (WHERE t.name IS NOT NULL), '{}')
		FROM managed_files f
		LEFT JOIN file_tags ft ON ft.file_id = f.id
		LEFT JOIN tags t ON t.id = ft.tag_id
		WHERE f.id = $1
		GROUP BY f.id`

	f := &ManagedFile{}
	var summary sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&f.ID, &f.OwnerUserID, &f.FileName, &f.BlobURL, &f.BlobDownloadURL, &f.MimeType,
		&f.SizeBytes, &f.IsEmbedded, &summary, &f.CreatedAt, &f.UpdatedAt, pq.Array(&f.Tags),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	f.AISummary = summary.String
	return f, nil
}

// ListByOwner returns the owner's files, newest first, with their tags.
func (r *PostgresRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]ManagedFile, error) {
	query := `SELECT f.id, f.owner_user_id, f.file_name, f.blob_url, f.blob_download_url, f.mime_type,
			f.size_bytes, f.is_embedded, f.ai_summary, f.created_at, f.updated_at,
			COALESCE(array_agg(t.name ORDER BY t.name) FILTER (WHERE t.name IS NOT NULL), '{}')
		FROM managed_files f
		LEFT JOIN file_tags ft ON ft.file_id = f.id
		LEFT JOIN tags t ON t.id = ft.tag_id
		WHERE f.owner_user_id = $1
		GROUP BY f.id
		ORDER BY f.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []ManagedFile{}
	for rows.Next() {
		var (
			f       ManagedFile
			summary sql.NullString
		)
		if err := rows.Scan(
			&f.ID, &f.OwnerUserID, &f.FileName, &f.BlobURL, &f.BlobDownloadURL, &f.MimeType,
			&f.SizeBytes, &f.IsEmbedded, &summary, &f.CreatedAt, &f.UpdatedAt, pq.Array(&f.Tags),
		); err != nil {
			return nil, err
		}
		f.AISummary = summary.String
		files = append(files, f)
	}
	return files, rows.Err()
}

// MarkEmbedded sets the summary and tags and flips is_embedded in one transaction.
// Tags unknown to the owner are added to their vocabulary.
func (r *PostgresRepo) MarkEmbedded(ctx context.Context, id, summary string, tags []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var owner string
	err = tx.QueryRowContext(ctx,
		`UPDATE managed_files SET is_embedded = TRUE, ai_summary = $1, updated_at = NOW() WHERE id = $2 RETURNING owner_user_id`,
		summary, id,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrFileNotFound
	}
	if err != nil {
		return fmt.Errorf("update file: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_tags WHERE file_id = $1`, id); err != nil {
		return fmt.Errorf("clear file tags: %w", err)
	}

	for _, name := range tags {
		var tagID int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO tags (owner_user_id, name) VALUES ($1, $2)
			ON CONFLICT (owner_user_id, name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`,
			owner, name,
		).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("upsert tag %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO file_tags (file_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, tagID,
		); err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}

	return tx.Commit()
}

func (r *PostgresRepo) ResetEmbedded(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE managed_files SET is_embedded = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrFileNotFound
	}
	return nil
}

func (r *PostgresRepo) ListTags(ctx context.Context, ownerUserID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM tags WHERE owner_user_id = $1 ORDER BY name`, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if name = strings.TrimSpace(name); name != "" {
			tags = append(tags, name)
		}
	}
	return tags, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM managed_files`).Scan(&count)
	return count, err
}

func (r *PostgresRepo) CountEmbedded(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM managed_files WHERE is_embedded`).Scan(&count)
	return count, err
}
