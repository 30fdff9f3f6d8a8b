package job

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobCols = []string{"id", "file_id", "handler", "payload", "error", "error_kind", "retries", "created_at"}

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO failed_jobs")).
		WithArgs("f-1", "ingest", []byte("{}"), "boom", "storage_failure", 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("j-1", now))

	j := &Job{FileID: "f-1", Handler: "ingest", Error: "boom", ErrorKind: "storage_failure", Retries: 3}
	require.NoError(t, NewPostgresRepo(db).Save(context.Background(), j))
	assert.Equal(t, "j-1", j.ID)
	assert.Equal(t, now, j.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM failed_jobs ORDER BY created_at DESC")).
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow("j-2", "f-2", "ingest", []byte(`{"b":2}`), "e2", "fetch_failure", 5, now).
			AddRow("j-1", "f-1", "ingest", []byte(`{"a":1}`), "e1", "", 5, now.Add(-time.Minute)))

	jobs, err := NewPostgresRepo(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j-2", jobs[0].ID)
	assert.Equal(t, "fetch_failure", jobs[0].ErrorKind)
	assert.JSONEq(t, `{"a":1}`, string(jobs[1].Payload))
}

func TestPostgresRepo_Get(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta("FROM failed_jobs WHERE id = $1")).
			WithArgs("j-1").
			WillReturnRows(sqlmock.NewRows(jobCols).AddRow("j-1", "f-1", "ingest", []byte(`{}`), "e", "", 0, time.Now()))

		j, err := NewPostgresRepo(db).Get(context.Background(), "j-1")
		require.NoError(t, err)
		assert.Equal(t, "f-1", j.FileID)
	})

	t.Run("NotFound", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta("FROM failed_jobs WHERE id = $1")).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err = NewPostgresRepo(db).Get(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestPostgresRepo_DeleteAndCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM failed_jobs WHERE id = $1")).
		WithArgs("j-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM failed_jobs")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	repo := NewPostgresRepo(db)
	require.NoError(t, repo.Delete(context.Background(), "j-1"))
	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
