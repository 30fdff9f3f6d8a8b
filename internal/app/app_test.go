package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvault/internal/app"
	"docvault/internal/config"
	"docvault/internal/pipeline"
	"docvault/internal/vector"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		QueryLogPath:         filepath.Join(t.TempDir(), "query.log"),
		MaxAttempts:          3,
		RecordUpdateAttempts: 1,
		ChunkSize:            200,
		ChunkOverlap:         20,
		ChunkConcurrency:     1,
		FetchTimeout:         time.Second,
	}
}

func newTestApp(t *testing.T, store *app.MockVectorStore) (*app.App, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	a, err := app.New(testConfig(t), &app.Dependencies{
		DB:          db,
		VectorStore: store,
		Publisher:   &app.RecordingPublisher{},
		AI:          app.StubAI{Vector: []float32{0.1, 0.2, 0.3}},
	})
	require.NoError(t, err)
	return a, mock
}

func TestNew(t *testing.T) {
	a, _ := newTestApp(t, &app.MockVectorStore{})

	assert.NotNil(t, a.Handler)
	assert.NotNil(t, a.Files)
	assert.NotNil(t, a.Jobs)
	assert.NotNil(t, a.Retrieval)
	assert.NotNil(t, a.Ingest)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestNew_IncompleteDependencies(t *testing.T) {
	_, err := app.New(testConfig(t), &app.Dependencies{})
	assert.Error(t, err)

	_, err = app.New(testConfig(t), nil)
	assert.Error(t, err)
}

func TestRoutes_Stats(t *testing.T) {
	a, mock := newTestApp(t, &app.MockVectorStore{Chunks: 7})

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM managed_files`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM managed_files WHERE is_embedded`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM failed_jobs`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			Files      int `json:"files"`
			Embedded   int `json:"embedded"`
			Chunks     int `json:"chunks"`
			FailedJobs int `json:"failed_jobs"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Data.Files)
	assert.Equal(t, 3, body.Data.Embedded)
	assert.Equal(t, 1, body.Data.FailedJobs)
	assert.Equal(t, 7, body.Data.Chunks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoutes_SearchIsOwnerFiltered(t *testing.T) {
	store := &app.MockVectorStore{Hits: []vector.Hit{
		{ID: "c1", Score: 0.9, Metadata: pipeline.RecordMetadata{Text: "mine", OwnerUserID: "u1", FileID: "f1"}},
		{ID: "c2", Score: 0.8, Metadata: pipeline.RecordMetadata{Text: "theirs", OwnerUserID: "u2", FileID: "f2"}},
	}}
	a, _ := newTestApp(t, store)

	req := httptest.NewRequest(http.MethodGet, "/search?owner=u1&q=hello", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"mine"`)
	assert.NotContains(t, w.Body.String(), `"theirs"`)
}

func TestRoutes_SearchRequiresOwner(t *testing.T) {
	a, _ := newTestApp(t, &app.MockVectorStore{})

	req := httptest.NewRequest(http.MethodGet, "/search?q=hello", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRun_NothingEnabledReturns(t *testing.T) {
	a, _ := newTestApp(t, &app.MockVectorStore{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, a.Run(ctx))
}

func TestRoutes_SearchIsRerankedWhenConfigured(t *testing.T) {
	rerank := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"index":1,"relevance_score":0.9}]}`))
	}))
	defer rerank.Close()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := testConfig(t)
	cfg.RerankProvider = config.RerankProviderJina
	cfg.RerankAPIKey = "k"
	cfg.RerankBaseURL = rerank.URL
	cfg.RerankTopN = 1

	store := &app.MockVectorStore{Hits: []vector.Hit{
		{ID: "c1", Score: 0.9, Metadata: pipeline.RecordMetadata{Text: "closest", OwnerUserID: "u1", FileID: "f1"}},
		{ID: "c2", Score: 0.8, Metadata: pipeline.RecordMetadata{Text: "most relevant", OwnerUserID: "u1", FileID: "f2"}},
	}}
	a, err := app.New(cfg, &app.Dependencies{
		DB:          db,
		VectorStore: store,
		Publisher:   &app.RecordingPublisher{},
		AI:          app.StubAI{Vector: []float32{0.1, 0.2, 0.3}},
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/search?owner=u1&q=hello", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"most relevant"`)
	assert.NotContains(t, w.Body.String(), `"closest"`)
}

func TestRoutes_OwnerTagsAndFiles(t *testing.T) {
	a, mock := newTestApp(t, &app.MockVectorStore{})

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM tags WHERE owner_user_id = $1`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("legal"))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE f.owner_user_id = $1`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_user_id", "file_name", "blob_url", "blob_download_url", "mime_type",
			"size_bytes", "is_embedded", "ai_summary", "created_at", "updated_at", "tags"}))

	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tags?owner=u1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":["legal"]}`, w.Body.String())

	w = httptest.NewRecorder()
	a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files?owner=u1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
