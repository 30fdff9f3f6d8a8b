package file

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func serve(h *Handler, method, pattern, target string, fn http.HandlerFunc) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(method+" "+pattern, fn)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHandler_Get(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("Get", mock.Anything, "f1").Return(&ManagedFile{ID: "f1", FileName: "a.pdf", Tags: []string{"legal"}}, nil)
		h := NewHandler(newTestService(repo, nil, nil, nil, 1))

		rec := serve(h, http.MethodGet, "/files/{id}", "/files/f1", h.Get)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data ManagedFile `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "a.pdf", resp.Data.FileName)
		assert.Equal(t, []string{"legal"}, resp.Data.Tags)
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("Get", mock.Anything, "nope").Return(nil, ErrFileNotFound)
		h := NewHandler(newTestService(repo, nil, nil, nil, 1))

		rec := serve(h, http.MethodGet, "/files/{id}", "/files/nope", h.Get)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "NOT_FOUND")
	})

	t.Run("InternalError", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("Get", mock.Anything, "f1").Return(nil, errors.New("db down"))
		h := NewHandler(newTestService(repo, nil, nil, nil, 1))

		rec := serve(h, http.MethodGet, "/files/{id}", "/files/f1", h.Get)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "db down")
	})
}

func TestHandler_Embed(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	repo.On("Get", mock.Anything, "f1").Return(&ManagedFile{ID: "f1", OwnerUserID: "u1", BlobURL: "https://x/a"}, nil)
	repo.On("ResetEmbedded", mock.Anything, "f1").Return(nil)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	h := NewHandler(NewService(repo, pub, nil, nil, 1))
	rec := serve(h, http.MethodPost, "/files/{id}/embed", "/files/f1/embed", h.Embed)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	pub.AssertNumberOfCalls(t, "Publish", 1)
}


func TestHandler_List(t *testing.T) {
	t.Run("OwnerFiles", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("ListByOwner", mock.Anything, "u1").Return([]ManagedFile{{ID: "f2"}, {ID: "f1"}}, nil)
		h := NewHandler(newTestService(repo, nil, nil, nil, 1))

		rec := serve(h, http.MethodGet, "/files", "/files?owner=u1", h.List)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data []ManagedFile `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 2)
		assert.Equal(t, "f2", resp.Data[0].ID)
	})

	t.Run("MissingOwner", func(t *testing.T) {
		repo := new(MockRepo)
		h := NewHandler(newTestService(repo, nil, nil, nil, 1))

		rec := serve(h, http.MethodGet, "/files", "/files", h.List)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		repo.AssertNotCalled(t, "ListByOwner", mock.Anything, mock.Anything)
	})
}

func TestHandler_Tags(t *testing.T) {
	t.Run("Vocabulary", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("ListTags", mock.Anything, "u1").Return([]string{"finance", "legal"}, nil)
		h := NewHandler(newTestService(repo, nil, nil, nil, 1))

		rec := serve(h, http.MethodGet, "/tags", "/tags?owner=u1", h.Tags)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data":["finance","legal"]}`, rec.Body.String())
	})

	t.Run("EmptyVocabulary", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("ListTags", mock.Anything, "u2").Return([]string(nil), nil)
		h := NewHandler(newTestService(repo, nil, nil, nil, 1))

		rec := serve(h, http.MethodGet, "/tags", "/tags?owner=u2", h.Tags)
		assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
	})

	t.Run("MissingOwner", func(t *testing.T) {
		h := NewHandler(newTestService(new(MockRepo), nil, nil, nil, 1))

		rec := serve(h, http.MethodGet, "/tags", "/tags", h.Tags)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
	})
}
