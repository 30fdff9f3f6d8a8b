package file

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"docvault/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	f, err := h.service.Get(ctx, id)
	if err != nil {
		h.handleError(ctx, w, "failed to get file", id, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": f})
}

// List serves GET /files?owner=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := r.URL.Query().Get("owner")

	files, err := h.service.ListByOwner(ctx, owner)
	if err != nil {
		h.handleError(ctx, w, "failed to list files", owner, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": files})
}

// Tags serves GET /tags?owner=, the owner's tag vocabulary.
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		h.handleError(ctx, w, "failed to list tags", owner, ErrOwnerMissing)
		return
	}

	tags, err := h.service.ListTags(ctx, owner)
	if err != nil {
		h.handleError(ctx, w, "failed to list tags", owner, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": tags})
}

func (h *Handler) Embed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "re-embedding file", "id", id, "correlationId", correlationID)

	f, err := h.service.Reembed(ctx, id)
	if err != nil {
		h.handleError(ctx, w, "failed to re-embed file", id, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusAccepted, map[string]interface{}{"data": f})
}

func (h *Handler) handleError(ctx context.Context, w http.ResponseWriter, msg, id string, err error) {
	switch {
	case errors.Is(err, ErrFileNotFound):
		h.writeError(ctx, w, "NOT_FOUND", "File not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrOwnerMissing):
		h.writeError(ctx, w, "VALIDATION_ERROR", "owner query parameter is required", http.StatusBadRequest)
		return
	}
	slog.ErrorContext(ctx, msg, "id", id, "error", err)
	h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	h.writeJSON(ctx, w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}
