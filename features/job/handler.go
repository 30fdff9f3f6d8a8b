package job

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"docvault/internal/middleware"
	"docvault/internal/pipeline"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// failedJob is the listing view of a parked run. The stored trigger payload
// stays server side; Retry replays it by id.
type failedJob struct {
	ID        string    `json:"id"`
	FileID    string    `json:"fileId"`
	ErrorKind string    `json:"errorKind"`
	Error     string    `json:"error"`
	Retries   int       `json:"retries"`
	CreatedAt time.Time `json:"createdAt"`
}

// List serves GET /jobs/failed, optionally narrowed by ?fileId= and ?kind=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	filter := Filter{FileID: r.URL.Query().Get("fileId"), Kind: r.URL.Query().Get("kind")}

	slog.InfoContext(ctx, "listing failed jobs", "file_id", filter.FileID, "error_kind", filter.Kind, "correlationId", correlationID)

	jobs, err := h.service.List(ctx, filter)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list jobs", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	data := make([]failedJob, 0, len(jobs))
	byKind := make(map[string]int)
	for _, j := range jobs {
		kind := j.ErrorKind
		if kind == "" {
			kind = "unknown"
		}
		byKind[kind]++
		data = append(data, failedJob{
			ID:        j.ID,
			FileID:    j.FileID,
			ErrorKind: kind,
			Error:     j.Error,
			Retries:   j.Retries,
			CreatedAt: j.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": data,
		"meta": map[string]interface{}{"count": len(data), "byKind": byKind},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	id := r.PathValue("id")

	slog.InfoContext(ctx, "retrying job", "id", id, "correlationId", correlationID)

	if err := h.service.Retry(ctx, id); err != nil {
		slog.ErrorContext(ctx, "failed to retry job", "id", id, "error", err, "correlationId", correlationID)
		switch {
		case errors.Is(err, ErrJobNotFound):
			h.writeError(ctx, w, "NOT_FOUND", "Job not found", http.StatusNotFound)
		case errors.Is(err, pipeline.ErrInvalidRequest):
			h.writeError(ctx, w, "INVALID_PAYLOAD", "Stored job payload is not a valid trigger", http.StatusUnprocessableEntity)
		case errors.Is(err, ErrPublishTimeout):
			h.writeError(ctx, w, "UNAVAILABLE", "Queue did not accept the job in time", http.StatusServiceUnavailable)
		default:
			h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": "job retried"}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
