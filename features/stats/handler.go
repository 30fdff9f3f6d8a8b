package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"docvault/internal/middleware"
)

type FileCounter interface {
	Count(ctx context.Context) (int, error)
	CountEmbedded(ctx context.Context) (int, error)
}

type JobCounter interface {
	Count(ctx context.Context) (int, error)
}

type ChunkCounter interface {
	CountChunks(ctx context.Context) (int, error)
}

type Handler struct {
	files  FileCounter
	jobs   JobCounter
	chunks ChunkCounter
}

func NewHandler(f FileCounter, j JobCounter, c ChunkCounter) *Handler {
	return &Handler{files: f, jobs: j, chunks: c}
}

type StatsResponse struct {
	Files      int `json:"files"`
	Embedded   int `json:"embedded"`
	Chunks     int `json:"chunks"`
	FailedJobs int `json:"failed_jobs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	var resp StatsResponse
	counters := []struct {
		name string
		fn   func(context.Context) (int, error)
		dst  *int
	}{
		{"files", h.files.Count, &resp.Files},
		{"embedded files", h.files.CountEmbedded, &resp.Embedded},
		{"failed jobs", h.jobs.Count, &resp.FailedJobs},
		{"chunks", h.chunks.CountChunks, &resp.Chunks},
	}
	for _, c := range counters {
		n, err := c.fn(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count "+c.name, "error", err, "correlationId", correlationID)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count "+c.name, http.StatusInternalServerError)
			return
		}
		*c.dst = n
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
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
