package worker

import (
	"context"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"docvault/features/job"
	"docvault/internal/middleware"
	"docvault/internal/pipeline"
)

const handlerName = "ingest-worker"

// DefaultMaxAttempts is how many deliveries a retryable failure gets before it is parked.
const DefaultMaxAttempts = 3

// Runner executes one ingestion job.
type Runner interface {
	Run(ctx context.Context, req pipeline.IngestionRequest) pipeline.Result
}

type FailedJobRecorder interface {
	Record(ctx context.Context, j *job.Job) error
}

type IngestConsumer struct {
	runner      Runner
	failed      FailedJobRecorder
	maxAttempts uint16
}

func NewIngestConsumer(r Runner, f FailedJobRecorder, maxAttempts int) *IngestConsumer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &IngestConsumer{runner: r, failed: f, maxAttempts: uint16(maxAttempts)}
}

// HandleMessage returns an error only to ask NSQ for a redelivery.
func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	ev, err := pipeline.DecodeTriggerEvent(m.Body)
	ctx := middleware.EnsureCorrelationID(context.Background(), ev.CorrelationID)
	if err != nil {
		// Poison pill: malformed or incomplete trigger, never retried.
		slog.ErrorContext(ctx, "dropping invalid trigger", "error", err)
		return nil
	}

	req := ev.Request()
	res := h.runner.Run(ctx, req)
	if res.Success {
		return nil
	}

	if res.Retryable && m.Attempts < h.maxAttempts {
		slog.WarnContext(ctx, "ingestion failed, requeueing",
			"file_id", req.FileID, "kind", res.Kind, "attempt", m.Attempts, "max_attempts", h.maxAttempts)
		return &retryError{msg: res.Message}
	}

	h.park(ctx, m, req, res)
	return nil
}

func (h *IngestConsumer) park(ctx context.Context, m *nsq.Message, req pipeline.IngestionRequest, res pipeline.Result) {
	if h.failed == nil {
		return
	}
	retries := int(m.Attempts)
	if retries > 0 {
		retries--
	}
	failed := &job.Job{
		FileID:    req.FileID,
		Handler:   handlerName,
		Payload:   m.Body,
		Error:     res.Message,
		ErrorKind: string(res.Kind),
		Retries:   retries,
	}
	if err := h.failed.Record(ctx, failed); err != nil {
		slog.ErrorContext(ctx, "failed to save failed job", "file_id", req.FileID, "error", err)
	}
}

type retryError struct {
	msg string
}

func (e *retryError) Error() string {
	return "retryable ingestion failure: " + e.msg
}
