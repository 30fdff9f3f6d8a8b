package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
)

type Kind string

const (
	KindUnsupportedType Kind = "unsupported_type"
	KindFetch           Kind = "fetch_failure"
	KindParse           Kind = "parse_failure"
	KindEmptyChunks     Kind = "empty_chunks"
	KindChunk           Kind = "chunk_failure"
	KindAnalysis        Kind = "analysis_failure"
	KindEmbedding       Kind = "embedding_failure"
	KindStorage         Kind = "storage_failure"
	KindRecordUpdate    Kind = "record_update_failure"
	KindTimeout         Kind = "timeout_failure"

	// KindInternal covers panics and errors raised outside any stage.
	KindInternal Kind = "internal_failure"
)

var (
	ErrUnsupportedType   = errors.New("unsupported mime type")
	ErrEmptyChunks       = errors.New("no chunks generated")
	ErrCountMismatch     = errors.New("embedding count does not match chunk count")
	ErrDimensionMismatch = errors.New("vector dimension does not match index")
	ErrInvalidAnalysis   = errors.New("invalid analysis output")

	// ErrTransient marks failures a later invocation may not hit again
	// (network errors, 5xx and 429 responses).
	ErrTransient = errors.New("transient failure")
)

// StageError is the only error shape that leaves a stage.
type StageError struct {
	Kind Kind
	Step string
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Step, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the outer runtime should invoke the job again.
func (e *StageError) Retryable() bool {
	if e.Kind == KindTimeout {
		return true
	}
	switch e.Kind {
	case KindUnsupportedType, KindEmptyChunks, KindParse, KindInternal:
		return false
	}
	return IsTransient(e.Err)
}

// Message is the human-readable text sent to the user and returned from the job.
func (e *StageError) Message() string {
	switch e.Kind {
	case KindUnsupportedType:
		return fmt.Sprintf("Unsupported mimeType: %v", e.Err)
	case KindEmptyChunks:
		return "No chunks generated"
	case KindFetch:
		return fmt.Sprintf("Failed to fetch file: %v", e.Err)
	case KindParse:
		return fmt.Sprintf("Failed to parse file: %v", e.Err)
	case KindAnalysis:
		return fmt.Sprintf("Failed to analyze file: %v", e.Err)
	case KindChunk:
		return fmt.Sprintf("Failed to chunk file: %v", e.Err)
	case KindEmbedding:
		return fmt.Sprintf("Failed to generate embeddings: %v", e.Err)
	case KindStorage:
		return fmt.Sprintf("Failed to store embeddings: %v", e.Err)
	case KindRecordUpdate:
		return fmt.Sprintf("Failed to update file record: %v", e.Err)
	case KindTimeout:
		return fmt.Sprintf("Timed out during %s", e.Step)
	case KindInternal:
		return fmt.Sprintf("Internal error during %s: %v", e.Step, e.Err)
	default:
		return e.Err.Error()
	}
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) ||
		errors.Is(err, context.DeadlineExceeded)
}

// classify converts whatever a stage returned into a *StageError.
func classify(kind Kind, step string, err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &StageError{Kind: KindTimeout, Step: step, Err: err}
	}
	if errors.Is(err, ErrEmptyChunks) {
		return &StageError{Kind: KindEmptyChunks, Step: step, Err: err}
	}
	return &StageError{Kind: kind, Step: step, Err: err}
}
