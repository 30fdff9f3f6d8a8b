package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

func TestStageError_Retryable(t *testing.T) {
	transient := fmt.Errorf("upstream 503: %w", ErrTransient)
	tests := []struct {
		name string
		err  *StageError
		want bool
	}{
		{"timeout", &StageError{Kind: KindTimeout, Err: errors.New("slow")}, true},
		{"transient fetch", &StageError{Kind: KindFetch, Err: transient}, true},
		{"breaker open", &StageError{Kind: KindEmbedding, Err: gobreaker.ErrOpenState}, true},
		{"permanent fetch", &StageError{Kind: KindFetch, Err: errors.New("404")}, false},
		{"parse never retried", &StageError{Kind: KindParse, Err: transient}, false},
		{"unsupported", &StageError{Kind: KindUnsupportedType, Err: transient}, false},
		{"empty chunks", &StageError{Kind: KindEmptyChunks, Err: ErrEmptyChunks}, false},
		{"internal never retried", &StageError{Kind: KindInternal, Err: transient}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Retryable())
		})
	}
}

func TestClassify(t *testing.T) {
	t.Run("keeps existing stage error", func(t *testing.T) {
		inner := &StageError{Kind: KindEmptyChunks, Step: StepChunking, Err: ErrEmptyChunks}
		assert.Same(t, inner, classify(KindChunk, StepChunking, fmt.Errorf("wrapped: %w", inner)))
	})

	t.Run("deadline becomes timeout", func(t *testing.T) {
		se := classify(KindStorage, StepStoring, context.DeadlineExceeded)
		assert.Equal(t, KindTimeout, se.Kind)
		assert.Equal(t, "Timed out during storing", se.Message())
	})

	t.Run("default kind", func(t *testing.T) {
		se := classify(KindStorage, StepStoring, errors.New("dimension mismatch"))
		assert.Equal(t, KindStorage, se.Kind)
		assert.Equal(t, "Failed to store embeddings: dimension mismatch", se.Message())
		assert.EqualError(t, se, "storing: storage_failure: dimension mismatch")
	})
}
