package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docvault/internal/config"
	"docvault/internal/pipeline"
)

const publishTimeout = 5 * time.Second

var ErrPublishTimeout = errors.New("timeout waiting for NSQ publish")

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo           Repository
	pub            EventPublisher
	publishTimeout time.Duration
}

func NewService(repo Repository, pub EventPublisher) *Service {
	return &Service{repo: repo, pub: pub, publishTimeout: publishTimeout}
}

func (s *Service) List(ctx context.Context, f Filter) ([]Job, error) {
	jobs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := jobs[:0]
	for _, j := range jobs {
		if f.match(j) {
			out = append(out, j)
		}
	}
	return out, nil
}

// Record stores a run that will not be retried automatically.
func (s *Service) Record(ctx context.Context, j *Job) error {
	if err := s.repo.Save(ctx, j); err != nil {
		return fmt.Errorf("save failed job: %w", err)
	}
	slog.WarnContext(ctx, "ingestion job parked", "job_id", j.ID, "file_id", j.FileID, "error_kind", j.ErrorKind)
	return nil
}

// Retry republishes the stored trigger and removes the record. Memoized steps
// are left in place so the new run resumes after the last completed step.
func (s *Service) Retry(ctx context.Context, id string) error {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	ev, err := pipeline.DecodeTriggerEvent(job.Payload)
	if err != nil {
		return fmt.Errorf("stored payload: %w", err)
	}
	body, err := ev.Encode()
	if err != nil {
		return err
	}

	if err := s.publish(ctx, body); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) publish(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicEmbedRequested, body)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrPublishTimeout
		}
		return ctx.Err()
	}
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
