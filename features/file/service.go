package file

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docvault/internal/config"
	"docvault/internal/middleware"
	"docvault/internal/pipeline"
	"docvault/internal/resilience"
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// StepClearer forgets memoized pipeline steps for a job.
type StepClearer interface {
	Clear(ctx context.Context, jobID string) error
}

type VectorDeleter interface {
	DeleteByFile(ctx context.Context, fileID string) error
}

type Service struct {
	repo      Repository
	pub       EventPublisher
	steps     StepClearer
	vectors   VectorDeleter
	attempts  int
	baseDelay time.Duration
}

func NewService(repo Repository, pub EventPublisher, steps StepClearer, vectors VectorDeleter, updateAttempts int) *Service {
	if updateAttempts <= 0 {
		updateAttempts = 1
	}
	return &Service{
		repo:      repo,
		pub:       pub,
		steps:     steps,
		vectors:   vectors,
		attempts:  updateAttempts,
		baseDelay: 200 * time.Millisecond,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*ManagedFile, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByOwner(ctx context.Context, ownerUserID string) ([]ManagedFile, error) {
	if ownerUserID == "" {
		return nil, ErrOwnerMissing
	}
	return s.repo.ListByOwner(ctx, ownerUserID)
}

// Enqueue records the file and publishes its ingestion trigger.
func (s *Service) Enqueue(ctx context.Context, f *ManagedFile) error {
	if err := s.repo.Create(ctx, f); err != nil {
		return fmt.Errorf("create file record: %w", err)
	}
	return s.publish(ctx, f)
}

// Reembed drops memoized steps and stored vectors, then triggers a fresh run.
func (s *Service) Reembed(ctx context.Context, id string) (*ManagedFile, error) {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.steps != nil {
		if err := s.steps.Clear(ctx, id); err != nil {
			return nil, fmt.Errorf("clear steps: %w", err)
		}
	}
	if s.vectors != nil {
		if err := s.vectors.DeleteByFile(ctx, id); err != nil {
			return nil, fmt.Errorf("delete stale vectors: %w", err)
		}
	}
	if err := s.repo.ResetEmbedded(ctx, id); err != nil {
		return nil, err
	}
	f.IsEmbedded = false
	return f, s.publish(ctx, f)
}

func (s *Service) publish(ctx context.Context, f *ManagedFile) error {
	body, err := pipeline.NewTriggerEvent(f.request(), middleware.GetCorrelationID(ctx)).Encode()
	if err != nil {
		return err
	}
	if err := s.pub.Publish(config.TopicEmbedRequested, body); err != nil {
		return fmt.Errorf("publish trigger: %w", err)
	}
	slog.InfoContext(ctx, "published embed trigger", "file_id", f.ID, "topic", config.TopicEmbedRequested)
	return nil
}

// MarkEmbedded is the pipeline's record updater. Transient failures are retried;
// a missing record is not.
func (s *Service) MarkEmbedded(ctx context.Context, fileID, summary string, tags []string) error {
	return resilience.RetryWithBackoff(ctx, func(ctx context.Context) error {
		err := s.repo.MarkEmbedded(ctx, fileID, summary, tags)
		if errors.Is(err, ErrFileNotFound) {
			return resilience.Permanent(err)
		}
		return err
	}, s.attempts, s.baseDelay)
}

func (s *Service) ListTags(ctx context.Context, ownerUserID string) ([]string, error) {
	return s.repo.ListTags(ctx, ownerUserID)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *Service) CountEmbedded(ctx context.Context) (int, error) {
	return s.repo.CountEmbedded(ctx)
}

func (f *ManagedFile) request() pipeline.IngestionRequest {
	return pipeline.IngestionRequest{
		FileID:      f.ID,
		FileName:    f.FileName,
		BlobURL:     f.BlobURL,
		DownloadURL: f.BlobDownloadURL,
		MimeType:    f.MimeType,
		OwnerUserID: f.OwnerUserID,
	}
}
