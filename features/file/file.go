package file

import (
	"context"
	"errors"
	"time"
)

var (
	ErrFileNotFound = errors.New("managed file not found")
	ErrOwnerMissing = errors.New("owner is required")
)

// ManagedFile is the application record of an uploaded file.
type ManagedFile struct {
	ID              string    `json:"id"`
	OwnerUserID     string    `json:"ownerUserId"`
	FileName        string    `json:"fileName"`
	BlobURL         string    `json:"blobUrl"`
	BlobDownloadURL string    `json:"blobDownloadUrl"`
	MimeType        string    `json:"mimeType"`
	SizeBytes       int64     `json:"sizeBytes"`
	IsEmbedded      bool      `json:"isEmbedded"`
	AISummary       string    `json:"aiSummary,omitempty"`
	Tags            []string  `json:"tags"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type Repository interface {
	Create(ctx context.Context, f *ManagedFile) error
	Get(ctx context.Context, id string) (*ManagedFile, error)
	ListByOwner(ctx context.Context, ownerUserID string) ([]ManagedFile, error)
	MarkEmbedded(ctx context.Context, id, summary string, tags []string) error
	ResetEmbedded(ctx context.Context, id string) error
	ListTags(ctx context.Context, ownerUserID string) ([]string, error)
	Count(ctx context.Context) (int, error)
	CountEmbedded(ctx context.Context) (int, error)
}
