package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// IngestionRequest identifies one job. FileID is the job key.
type IngestionRequest struct {
	FileID      string
	FileName    string
	BlobURL     string
	DownloadURL string
	MimeType    string
	OwnerUserID string
}

var ErrInvalidRequest = errors.New("invalid ingestion request")

func (r IngestionRequest) Validate() error {
	switch {
	case r.FileID == "":
		return fmt.Errorf("%w: managedFileId is required", ErrInvalidRequest)
	case r.OwnerUserID == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	case r.DownloadURL == "" && r.BlobURL == "":
		return fmt.Errorf("%w: a blob url is required", ErrInvalidRequest)
	}
	return nil
}

// SourceURL is the location the fetcher reads from. The download url is
// only used when no blob url was recorded.
func (r IngestionRequest) SourceURL() string {
	if r.BlobURL != "" {
		return r.BlobURL
	}
	return r.DownloadURL
}

type ExtractedPage struct {
	PageIndex int    `json:"pageIndex"`
	Text      string `json:"text"`
}

// Chunk is a bounded text segment of one page. PageIndex is 1-based.
type Chunk struct {
	Text      string   `json:"text"`
	PageIndex int      `json:"page"`
	FileName  string   `json:"fileName"`
	Title     string   `json:"title,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	Questions []string `json:"questions,omitempty"`
}

type Analysis struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// RecordMetadata is the denormalized payload stored next to each vector.
type RecordMetadata struct {
	Text        string   `json:"text"`
	FileID      string   `json:"fileId"`
	FileName    string   `json:"fileName"`
	BlobURL     string   `json:"blobUrl"`
	DownloadURL string   `json:"blobDownloadUrl"`
	MimeType    string   `json:"mimeType"`
	OwnerUserID string   `json:"userId"`
	Page        int      `json:"page"`
	ChunkIndex  int      `json:"chunkIndex"`
	Title       string   `json:"title,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Questions   []string `json:"questions,omitempty"`
}

type VectorRecord struct {
	ID       string
	Vector   []float32
	Metadata RecordMetadata
}

type Status string

const (
	StatusStarted    Status = "started"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

type ProgressEvent struct {
	ManagedFileID string `json:"managedFileId"`
	Status        Status `json:"status"`
	Step          string `json:"step"`
	Message       string `json:"message"`
	Progress      int    `json:"progress"`
}

// Result is what a job hands back to the runtime that invoked it.
type Result struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Kind      Kind   `json:"kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Extractor interface {
	Extract(ctx context.Context, format Format, data []byte) ([]ExtractedPage, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, text string, existingTags []string) (Analysis, error)
}

type Chunker interface {
	Chunk(ctx context.Context, fileName string, pages []ExtractedPage) ([]Chunk, error)
}

type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorStore interface {
	Upsert(ctx context.Context, records []VectorRecord) error
}

type StatusPublisher interface {
	Publish(ctx context.Context, ownerUserID string, ev ProgressEvent) error
}

type RecordUpdater interface {
	MarkEmbedded(ctx context.Context, fileID, summary string, tags []string) error
}

type TagSource interface {
	ListTags(ctx context.Context, ownerUserID string) ([]string, error)
}
