package weaviate

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"docvault/internal/pipeline"
	"docvault/internal/vector"
)

// Store writes chunk records into one Weaviate class.
type Store struct {
	client    *weaviate.Client
	className string
	dims      int
}

func NewStore(client *weaviate.Client, className string, dims int) *Store {
	return &Store{client: client, className: className, dims: dims}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewSchemaAdapter(s.client), s.className)
}

// Upsert batch-writes records. Objects are keyed by record id, so writing the
// same file twice replaces rather than duplicates.
func (s *Store) Upsert(ctx context.Context, records []pipeline.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	objects := make([]*models.Object, 0, len(records))
	for _, rec := range records {
		if s.dims > 0 && len(rec.Vector) != s.dims {
			return fmt.Errorf("%w: record %s has %d, index expects %d", pipeline.ErrDimensionMismatch, rec.ID, len(rec.Vector), s.dims)
		}
		objects = append(objects, &models.Object{
			Class:      s.className,
			ID:         strfmt.UUID(rec.ID),
			Properties: properties(rec.Metadata),
			Vector:     rec.Vector,
		})
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate batch: %w", err)
	}

	var failed []string
	for _, r := range resp {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		for _, e := range r.Result.Errors.Error {
			failed = append(failed, fmt.Sprintf("%s: %s", r.ID, e.Message))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("weaviate batch: %d object errors: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}

func (s *Store) DeleteByFile(ctx context.Context, fileID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.className).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"fileId"}).
			WithOperator(filters.Equal).
			WithValueString(fileID)).
		Do(ctx)
	return err
}

var hitFields = []graphql.Field{
	{Name: "text"},
	{Name: "fileId"},
	{Name: "fileName"},
	{Name: "blobUrl"},
	{Name: "blobDownloadUrl"},
	{Name: "mimeType"},
	{Name: "userId"},
	{Name: "page"},
	{Name: "chunkIndex"},
	{Name: "title"},
	{Name: "keywords"},
	{Name: "summary"},
	{Name: "questions"},
	{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
}

// Search returns the owner's chunks nearest to vec.
func (s *Store) Search(ctx context.Context, ownerUserID string, vec []float32, limit int) ([]vector.Hit, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)
	where := filters.Where().
		WithPath([]string{"userId"}).
		WithOperator(filters.Equal).
		WithValueString(ownerUserID)

	res, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithNearVector(nearVector).
		WithWhere(where).
		WithLimit(limit).
		WithFields(hitFields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	get, _ := res.Data["Get"].(map[string]interface{})
	rows, _ := get[s.className].([]interface{})

	hits := make([]vector.Hit, 0, len(rows))
	for _, row := range rows {
		props, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		hit := vector.Hit{Metadata: metadataFrom(props)}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			hit.ID, _ = additional["id"].(string)
			if d, ok := additional["distance"].(float64); ok {
				hit.Score = float32(1 - d)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *Store) CountChunks(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(s.className).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	agg, _ := res.Data["Aggregate"].(map[string]interface{})
	groups, _ := agg[s.className].([]interface{})
	if len(groups) == 0 {
		return 0, nil
	}
	group, _ := groups[0].(map[string]interface{})
	meta, _ := group["meta"].(map[string]interface{})
	count, _ := meta["count"].(float64)
	return int(count), nil
}

func properties(m pipeline.RecordMetadata) map[string]interface{} {
	props := map[string]interface{}{
		"text":            m.Text,
		"fileId":          m.FileID,
		"fileName":        m.FileName,
		"blobUrl":         m.BlobURL,
		"blobDownloadUrl": m.DownloadURL,
		"mimeType":        m.MimeType,
		"userId":          m.OwnerUserID,
		"page":            m.Page,
		"chunkIndex":      m.ChunkIndex,
	}
	if m.Title != "" {
		props["title"] = m.Title
	}
	if len(m.Keywords) > 0 {
		props["keywords"] = m.Keywords
	}
	if m.Summary != "" {
		props["summary"] = m.Summary
	}
	if len(m.Questions) > 0 {
		props["questions"] = m.Questions
	}
	return props
}

func metadataFrom(props map[string]interface{}) pipeline.RecordMetadata {
	str := func(k string) string {
		v, _ := props[k].(string)
		return v
	}
	num := func(k string) int {
		v, _ := props[k].(float64)
		return int(v)
	}
	list := func(k string) []string {
		raw, _ := props[k].([]interface{})
		out := make([]string, 0, len(raw))
		for _, r := range raw {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}

	return pipeline.RecordMetadata{
		Text:        str("text"),
		FileID:      str("fileId"),
		FileName:    str("fileName"),
		BlobURL:     str("blobUrl"),
		DownloadURL: str("blobDownloadUrl"),
		MimeType:    str("mimeType"),
		OwnerUserID: str("userId"),
		Page:        num("page"),
		ChunkIndex:  num("chunkIndex"),
		Title:       str("title"),
		Keywords:    list("keywords"),
		Summary:     str("summary"),
		Questions:   list("questions"),
	}
}
