package vector

import (
	"context"
	"fmt"
	"regexp"

	"github.com/weaviate/weaviate/entities/models"
)

// SchemaClient is the subset of Weaviate schema operations used at bootstrap.
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

var classNameRe = regexp.MustCompile(`^[A-Z][A-Za-z0-9_]*$`)

// Properties mirrors pipeline.RecordMetadata. Identifier fields are "string"
// so that filters match exactly.
func Properties() []*models.Property {
	return []*models.Property{
		{Name: "text", DataType: []string{"text"}},
		{Name: "fileId", DataType: []string{"string"}},
		{Name: "fileName", DataType: []string{"text"}},
		{Name: "blobUrl", DataType: []string{"string"}},
		{Name: "blobDownloadUrl", DataType: []string{"string"}},
		{Name: "mimeType", DataType: []string{"string"}},
		{Name: "userId", DataType: []string{"string"}},
		{Name: "page", DataType: []string{"int"}},
		{Name: "chunkIndex", DataType: []string{"int"}},
		{Name: "title", DataType: []string{"text"}},
		{Name: "keywords", DataType: []string{"text[]"}},
		{Name: "summary", DataType: []string{"text"}},
		{Name: "questions", DataType: []string{"text[]"}},
	}
}

// EnsureSchema creates the chunk class, or adds any properties it is missing.
func EnsureSchema(ctx context.Context, client SchemaClient, className string) error {
	if !classNameRe.MatchString(className) {
		return fmt.Errorf("invalid weaviate class name %q", className)
	}

	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}

	properties := Properties()
	if !exists {
		return client.CreateClass(ctx, &models.Class{
			Class:       className,
			Description: "An embedded chunk of an uploaded file",
			Vectorizer:  "none",
			Properties:  properties,
		})
	}

	class, err := client.GetClass(ctx, className)
	if err != nil {
		return err
	}

	have := make(map[string]bool, len(class.Properties))
	for _, p := range class.Properties {
		have[p.Name] = true
	}
	for _, p := range properties {
		if have[p.Name] {
			continue
		}
		if err := client.AddProperty(ctx, className, p); err != nil {
			return fmt.Errorf("add property %s: %w", p.Name, err)
		}
	}
	return nil
}
