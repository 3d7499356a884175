package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

// EnsureSchema creates the KnowledgeChunk class if missing and backfills any
// properties added since the class was first created. Vectors are supplied by
// the caller, so the vectorizer stays off.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	className := "KnowledgeChunk"
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}

	properties := []*models.Property{
		{
			Name:     "vectorId",
			DataType: []string{"string"}, // deterministic ID (exact match)
		},
		{
			Name:     "chunkId",
			DataType: []string{"string"},
		},
		{
			Name:     "documentId",
			DataType: []string{"string"},
		},
		{
			Name:     "documentTitle",
			DataType: []string{"text"},
		},
		{
			Name:     "category",
			DataType: []string{"string"},
		},
		{
			Name:     "sectionTitle",
			DataType: []string{"text"},
		},
	}

	if !exists {
		class := &models.Class{
			Class:       className,
			Description: "A vectorized chunk of a knowledge base document",
			Vectorizer:  "none",
			VectorIndexConfig: map[string]interface{}{
				"distance": "cosine",
			},
			Properties: properties,
		}
		return client.CreateClass(ctx, class)
	}

	// Class exists, check for missing properties
	class, err := client.GetClass(ctx, className)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, className, p); err != nil {
				return err
			}
		}
	}

	return nil
}
