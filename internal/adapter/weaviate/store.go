package weaviate

import (
	"context"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"helpdesk/backend/features/knowledge"
)

// ClassName is the Weaviate class holding chunk vectors. Objects carry only
// metadata pointers; chunk content lives in Postgres.
const ClassName = "KnowledgeChunk"

// upsertBatchSize bounds one batch call. Batches commit independently, so a
// mid-run failure leaves earlier batches stored.
const upsertBatchSize = 100

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// objectID derives a stable Weaviate object UUID from the vector ID, so
// re-upserting the same record overwrites instead of duplicating.
func objectID(vectorID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(vectorID)).String())
}

// Upsert writes records in batches and returns how many were stored before
// any failure. A failed batch surfaces as a VectorBatchError carrying the
// offset of its first record.
func (s *Store) Upsert(ctx context.Context, records []knowledge.VectorRecord) (int, error) {
	stored := 0
	for offset := 0; offset < len(records); offset += upsertBatchSize {
		end := offset + upsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[offset:end]

		objs := make([]*models.Object, 0, len(batch))
		for _, rec := range batch {
			objs = append(objs, &models.Object{
				Class: ClassName,
				ID:    objectID(rec.VectorID),
				Properties: map[string]interface{}{
					"vectorId":      rec.VectorID,
					"chunkId":       rec.ChunkID,
					"documentId":    rec.DocumentID,
					"documentTitle": rec.DocumentTitle,
					"category":      rec.Category,
					"sectionTitle":  rec.SectionTitle,
				},
				Vector: rec.Embedding,
			})
		}

		resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
		if err != nil {
			return stored, &knowledge.VectorBatchError{Offset: offset, Err: err}
		}
		for _, r := range resp {
			if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
				return stored, &knowledge.VectorBatchError{
					Offset: offset,
					Err:    fmt.Errorf("object rejected: %s", r.Result.Errors.Error[0].Message),
				}
			}
		}
		stored += len(batch)
	}
	return stored, nil
}

// Query runs a nearVector search and returns the topK matches with metadata.
func (s *Store) Query(ctx context.Context, embedding []float32, topK int) ([]knowledge.VectorMatch, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(embedding)

	fields := []graphql.Field{
		{Name: "vectorId"},
		{Name: "chunkId"},
		{Name: "documentId"},
		{Name: "documentTitle"},
		{Name: "category"},
		{Name: "sectionTitle"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(ClassName).
		WithNearVector(nearVector).
		WithLimit(topK).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("vector query: %v: %w", err, knowledge.ErrVectorService)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("vector query: %v: %w", res.Errors[0].Message, knowledge.ErrVectorService)
	}

	var matches []knowledge.VectorMatch
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return matches, nil
	}
	hits, ok := data[ClassName].([]interface{})
	if !ok {
		return matches, nil
	}

	for _, h := range hits {
		props, ok := h.(map[string]interface{})
		if !ok {
			continue
		}
		m := knowledge.VectorMatch{
			VectorID:      stringProp(props, "vectorId"),
			ChunkID:       stringProp(props, "chunkId"),
			DocumentID:    stringProp(props, "documentId"),
			DocumentTitle: stringProp(props, "documentTitle"),
			Category:      stringProp(props, "category"),
			SectionTitle:  stringProp(props, "sectionTitle"),
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			// certainty arrives as a JSON number normally, but some server
			// versions serialize it as a string.
			switch v := additional["certainty"].(type) {
			case float64:
				m.Score = float32(v)
			case string:
				var f float64
				fmt.Sscanf(v, "%f", &f)
				m.Score = float32(f)
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// DeleteByIDs removes objects whose vectorId property matches any given ID.
// Missing IDs are not an error; deletion is idempotent.
func (s *Store) DeleteByIDs(ctx context.Context, vectorIDs []string) error {
	if len(vectorIDs) == 0 {
		return nil
	}

	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"vectorId"}).
			WithOperator(filters.ContainsAny).
			WithValueString(vectorIDs...)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("vector delete: %v: %w", err, knowledge.ErrVectorService)
	}
	return nil
}

func stringProp(props map[string]interface{}, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}
