package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"helpdesk/backend/features/knowledge"
)

// Embedder generates embeddings through the Gemini API. It is the fallback
// provider when no OpenAI-compatible endpoint is configured.
type Embedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

func NewEmbedder(ctx context.Context, apiKey, model string, dimensions int, opts ...option.ClientOption) (*Embedder, error) {
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	return &Embedder{client: client, model: model, dimensions: dimensions}, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))
	em := e.client.EmbeddingModel(e.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, fmt.Errorf("embed content: %v: %w", err, knowledge.ErrEmbeddingService)
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("empty embedding response: %w", knowledge.ErrEmbeddingService)
	}
	if err := e.checkDimensions(res.Embedding.Values); err != nil {
		return nil, err
	}
	return res.Embedding.Values, nil
}

// EmbedBatch embeds all texts in one API round trip. The response preserves
// input order. Any failure fails the whole batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	em := e.client.EmbeddingModel(e.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		slog.ErrorContext(ctx, "batch embedding failed", "error", err, "count", len(texts))
		return nil, fmt.Errorf("batch embed: %v: %w", err, knowledge.ErrEmbeddingService)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d: %w",
			len(texts), len(res.Embeddings), knowledge.ErrEmbeddingService)
	}

	out := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("empty embedding at position %d: %w", i, knowledge.ErrEmbeddingService)
		}
		if err := e.checkDimensions(emb.Values); err != nil {
			return nil, err
		}
		out[i] = emb.Values
	}
	return out, nil
}

func (e *Embedder) checkDimensions(values []float32) error {
	if e.dimensions > 0 && len(values) != e.dimensions {
		return fmt.Errorf("embedding dimensionality %d, want %d: %w",
			len(values), e.dimensions, knowledge.ErrEmbeddingService)
	}
	return nil
}
