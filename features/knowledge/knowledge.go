package knowledge

import (
	"context"
	"errors"
	"fmt"
)

// Document is the unit of ingest: normalized, heading-delimited text owned by
// the knowledge-management collaborator. The engine holds no authoritative
// copy; reprocessing fully replaces the document's chunk set.
type Document struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Content  string `json:"content"`
}

// Chunk is the atomic retrieval unit stored in Postgres. IDs are
// deterministic ({documentId}-chunk-{index}) so reprocessing identical
// content yields identical rows.
type Chunk struct {
	ID            string `json:"id"`
	DocumentID    string `json:"document_id"`
	DocumentTitle string `json:"document_title"`
	Category      string `json:"category"`
	SectionTitle  string `json:"section_title,omitempty"`
	ChunkIndex    int    `json:"chunk_index"`
	Content       string `json:"content"`
	TokenCount    int    `json:"token_count"`
	VectorID      string `json:"vector_id,omitempty"`
}

// VectorRecord is what the vector index stores: the embedding plus a minimal
// metadata pointer. Full chunk text never goes into the index; Postgres is
// the source of truth for content.
type VectorRecord struct {
	VectorID      string
	Embedding     []float32
	ChunkID       string
	DocumentID    string
	DocumentTitle string
	Category      string
	SectionTitle  string
}

// VectorMatch is one similarity hit from the vector index.
type VectorMatch struct {
	VectorID      string
	ChunkID       string
	DocumentID    string
	DocumentTitle string
	Category      string
	SectionTitle  string
	Score         float32
}

// RankedChunk is a hydrated match in the search response.
type RankedChunk struct {
	ID            string  `json:"id"`
	DocumentTitle string  `json:"document_title"`
	SectionTitle  string  `json:"section_title,omitempty"`
	Category      string  `json:"category"`
	Content       string  `json:"content"`
	Score         float32 `json:"score"`
}

// SearchResult is the retrieval response. Context is a pre-formatted
// rendering of the ranked chunks for prompt grounding; structured callers
// should read Chunks directly. Empty Chunks with a nil error is a valid
// no-match outcome, not a failure.
type SearchResult struct {
	Chunks      []RankedChunk `json:"chunks"`
	Context     string        `json:"context"`
	SourcesUsed []string      `json:"sources_used"`
}

// ProcessResult reports what an ingest run wrote.
type ProcessResult struct {
	ChunksCreated int `json:"chunks_created"`
	VectorsStored int `json:"vectors_stored"`
}

// Stats is the read-only introspection payload for dashboards.
type Stats struct {
	TotalChunks      int            `json:"total_chunks"`
	TotalDocuments   int            `json:"total_documents"`
	ChunksByCategory map[string]int `json:"chunks_by_category"`
}

var (
	// ErrEmbeddingService marks a failed or malformed embedding call. The
	// whole operation fails; no partial embeddings are accepted.
	ErrEmbeddingService = errors.New("embedding service error")
	// ErrVectorService marks a vector index upsert, query or delete failure.
	ErrVectorService = errors.New("vector service error")
)

// VectorBatchError reports a failed upsert batch with enough information to
// know which records committed before the failure.
type VectorBatchError struct {
	Offset int // index of the first record in the failed batch
	Err    error
}

func (e *VectorBatchError) Error() string {
	return fmt.Sprintf("vector upsert failed at batch offset %d: %v", e.Offset, e.Err)
}

func (e *VectorBatchError) Unwrap() error { return ErrVectorService }

// PartialIndexError means some vector batches committed before a later one
// failed: the document is partially indexed and must be retried as a whole,
// never patched per chunk.
type PartialIndexError struct {
	DocumentID    string
	VectorsStored int
	Err           error
}

func (e *PartialIndexError) Error() string {
	return fmt.Sprintf("document %s partially indexed (%d vectors stored): %v",
		e.DocumentID, e.VectorsStored, e.Err)
}

func (e *PartialIndexError) Unwrap() error { return e.Err }

// Embedder converts text into fixed-dimension vectors. EmbedBatch preserves
// input order in its output regardless of any reordering by the remote
// service, and fails as a whole call.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the adapter over the external ANN service. Upsert commits
// in bounded batches and reports a failed batch via VectorBatchError; it
// returns how many records were stored before any failure.
type VectorIndex interface {
	Upsert(ctx context.Context, records []VectorRecord) (int, error)
	Query(ctx context.Context, embedding []float32, topK int) ([]VectorMatch, error)
	DeleteByIDs(ctx context.Context, vectorIDs []string) error
}

// Repository is the relational content store for chunk rows.
type Repository interface {
	UpsertChunks(ctx context.Context, documentID string, chunks []Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) error
	GetByIDs(ctx context.Context, chunkIDs []string) ([]Chunk, error)
	VectorIDsByDocument(ctx context.Context, documentID string) ([]string, error)
	TotalChunks(ctx context.Context) (int, error)
	TotalDocuments(ctx context.Context) (int, error)
	ChunksByCategory(ctx context.Context) (map[string]int, error)
}
