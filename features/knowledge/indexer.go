package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"helpdesk/backend/internal/text"
)

// StatsInvalidator drops any cached stats after a write. Optional; a nil
// invalidator is ignored.
type StatsInvalidator interface {
	Invalidate()
}

// Indexer owns the ingest path: chunk, embed, then replace the document's
// rows and vectors. The delete-then-insert sequence is the unit of
// consistency per document, which makes reprocessing idempotent.
type Indexer struct {
	repo     Repository
	embedder Embedder
	index    VectorIndex
	stats    StatsInvalidator
}

func NewIndexer(repo Repository, embedder Embedder, index VectorIndex, stats StatsInvalidator) *Indexer {
	return &Indexer{repo: repo, embedder: embedder, index: index, stats: stats}
}

func (s *Indexer) ProcessDocument(ctx context.Context, doc Document) (ProcessResult, error) {
	// 1. Chunk. A document entirely below the minimum floor is a valid
	// zero-chunk outcome; storage is left untouched.
	parts := text.ChunkDocument(doc.Title, doc.Content, text.MaxChunkTokens, text.MinChunkTokens)
	if len(parts) == 0 {
		slog.InfoContext(ctx, "document produced no chunks", "document_id", doc.ID)
		return ProcessResult{}, nil
	}

	// 2. Embed every chunk in one batch. A failure here aborts before any
	// write, leaving the document's previous index state intact.
	texts := make([]string, len(parts))
	for i, p := range parts {
		texts[i] = p.Content
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("embed document %s: %w", doc.ID, err)
	}

	chunks := make([]Chunk, len(parts))
	records := make([]VectorRecord, len(parts))
	for i, p := range parts {
		chunkID := fmt.Sprintf("%s-chunk-%d", doc.ID, i)
		vectorID := "vec-" + chunkID

		chunks[i] = Chunk{
			ID:            chunkID,
			DocumentID:    doc.ID,
			DocumentTitle: doc.Title,
			Category:      doc.Category,
			SectionTitle:  p.SectionTitle,
			ChunkIndex:    i,
			Content:       p.Content,
			TokenCount:    p.TokenCount,
			VectorID:      vectorID,
		}
		records[i] = VectorRecord{
			VectorID:      vectorID,
			Embedding:     embeddings[i],
			ChunkID:       chunkID,
			DocumentID:    doc.ID,
			DocumentTitle: doc.Title,
			Category:      doc.Category,
			SectionTitle:  p.SectionTitle,
		}
	}

	// 3. Full replace: drop the previous chunk set from both stores before
	// writing the new one.
	oldVectorIDs, err := s.repo.VectorIDsByDocument(ctx, doc.ID)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("collect old vectors for %s: %w", doc.ID, err)
	}
	if len(oldVectorIDs) > 0 {
		if err := s.index.DeleteByIDs(ctx, oldVectorIDs); err != nil {
			return ProcessResult{}, fmt.Errorf("delete old vectors for %s: %w", doc.ID, err)
		}
	}
	if err := s.repo.DeleteByDocument(ctx, doc.ID); err != nil {
		return ProcessResult{}, fmt.Errorf("delete old chunks for %s: %w", doc.ID, err)
	}

	// 4. Write the new rows, each already carrying its vector ID.
	if err := s.repo.UpsertChunks(ctx, doc.ID, chunks); err != nil {
		return ProcessResult{}, fmt.Errorf("store chunks for %s: %w", doc.ID, err)
	}

	// 5. Upsert vectors in bounded batches. If a later batch fails after
	// earlier ones committed, the document is partially indexed; callers
	// must retry the whole document, not individual chunks.
	stored, err := s.index.Upsert(ctx, records)
	if err != nil {
		if stored > 0 {
			return ProcessResult{ChunksCreated: len(chunks), VectorsStored: stored},
				&PartialIndexError{DocumentID: doc.ID, VectorsStored: stored, Err: err}
		}
		return ProcessResult{ChunksCreated: len(chunks)}, fmt.Errorf("store vectors for %s: %w", doc.ID, err)
	}

	s.invalidateStats()
	slog.InfoContext(ctx, "document processed",
		"document_id", doc.ID, "chunks", len(chunks), "vectors", stored)

	return ProcessResult{ChunksCreated: len(chunks), VectorsStored: stored}, nil
}

// DeleteDocument removes the document's rows and vectors. Deleting a
// document that does not exist is a no-op.
func (s *Indexer) DeleteDocument(ctx context.Context, documentID string) error {
	vectorIDs, err := s.repo.VectorIDsByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("collect vectors for %s: %w", documentID, err)
	}

	if len(vectorIDs) > 0 {
		if err := s.index.DeleteByIDs(ctx, vectorIDs); err != nil {
			// Rows still go away; stale vectors are dropped at hydration.
			slog.WarnContext(ctx, "failed to delete vectors", "document_id", documentID, "error", err)
		}
	}

	if err := s.repo.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", documentID, err)
	}

	s.invalidateStats()
	slog.InfoContext(ctx, "document deleted", "document_id", documentID, "vectors", len(vectorIDs))
	return nil
}

func (s *Indexer) invalidateStats() {
	if s.stats != nil {
		s.stats.Invalidate()
	}
}
