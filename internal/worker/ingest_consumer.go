package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"helpdesk/backend/features/knowledge"
	"helpdesk/backend/internal/middleware"
)

// IngestConsumer indexes documents queued on knowledge.ingest. Malformed
// messages are dropped; indexing failures are returned so NSQ redelivers,
// which is safe because reprocessing fully replaces the document.
type IngestConsumer struct {
	indexer IndexerService
}

func NewIngestConsumer(indexer IndexerService) *IngestConsumer {
	return &IngestConsumer{indexer: indexer}
}

func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestPayload
	err := json.Unmarshal(m.Body, &payload)

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	ctx := context.Background()
	ctx = middleware.WithCorrelationID(ctx, correlationID)

	if err != nil {
		slog.ErrorContext(ctx, "invalid message format", "error", err)
		return nil // Don't retry invalid messages
	}

	if payload.DocumentID == "" || payload.Title == "" {
		slog.ErrorContext(ctx, "missing required fields, dropping",
			"document_id", payload.DocumentID, "title", payload.Title)
		return nil
	}

	slog.InfoContext(ctx, "received document for indexing",
		"document_id", payload.DocumentID, "content_len", len(payload.Content))

	result, err := h.indexer.ProcessDocument(ctx, knowledge.Document{
		ID:       payload.DocumentID,
		Title:    payload.Title,
		Category: payload.Category,
		Content:  payload.Content,
	})
	if err != nil {
		var partial *knowledge.PartialIndexError
		if errors.As(err, &partial) {
			slog.ErrorContext(ctx, "document partially indexed, requeueing",
				"document_id", payload.DocumentID, "vectors_stored", partial.VectorsStored, "error", err)
		} else {
			slog.ErrorContext(ctx, "failed to index document",
				"document_id", payload.DocumentID, "error", err)
		}
		return err // Durable: redeliver and reprocess the whole document
	}

	slog.InfoContext(ctx, "document indexed",
		"document_id", payload.DocumentID,
		"chunks_created", result.ChunksCreated,
		"vectors_stored", result.VectorsStored)
	return nil
}
