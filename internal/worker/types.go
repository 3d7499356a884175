package worker

import (
	"context"

	"helpdesk/backend/features/knowledge"
)

// IngestPayload is the message body on the knowledge.ingest topic: a full
// document to (re)index. Reprocessing replaces the document's chunk set, so
// redelivery is safe.
type IngestPayload struct {
	DocumentID    string `json:"document_id"`
	Title         string `json:"title"`
	Category      string `json:"category"`
	Content       string `json:"content"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type IndexerService interface {
	ProcessDocument(ctx context.Context, doc knowledge.Document) (knowledge.ProcessResult, error)
	DeleteDocument(ctx context.Context, documentID string) error
}
