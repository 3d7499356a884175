package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"helpdesk/backend/internal/config"
	"helpdesk/backend/internal/middleware"
)

type IndexerService interface {
	ProcessDocument(ctx context.Context, doc Document) (ProcessResult, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

type RetrieverService interface {
	Search(ctx context.Context, query string, topK int) (SearchResult, error)
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type Handler struct {
	indexer   IndexerService
	retriever RetrieverService
	pub       TaskPublisher
	opTimeout time.Duration
}

func NewHandler(indexer IndexerService, retriever RetrieverService, pub TaskPublisher, opTimeout time.Duration) *Handler {
	return &Handler{indexer: indexer, retriever: retriever, pub: pub, opTimeout: opTimeout}
}

// ProcessDocument ingests one document synchronously and reports how many
// chunks and vectors were written.
func (h *Handler) ProcessDocument(w http.ResponseWriter, r *http.Request) {
	var doc Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if doc.ID == "" || doc.Title == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "id and title are required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opTimeout)
	defer cancel()

	result, err := h.indexer.ProcessDocument(ctx, doc)
	if err != nil {
		h.writeServiceError(r.Context(), w, err, doc.ID)
		return
	}

	h.writeData(w, http.StatusOK, result)
}

// EnqueueDocument accepts a document for asynchronous ingestion via NSQ.
// The consumer retries the whole document on failure.
func (h *Handler) EnqueueDocument(w http.ResponseWriter, r *http.Request) {
	var doc Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if doc.ID == "" || doc.Title == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "id and title are required", http.StatusBadRequest)
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"document_id":    doc.ID,
		"title":          doc.Title,
		"category":       doc.Category,
		"content":        doc.Content,
		"correlation_id": middleware.GetCorrelationID(r.Context()),
	})
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if err := h.pub.Publish(config.TopicKnowledgeIngest, payload); err != nil {
		slog.ErrorContext(r.Context(), "failed to publish ingest task", "error", err, "document_id", doc.ID)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to enqueue document", http.StatusInternalServerError)
		return
	}

	slog.InfoContext(r.Context(), "ingest task enqueued", "document_id", doc.ID)
	h.writeData(w, http.StatusAccepted, map[string]string{"document_id": doc.ID, "status": "queued"})
}

func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "document id is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opTimeout)
	defer cancel()

	if err := h.indexer.DeleteDocument(ctx, id); err != nil {
		h.writeServiceError(r.Context(), w, err, id)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "query is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opTimeout)
	defer cancel()

	result, err := h.retriever.Search(ctx, req.Query, req.TopK)
	if err != nil {
		h.writeServiceError(r.Context(), w, err, req.Query)
		return
	}

	h.writeData(w, http.StatusOK, result)
}

// writeServiceError maps the error taxonomy onto status codes: upstream
// service failures are 502s so callers can tell them from our own faults.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, subject string) {
	var partial *PartialIndexError
	switch {
	case errors.As(err, &partial):
		slog.ErrorContext(ctx, "document partially indexed", "error", err, "document_id", partial.DocumentID)
		h.writeError(ctx, w, "PARTIAL_INDEX", err.Error(), http.StatusBadGateway)
	case errors.Is(err, ErrEmbeddingService):
		slog.ErrorContext(ctx, "embedding service failure", "error", err, "subject", subject)
		h.writeError(ctx, w, "EMBEDDING_SERVICE_ERROR", "Embedding service unavailable", http.StatusBadGateway)
	case errors.Is(err, ErrVectorService):
		slog.ErrorContext(ctx, "vector service failure", "error", err, "subject", subject)
		h.writeError(ctx, w, "VECTOR_SERVICE_ERROR", "Vector index unavailable", http.StatusBadGateway)
	default:
		slog.ErrorContext(ctx, "operation failed", "error", err, "subject", subject)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
