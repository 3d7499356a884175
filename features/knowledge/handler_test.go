package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"helpdesk/backend/internal/config"
)

type MockIndexerService struct{ mock.Mock }

func (m *MockIndexerService) ProcessDocument(ctx context.Context, doc Document) (ProcessResult, error) {
	args := m.Called(ctx, doc)
	return args.Get(0).(ProcessResult), args.Error(1)
}

func (m *MockIndexerService) DeleteDocument(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

type MockRetrieverService struct{ mock.Mock }

func (m *MockRetrieverService) Search(ctx context.Context, query string, topK int) (SearchResult, error) {
	args := m.Called(ctx, query, topK)
	return args.Get(0).(SearchResult), args.Error(1)
}

type MockTaskPublisher struct{ mock.Mock }

func (m *MockTaskPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

func newTestHandler(indexer *MockIndexerService, retriever *MockRetrieverService, pub *MockTaskPublisher) *Handler {
	return NewHandler(indexer, retriever, pub, time.Minute)
}

func TestHandler_ProcessDocument(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMocks func(*MockIndexerService)
		wantStatus int
		wantCode   string
	}{
		{
			name: "Success",
			body: `{"id":"doc-1","title":"Shipping Policy","category":"policies","content":"## A\n\ntext"}`,
			setupMocks: func(m *MockIndexerService) {
				m.On("ProcessDocument", mock.Anything, mock.MatchedBy(func(d Document) bool {
					return d.ID == "doc-1" && d.Title == "Shipping Policy"
				})).Return(ProcessResult{ChunksCreated: 3, VectorsStored: 3}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "Invalid JSON",
			body:       `{`,
			setupMocks: func(m *MockIndexerService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "Missing Title",
			body:       `{"id":"doc-1"}`,
			setupMocks: func(m *MockIndexerService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name: "Embedding Failure",
			body: `{"id":"doc-1","title":"T","content":"c"}`,
			setupMocks: func(m *MockIndexerService) {
				m.On("ProcessDocument", mock.Anything, mock.Anything).
					Return(ProcessResult{}, ErrEmbeddingService)
			},
			wantStatus: http.StatusBadGateway,
			wantCode:   "EMBEDDING_SERVICE_ERROR",
		},
		{
			name: "Vector Failure",
			body: `{"id":"doc-1","title":"T","content":"c"}`,
			setupMocks: func(m *MockIndexerService) {
				m.On("ProcessDocument", mock.Anything, mock.Anything).
					Return(ProcessResult{}, &VectorBatchError{Offset: 0, Err: errors.New("down")})
			},
			wantStatus: http.StatusBadGateway,
			wantCode:   "VECTOR_SERVICE_ERROR",
		},
		{
			name: "Partial Index",
			body: `{"id":"doc-1","title":"T","content":"c"}`,
			setupMocks: func(m *MockIndexerService) {
				m.On("ProcessDocument", mock.Anything, mock.Anything).
					Return(ProcessResult{ChunksCreated: 120, VectorsStored: 100},
						&PartialIndexError{DocumentID: "doc-1", VectorsStored: 100, Err: ErrVectorService})
			},
			wantStatus: http.StatusBadGateway,
			wantCode:   "PARTIAL_INDEX",
		},
		{
			name: "Internal Error",
			body: `{"id":"doc-1","title":"T","content":"c"}`,
			setupMocks: func(m *MockIndexerService) {
				m.On("ProcessDocument", mock.Anything, mock.Anything).
					Return(ProcessResult{}, errors.New("db down"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			indexer := new(MockIndexerService)
			tt.setupMocks(indexer)

			h := newTestHandler(indexer, new(MockRetrieverService), new(MockTaskPublisher))
			req := httptest.NewRequest("POST", "/documents", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			h.ProcessDocument(w, req)

			resp := w.Result()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body map[string]interface{}
			assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

			if tt.wantCode != "" {
				errMap := body["error"].(map[string]interface{})
				assert.Equal(t, tt.wantCode, errMap["code"])
			} else {
				data := body["data"].(map[string]interface{})
				assert.EqualValues(t, 3, data["chunks_created"])
				assert.EqualValues(t, 3, data["vectors_stored"])
			}
		})
	}
}

func TestHandler_EnqueueDocument(t *testing.T) {
	pub := new(MockTaskPublisher)
	pub.On("Publish", config.TopicKnowledgeIngest, mock.MatchedBy(func(body []byte) bool {
		var payload map[string]interface{}
		if err := json.Unmarshal(body, &payload); err != nil {
			return false
		}
		return payload["document_id"] == "doc-1" && payload["title"] == "Shipping Policy"
	})).Return(nil)

	h := newTestHandler(new(MockIndexerService), new(MockRetrieverService), pub)
	req := httptest.NewRequest("POST", "/documents/enqueue",
		strings.NewReader(`{"id":"doc-1","title":"Shipping Policy","content":"text"}`))
	w := httptest.NewRecorder()

	h.EnqueueDocument(w, req)

	assert.Equal(t, http.StatusAccepted, w.Result().StatusCode)
	pub.AssertExpectations(t)
}

func TestHandler_EnqueueDocument_PublishFailure(t *testing.T) {
	pub := new(MockTaskPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("nsqd unreachable"))

	h := newTestHandler(new(MockIndexerService), new(MockRetrieverService), pub)
	req := httptest.NewRequest("POST", "/documents/enqueue",
		strings.NewReader(`{"id":"doc-1","title":"T","content":"c"}`))
	w := httptest.NewRecorder()

	h.EnqueueDocument(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Result().StatusCode)
}

func TestHandler_DeleteDocument(t *testing.T) {
	indexer := new(MockIndexerService)
	indexer.On("DeleteDocument", mock.Anything, "doc-1").Return(nil)

	h := newTestHandler(indexer, new(MockRetrieverService), new(MockTaskPublisher))

	req := httptest.NewRequest("DELETE", "/documents/doc-1", nil)
	req.SetPathValue("id", "doc-1")
	w := httptest.NewRecorder()

	h.DeleteDocument(w, req)

	assert.Equal(t, http.StatusNoContent, w.Result().StatusCode)
	indexer.AssertExpectations(t)
}

func TestHandler_DeleteDocument_MissingID(t *testing.T) {
	h := newTestHandler(new(MockIndexerService), new(MockRetrieverService), new(MockTaskPublisher))

	req := httptest.NewRequest("DELETE", "/documents/", nil)
	w := httptest.NewRecorder()

	h.DeleteDocument(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func TestHandler_Search(t *testing.T) {
	retriever := new(MockRetrieverService)
	retriever.On("Search", mock.Anything, "express shipping", 3).Return(SearchResult{
		Chunks: []RankedChunk{
			{ID: "doc-1-chunk-0", DocumentTitle: "Shipping Policy", Score: 0.91, Content: "details"},
		},
		Context:     "# Knowledge Base Context\n...",
		SourcesUsed: []string{"Shipping Policy"},
	}, nil)

	h := newTestHandler(new(MockIndexerService), retriever, new(MockTaskPublisher))
	req := httptest.NewRequest("POST", "/search",
		strings.NewReader(`{"query":"express shipping","top_k":3}`))
	w := httptest.NewRecorder()

	h.Search(w, req)

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	data := body["data"].(map[string]interface{})
	chunks := data["chunks"].([]interface{})
	assert.Len(t, chunks, 1)
	assert.Equal(t, []interface{}{"Shipping Policy"}, data["sources_used"])
}

func TestHandler_Search_EmptyQuery(t *testing.T) {
	h := newTestHandler(new(MockIndexerService), new(MockRetrieverService), new(MockTaskPublisher))
	req := httptest.NewRequest("POST", "/search", strings.NewReader(`{"query":""}`))
	w := httptest.NewRecorder()

	h.Search(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func TestHandler_Search_NoResults(t *testing.T) {
	retriever := new(MockRetrieverService)
	retriever.On("Search", mock.Anything, "unknown topic", 0).Return(SearchResult{
		Chunks:      []RankedChunk{},
		SourcesUsed: []string{},
	}, nil)

	h := newTestHandler(new(MockIndexerService), retriever, new(MockTaskPublisher))
	req := httptest.NewRequest("POST", "/search", strings.NewReader(`{"query":"unknown topic"}`))
	w := httptest.NewRecorder()

	h.Search(w, req)

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	data := body["data"].(map[string]interface{})
	assert.Empty(t, data["chunks"])
}
