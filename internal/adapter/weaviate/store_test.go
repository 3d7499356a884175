package weaviate_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"helpdesk/backend/features/knowledge"
	adapter "helpdesk/backend/internal/adapter/weaviate"
)

func mockWeaviate(t *testing.T, handler http.HandlerFunc) (*weaviate.Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	cfg := weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"}
	client, err := weaviate.NewClient(cfg)
	assert.NoError(t, err)
	return client, ts
}

func TestStore_Upsert(t *testing.T) {
	var gotObjects []map[string]interface{}
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		assert.Equal(t, "/v1/batch/objects", r.URL.Path)
		assert.Equal(t, "POST", r.Method)

		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		objs := body["objects"].([]interface{})
		resp := make([]map[string]interface{}, 0, len(objs))
		for _, o := range objs {
			obj := o.(map[string]interface{})
			gotObjects = append(gotObjects, obj)
			resp = append(resp, map[string]interface{}{
				"class":  obj["class"],
				"id":     obj["id"],
				"result": map[string]interface{}{"status": "SUCCESS"},
			})
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	records := []knowledge.VectorRecord{
		{
			VectorID:      "vec-doc-1-chunk-0",
			ChunkID:       "doc-1-chunk-0",
			DocumentID:    "doc-1",
			DocumentTitle: "Shipping Policy",
			Category:      "policies",
			Embedding:     []float32{0.1, 0.2},
		},
		{
			VectorID:  "vec-doc-1-chunk-1",
			ChunkID:   "doc-1-chunk-1",
			Embedding: []float32{0.3, 0.4},
		},
	}

	stored, err := store.Upsert(context.Background(), records)
	assert.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.Len(t, gotObjects, 2)

	props := gotObjects[0]["properties"].(map[string]interface{})
	assert.Equal(t, "vec-doc-1-chunk-0", props["vectorId"])
	assert.Equal(t, "doc-1-chunk-0", props["chunkId"])
	assert.Equal(t, "Shipping Policy", props["documentTitle"])
}

func TestStore_Upsert_DeterministicObjectIDs(t *testing.T) {
	ids := map[string]int{}
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		objs := body["objects"].([]interface{})
		resp := make([]map[string]interface{}, 0, len(objs))
		for _, o := range objs {
			obj := o.(map[string]interface{})
			ids[obj["id"].(string)]++
			resp = append(resp, map[string]interface{}{
				"id":     obj["id"],
				"result": map[string]interface{}{},
			})
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}
	client, ts := mockWeaviate(t, handler)
	defer ts.Close()

	store := adapter.NewStore(client)
	records := []knowledge.VectorRecord{{VectorID: "vec-doc-1-chunk-0", Embedding: []float32{0.1}}}

	_, err := store.Upsert(context.Background(), records)
	assert.NoError(t, err)
	_, err = store.Upsert(context.Background(), records)
	assert.NoError(t, err)

	// Same vector ID maps to the same object UUID, so re-upsert overwrites.
	assert.Len(t, ids, 1)
	for _, n := range ids {
		assert.Equal(t, 2, n)
	}
}

func TestStore_Upsert_BatchFailure(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"id": "x",
				"result": map[string]interface{}{
					"errors": map[string]interface{}{
						"error": []map[string]interface{}{{"message": "invalid vector"}},
					},
				},
			},
		})
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	records := []knowledge.VectorRecord{{VectorID: "vec-doc-1-chunk-0", Embedding: []float32{0.1}}}

	stored, err := store.Upsert(context.Background(), records)
	assert.Equal(t, 0, stored)

	var batchErr *knowledge.VectorBatchError
	assert.True(t, errors.As(err, &batchErr))
	assert.Equal(t, 0, batchErr.Offset)
	assert.True(t, errors.Is(err, knowledge.ErrVectorService))
}

func TestStore_Query(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		assert.Equal(t, "/v1/graphql", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		resp := map[string]interface{}{
			"data": map[string]interface{}{
				"Get": map[string]interface{}{
					"KnowledgeChunk": []interface{}{
						map[string]interface{}{
							"vectorId":      "vec-doc-1-chunk-0",
							"chunkId":       "doc-1-chunk-0",
							"documentId":    "doc-1",
							"documentTitle": "Shipping Policy",
							"category":      "policies",
							"sectionTitle":  "Express",
							"_additional":   map[string]interface{}{"certainty": 0.92},
						},
						map[string]interface{}{
							"chunkId":     "doc-2-chunk-3",
							"_additional": map[string]interface{}{"certainty": "0.85"},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	matches, err := store.Query(context.Background(), []float32{0.1, 0.2}, 5)
	assert.NoError(t, err)
	assert.Len(t, matches, 2)
	assert.Equal(t, "doc-1-chunk-0", matches[0].ChunkID)
	assert.Equal(t, "Shipping Policy", matches[0].DocumentTitle)
	assert.Equal(t, float32(0.92), matches[0].Score)
	// String-encoded certainty is parsed too.
	assert.Equal(t, float32(0.85), matches[1].Score)
}

func TestStore_Query_GraphQLError(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		resp := map[string]interface{}{
			"errors": []map[string]interface{}{{"message": "class not found"}},
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	_, err := store.Query(context.Background(), []float32{0.1}, 5)
	assert.True(t, errors.Is(err, knowledge.ErrVectorService))
}

func TestStore_Query_NoHits(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		resp := map[string]interface{}{
			"data": map[string]interface{}{
				"Get": map[string]interface{}{
					"KnowledgeChunk": []interface{}{},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	matches, err := store.Query(context.Background(), []float32{0.1}, 5)
	assert.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStore_DeleteByIDs(t *testing.T) {
	deleteCalled := false
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		assert.Equal(t, "/v1/batch/objects", r.URL.Path)
		assert.Equal(t, "DELETE", r.Method)
		deleteCalled = true
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{})
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	err := store.DeleteByIDs(context.Background(), []string{"vec-doc-1-chunk-0", "vec-doc-1-chunk-1"})
	assert.NoError(t, err)
	assert.True(t, deleteCalled)
}

func TestStore_DeleteByIDs_Empty(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/meta" {
			t.Fatal("no request expected for empty ID list")
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"version": "1.19.0"}`))
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	err := store.DeleteByIDs(context.Background(), nil)
	assert.NoError(t, err)
}
