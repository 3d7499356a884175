package weaviate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk/backend/features/knowledge"
	wstore "helpdesk/backend/internal/adapter/weaviate"
	"helpdesk/backend/internal/testutils"
	"helpdesk/backend/internal/vector"
)

func TestStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	ctx := context.Background()
	require.NoError(t, vector.EnsureSchema(ctx, vector.NewWeaviateClientAdapter(s.Weaviate)))

	store := wstore.NewStore(s.Weaviate)

	records := []knowledge.VectorRecord{
		{
			VectorID:      "vec-doc-1-chunk-0",
			Embedding:     []float32{0.9, 0.1, 0.1},
			ChunkID:       "doc-1-chunk-0",
			DocumentID:    "doc-1",
			DocumentTitle: "Shipping Policy",
			Category:      "shipping",
			SectionTitle:  "Standard",
		},
		{
			VectorID:      "vec-doc-1-chunk-1",
			Embedding:     []float32{0.1, 0.9, 0.1},
			ChunkID:       "doc-1-chunk-1",
			DocumentID:    "doc-1",
			DocumentTitle: "Shipping Policy",
			Category:      "shipping",
			SectionTitle:  "Express",
		},
	}

	stored, err := store.Upsert(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)

	// Near-vector search biased toward the first record.
	var matches []knowledge.VectorMatch
	require.Eventually(t, func() bool {
		matches, err = store.Query(ctx, []float32{0.9, 0.1, 0.1}, 2)
		return err == nil && len(matches) == 2
	}, 10*time.Second, 250*time.Millisecond)

	assert.Equal(t, "doc-1-chunk-0", matches[0].ChunkID)
	assert.Equal(t, "Shipping Policy", matches[0].DocumentTitle)
	assert.Equal(t, "Standard", matches[0].SectionTitle)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	// Re-upserting the same vector IDs overwrites instead of duplicating.
	records[0].SectionTitle = "Standard Shipping"
	stored, err = store.Upsert(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)

	require.Eventually(t, func() bool {
		matches, err = store.Query(ctx, []float32{0.9, 0.1, 0.1}, 10)
		if err != nil || len(matches) != 2 {
			return false
		}
		return matches[0].SectionTitle == "Standard Shipping"
	}, 10*time.Second, 250*time.Millisecond)

	// Delete by vector ID removes the objects.
	err = store.DeleteByIDs(ctx, []string{"vec-doc-1-chunk-0", "vec-doc-1-chunk-1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		matches, err = store.Query(ctx, []float32{0.9, 0.1, 0.1}, 10)
		return err == nil && len(matches) == 0
	}, 10*time.Second, 250*time.Millisecond)
}
