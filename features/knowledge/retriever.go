package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"helpdesk/backend/internal/middleware"
)

// DefaultTopK is used when the caller does not ask for a specific depth.
const DefaultTopK = 5

// Retriever owns the read path: embed the query, hit the vector index,
// hydrate full chunk content from Postgres and rank. The two stores are not
// transactionally coupled; matches whose rows are gone are dropped, never
// errored.
type Retriever struct {
	embedder Embedder
	index    VectorIndex
	repo     Repository
	logger   *QueryLogger
}

func NewRetriever(embedder Embedder, index VectorIndex, repo Repository, logger *QueryLogger) *Retriever {
	return &Retriever{embedder: embedder, index: index, repo: repo, logger: logger}
}

func (s *Retriever) Search(ctx context.Context, query string, topK int) (SearchResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	start := time.Now()
	result := emptyResult()
	var err error

	defer func() {
		if s.logger != nil && err == nil {
			s.logger.Log(QueryLogEntry{
				Query:         query,
				NumResults:    len(result.Chunks),
				Duration:      time.Since(start),
				CorrelationID: middleware.GetCorrelationID(ctx),
			})
		}
	}()

	// 1. Embed the query.
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return result, fmt.Errorf("embed query: %w", err)
	}

	// 2. Nearest vectors with similarity scores.
	matches, err := s.index.Query(ctx, vec, topK)
	if err != nil {
		return result, fmt.Errorf("query vector index: %w", err)
	}
	if len(matches) == 0 {
		// No matches is a valid outcome, distinct from failure.
		return result, nil
	}

	// 3. Hydrate full content from the content store.
	chunkIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.ChunkID != "" {
			chunkIDs = append(chunkIDs, m.ChunkID)
		}
	}
	rows, err := s.repo.GetByIDs(ctx, chunkIDs)
	if err != nil {
		return result, fmt.Errorf("hydrate chunks: %w", err)
	}

	byID := make(map[string]Chunk, len(rows))
	for _, c := range rows {
		byID[c.ID] = c
	}

	type scored struct {
		RankedChunk
		chunkIndex int
	}
	ranked := make([]scored, 0, len(matches))
	for _, m := range matches {
		c, ok := byID[m.ChunkID]
		if !ok {
			// Likely a race with a concurrent delete; drop silently.
			slog.DebugContext(ctx, "match missing from content store", "chunk_id", m.ChunkID)
			continue
		}
		ranked = append(ranked, scored{
			RankedChunk: RankedChunk{
				ID:            c.ID,
				DocumentTitle: c.DocumentTitle,
				SectionTitle:  c.SectionTitle,
				Category:      c.Category,
				Content:       c.Content,
				Score:         m.Score,
			},
			chunkIndex: c.ChunkIndex,
		})
	}

	// 4. Score descending; ties break on document position for determinism.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].chunkIndex < ranked[j].chunkIndex
	})

	for _, r := range ranked {
		result.Chunks = append(result.Chunks, r.RankedChunk)
	}

	// 5. Distinct source titles in first-seen order, for citation.
	seen := make(map[string]bool)
	for _, c := range result.Chunks {
		if !seen[c.DocumentTitle] {
			seen[c.DocumentTitle] = true
			result.SourcesUsed = append(result.SourcesUsed, c.DocumentTitle)
		}
	}

	result.Context = renderContext(result.Chunks)
	return result, nil
}

func emptyResult() SearchResult {
	return SearchResult{Chunks: []RankedChunk{}, SourcesUsed: []string{}}
}

// renderContext formats the ranked chunks as a grounding block for a
// downstream answer, with source attribution and score percentages.
func renderContext(chunks []RankedChunk) string {
	if len(chunks) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("# Knowledge Base Context\n\n")
	b.WriteString("The following information is from our knowledge base. ")
	b.WriteString("Use this to answer the customer's question accurately.\n\n")

	for i, c := range chunks {
		source := c.DocumentTitle
		if c.SectionTitle != "" {
			source += " > " + c.SectionTitle
		}
		b.WriteString("---\n")
		fmt.Fprintf(&b, "**Source %d**: %s\n", i+1, source)
		fmt.Fprintf(&b, "**Relevance Score**: %.1f%%\n\n", c.Score*100)
		b.WriteString(c.Content)
		b.WriteString("\n\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}
