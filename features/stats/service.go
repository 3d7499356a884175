package stats

import (
	"context"
	"sync"
	"time"

	"helpdesk/backend/features/knowledge"
)

// StatsSource provides the aggregate counts behind the stats payload.
type StatsSource interface {
	TotalChunks(ctx context.Context) (int, error)
	TotalDocuments(ctx context.Context) (int, error)
	ChunksByCategory(ctx context.Context) (map[string]int, error)
}

// Service serves index statistics with a short TTL cache. Writers call
// Invalidate after changing the index so the next read recomputes.
type Service struct {
	source StatsSource
	ttl    time.Duration

	mu       sync.Mutex
	cached   *knowledge.Stats
	cachedAt time.Time

	now func() time.Time
}

func NewService(source StatsSource, ttl time.Duration) *Service {
	return &Service{source: source, ttl: ttl, now: time.Now}
}

func (s *Service) GetStats(ctx context.Context) (knowledge.Stats, error) {
	s.mu.Lock()
	if s.cached != nil && s.now().Sub(s.cachedAt) < s.ttl {
		cached := *s.cached
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	chunks, err := s.source.TotalChunks(ctx)
	if err != nil {
		return knowledge.Stats{}, err
	}
	docs, err := s.source.TotalDocuments(ctx)
	if err != nil {
		return knowledge.Stats{}, err
	}
	byCategory, err := s.source.ChunksByCategory(ctx)
	if err != nil {
		return knowledge.Stats{}, err
	}

	stats := knowledge.Stats{
		TotalChunks:      chunks,
		TotalDocuments:   docs,
		ChunksByCategory: byCategory,
	}

	s.mu.Lock()
	s.cached = &stats
	s.cachedAt = s.now()
	s.mu.Unlock()

	return stats, nil
}

// Invalidate drops the cached snapshot. Stale reads between an index write
// and invalidation are acceptable; the TTL bounds them anyway.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}
