package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/cognicore/corpact/pkg/corpact/store"
)

// DefaultBatchSize bounds the number of URLs per existence check.
const DefaultBatchSize = 50

// SeenSet records URLs already emitted during one run.
type SeenSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewSeenSet creates an empty set.
func NewSeenSet() *SeenSet {
	return &SeenSet{seen: make(map[string]struct{})}
}

// Add marks url seen and reports whether it was new.
func (s *SeenSet) Add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[url]; ok {
		return false
	}
	s.seen[url] = struct{}{}
	return true
}

// Len returns the number of distinct URLs seen.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// FindExisting asks the store which urls are already persisted, batchSize
// keys at a time. Any store error aborts the check.
func FindExisting(ctx context.Context, st store.Store, urls []string, batchSize int) (map[string]struct{}, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	existing := make(map[string]struct{})
	for start := 0; start < len(urls); start += batchSize {
		end := start + batchSize
		if end > len(urls) {
			end = len(urls)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := st.FindAnnouncementsByURLs(ctx, urls[start:end])
		if err != nil {
			return nil, fmt.Errorf("existence check batch %d-%d: %w", start, end, err)
		}
		for u := range found {
			existing[u] = struct{}{}
		}
	}
	return existing, nil
}
