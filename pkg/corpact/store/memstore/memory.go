package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cognicore/corpact/pkg/corpact/internalerr"
	"github.com/cognicore/corpact/pkg/corpact/store"
)

// Store is an in-memory implementation of store.Store for tests and
// single-process runs.
type Store struct {
	mu            sync.RWMutex
	entities      map[string]store.Entity // by ID
	tickerIndex   map[string]string       // upper-case ticker -> ID
	announcements map[string]store.Announcement
	urlIndex      map[string]string // URL -> ID
	now           func() time.Time
	closed        bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		entities:      make(map[string]store.Entity),
		tickerIndex:   make(map[string]string),
		announcements: make(map[string]store.Announcement),
		urlIndex:      make(map[string]string),
		now:           time.Now,
	}
}

// Close implements store.Store. Later calls fail with ErrStoreUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) check() error {
	if s.closed {
		return fmt.Errorf("memstore closed: %w", internalerr.ErrStoreUnavailable)
	}
	return nil
}

// FindEntityByTicker looks up an entity by case-insensitive ticker.
func (s *Store) FindEntityByTicker(ctx context.Context, ticker string) (store.Entity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return store.Entity{}, false, err
	}

	id, ok := s.tickerIndex[store.NormalizeTicker(ticker)]
	if !ok {
		return store.Entity{}, false, nil
	}
	return s.entities[id], true, nil
}

// CreateEntity inserts an entity. A ticker already present yields ErrDuplicate.
func (s *Store) CreateEntity(ctx context.Context, e store.NewEntity) (store.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return store.Entity{}, err
	}

	ent, err := store.PrepareEntity(e, s.now())
	if err != nil {
		return store.Entity{}, err
	}
	if _, exists := s.tickerIndex[ent.Ticker]; exists {
		return store.Entity{}, fmt.Errorf("entity %s: %w", ent.Ticker, internalerr.ErrDuplicate)
	}

	s.entities[ent.ID] = ent
	s.tickerIndex[ent.Ticker] = ent.ID
	return ent, nil
}

// GetEntity returns an entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (store.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return store.Entity{}, err
	}

	if ent, ok := s.entities[id]; ok {
		return ent, nil
	}
	return store.Entity{}, fmt.Errorf("entity %s: %w", id, internalerr.ErrNotFound)
}

// ListEntities returns one page of entities ordered by ticker and the
// number matching the filter.
func (s *Store) ListEntities(ctx context.Context, f store.EntityFilter) ([]store.Entity, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, 0, err
	}

	needle := store.NormalizeTicker(f.TickerContains)
	var matched []store.Entity
	for _, ent := range s.entities {
		if needle == "" || strings.Contains(ent.Ticker, needle) {
			matched = append(matched, ent)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Ticker < matched[j].Ticker
	})

	limit, offset := store.Page(f.Limit, f.Offset)
	return window(matched, limit, offset), len(matched), nil
}

// FindAnnouncementsByURLs returns the subset of urls already stored.
func (s *Store) FindAnnouncementsByURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	found := make(map[string]struct{})
	for _, u := range urls {
		if _, ok := s.urlIndex[u]; ok {
			found[u] = struct{}{}
		}
	}
	return found, nil
}

// CreateAnnouncement inserts an announcement. A URL already present yields
// ErrDuplicate; an unknown EntityID yields ErrNotFound.
func (s *Store) CreateAnnouncement(ctx context.Context, a store.NewAnnouncement) (store.Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return store.Announcement{}, err
	}

	ann, err := store.PrepareAnnouncement(a, s.now())
	if err != nil {
		return store.Announcement{}, err
	}
	if _, exists := s.urlIndex[ann.URL]; exists {
		return store.Announcement{}, fmt.Errorf("announcement %s: %w", ann.URL, internalerr.ErrDuplicate)
	}
	if ann.EntityID != "" {
		if _, ok := s.entities[ann.EntityID]; !ok {
			return store.Announcement{}, fmt.Errorf("entity %s: %w", ann.EntityID, internalerr.ErrNotFound)
		}
	}

	s.announcements[ann.ID] = ann
	s.urlIndex[ann.URL] = ann.ID
	return copyAnnouncement(ann), nil
}

// ListAnnouncements returns matching announcements newest first and the
// total number of matches before paging.
func (s *Store) ListAnnouncements(ctx context.Context, f store.AnnouncementFilter) ([]store.Announcement, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, 0, err
	}

	from, to := f.Window()
	var matched []store.Announcement
	for _, ann := range s.announcements {
		if f.EntityID != "" && ann.EntityID != f.EntityID {
			continue
		}
		if f.Category != "" && ann.Category != f.Category {
			continue
		}
		if !from.IsZero() && ann.PublishedAt.Before(from) {
			continue
		}
		if !to.IsZero() && ann.PublishedAt.After(to) {
			continue
		}
		matched = append(matched, copyAnnouncement(ann))
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].PublishedAt.Equal(matched[j].PublishedAt) {
			return matched[i].PublishedAt.After(matched[j].PublishedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	limit, offset := store.Page(f.Limit, f.Offset)
	return window(matched, limit, offset), len(matched), nil
}

// Len reports the number of stored announcements and entities.
func (s *Store) Len() (announcements, entities int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.announcements), len(s.entities)
}

func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func copyAnnouncement(a store.Announcement) store.Announcement {
	if a.Confidence != nil {
		v := *a.Confidence
		a.Confidence = &v
	}
	return a
}
