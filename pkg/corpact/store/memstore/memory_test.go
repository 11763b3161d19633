package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cognicore/corpact/pkg/corpact/category"
	"github.com/cognicore/corpact/pkg/corpact/internalerr"
	"github.com/cognicore/corpact/pkg/corpact/store"
)

var _ store.Store = (*Store)(nil)

func TestEntityCreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.CreateEntity(ctx, store.NewEntity{Ticker: "bbca"})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if created.Ticker != "BBCA" || created.Name != "BBCA" {
		t.Errorf("Expected BBCA/BBCA, got %s/%s", created.Ticker, created.Name)
	}

	found, ok, err := s.FindEntityByTicker(ctx, "Bbca")
	if err != nil {
		t.Fatalf("FindEntityByTicker: %v", err)
	}
	if !ok || found.ID != created.ID {
		t.Errorf("Expected to find %s, got %+v (ok=%v)", created.ID, found, ok)
	}

	if _, ok, _ := s.FindEntityByTicker(ctx, "BMRI"); ok {
		t.Error("BMRI should not exist")
	}

	_, err = s.CreateEntity(ctx, store.NewEntity{Ticker: "BBCA"})
	if !errors.Is(err, internalerr.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}

	if _, err := s.GetEntity(ctx, "missing"); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestEntityConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.CreateEntity(ctx, store.NewEntity{Ticker: "TLKM"}); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("Expected exactly one creation, got %d", created)
	}
}

func TestAnnouncementUniqueURL(t *testing.T) {
	ctx := context.Background()
	s := New()

	in := store.NewAnnouncement{
		Title:     "Pengumuman HMETD [BBCA]",
		URL:       "https://example.test/a.pdf",
		Published: "2024-03-01T08:00:00",
		Category:  category.RightsIssue,
	}
	if _, err := s.CreateAnnouncement(ctx, in); err != nil {
		t.Fatalf("CreateAnnouncement: %v", err)
	}
	if _, err := s.CreateAnnouncement(ctx, in); !errors.Is(err, internalerr.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}

	found, err := s.FindAnnouncementsByURLs(ctx, []string{in.URL, "https://example.test/other.pdf"})
	if err != nil {
		t.Fatalf("FindAnnouncementsByURLs: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("Expected 1 existing url, got %d", len(found))
	}
	if _, ok := found[in.URL]; !ok {
		t.Errorf("Expected %s to be reported", in.URL)
	}
}

func TestAnnouncementUnknownEntity(t *testing.T) {
	_, err := New().CreateAnnouncement(context.Background(), store.NewAnnouncement{
		Title:     "t",
		URL:       "u",
		Published: "2024-03-01",
		Category:  category.MTO,
		EntityID:  "nope",
	})
	if !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestListAnnouncementsFilters(t *testing.T) {
	ctx := context.Background()
	s := New()

	bbca, _ := s.CreateEntity(ctx, store.NewEntity{Ticker: "BBCA"})
	bmri, _ := s.CreateEntity(ctx, store.NewEntity{Ticker: "BMRI"})

	seed := []store.NewAnnouncement{
		{Title: "a", URL: "u1", Published: "2024-03-01T08:00:00", Category: category.RightsIssue, EntityID: bbca.ID},
		{Title: "b", URL: "u2", Published: "2024-03-02T08:00:00", Category: category.MTO, EntityID: bbca.ID},
		{Title: "c", URL: "u3", Published: "2024-03-03T08:00:00", Category: category.RightsIssue, EntityID: bmri.ID},
		{Title: "d", URL: "u4", Published: "2024-03-04T08:00:00", Category: category.BackdoorListing},
	}
	for _, a := range seed {
		if _, err := s.CreateAnnouncement(ctx, a); err != nil {
			t.Fatalf("CreateAnnouncement(%s): %v", a.URL, err)
		}
	}

	tests := []struct {
		name      string
		filter    store.AnnouncementFilter
		wantURLs  []string
		wantTotal int
	}{
		{name: "all newest first", filter: store.AnnouncementFilter{}, wantURLs: []string{"u4", "u3", "u2", "u1"}, wantTotal: 4},
		{name: "by entity", filter: store.AnnouncementFilter{EntityID: bbca.ID}, wantURLs: []string{"u2", "u1"}, wantTotal: 2},
		{name: "by category", filter: store.AnnouncementFilter{Category: category.RightsIssue}, wantURLs: []string{"u3", "u1"}, wantTotal: 2},
		{
			name: "date range inclusive end day",
			filter: store.AnnouncementFilter{
				From: time.Date(2024, 3, 2, 0, 0, 0, 0, store.WIB),
				To:   time.Date(2024, 3, 3, 0, 0, 0, 0, store.WIB),
			},
			wantURLs:  []string{"u3", "u2"},
			wantTotal: 2,
		},
		{name: "paged", filter: store.AnnouncementFilter{Limit: 2, Offset: 1}, wantURLs: []string{"u3", "u2"}, wantTotal: 4},
		{name: "offset past end", filter: store.AnnouncementFilter{Offset: 10}, wantURLs: []string{}, wantTotal: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := s.ListAnnouncements(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListAnnouncements: %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("Expected total %d, got %d", tt.wantTotal, total)
			}
			if len(got) != len(tt.wantURLs) {
				t.Fatalf("Expected %d results, got %d", len(tt.wantURLs), len(got))
			}
			for i, want := range tt.wantURLs {
				if got[i].URL != want {
					t.Errorf("result %d: expected %s, got %s", i, want, got[i].URL)
				}
			}
		})
	}
}

func TestListEntities(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, tk := range []string{"TLKM", "BBCA", "BBRI", "BMRI"} {
		if _, err := s.CreateEntity(ctx, store.NewEntity{Ticker: tk}); err != nil {
			t.Fatalf("CreateEntity(%s): %v", tk, err)
		}
	}

	got, total, err := s.ListEntities(ctx, store.EntityFilter{TickerContains: "bb"})
	if err != nil {
		t.Fatalf("ListEntities: %v", err)
	}
	if total != 2 {
		t.Errorf("Expected total 2, got %d", total)
	}
	if len(got) != 2 || got[0].Ticker != "BBCA" || got[1].Ticker != "BBRI" {
		t.Errorf("Expected [BBCA BBRI], got %v", tickers(got))
	}

	all, total, _ := s.ListEntities(ctx, store.EntityFilter{Limit: 3})
	if len(all) != 3 || all[0].Ticker != "BBCA" {
		t.Errorf("Expected first 3 sorted, got %v", tickers(all))
	}
	if total != 4 {
		t.Errorf("Expected total 4 beyond the page, got %d", total)
	}
}

func TestClosedStore(t *testing.T) {
	s := New()
	_ = s.Close()
	_, err := s.FindAnnouncementsByURLs(context.Background(), []string{"u"})
	if !errors.Is(err, internalerr.ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
}

func tickers(es []store.Entity) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Ticker
	}
	return out
}
