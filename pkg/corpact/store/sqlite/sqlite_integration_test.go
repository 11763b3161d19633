package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cognicore/corpact/pkg/corpact/category"
	"github.com/cognicore/corpact/pkg/corpact/internalerr"
	"github.com/cognicore/corpact/pkg/corpact/store"
)

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	st, err := OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func conf(v float64) *float64 { return &v }

// TestSQLiteEntities tests entity creation, lookup and uniqueness
func TestSQLiteEntities(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	created, err := st.CreateEntity(ctx, store.NewEntity{Ticker: "bbca", Sector: "Finance"})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if created.Ticker != "BBCA" || created.Name != "BBCA" {
		t.Errorf("Expected BBCA/BBCA, got %s/%s", created.Ticker, created.Name)
	}

	found, ok, err := st.FindEntityByTicker(ctx, "bBcA")
	if err != nil {
		t.Fatalf("FindEntityByTicker: %v", err)
	}
	if !ok {
		t.Fatal("Entity should be found")
	}
	if found.ID != created.ID || found.Sector != "Finance" {
		t.Errorf("Expected %+v, got %+v", created, found)
	}
	if !found.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", found.CreatedAt, created.CreatedAt)
	}

	if _, err := st.CreateEntity(ctx, store.NewEntity{Ticker: "BBCA"}); !errors.Is(err, internalerr.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}

	if _, ok, err := st.FindEntityByTicker(ctx, "BMRI"); err != nil || ok {
		t.Errorf("Expected BMRI missing, got ok=%v err=%v", ok, err)
	}

	got, err := st.GetEntity(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got.Ticker != "BBCA" {
		t.Errorf("Expected BBCA, got %s", got.Ticker)
	}
	if _, err := st.GetEntity(ctx, "missing"); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

// TestSQLiteAnnouncementDedup tests URL uniqueness and existence checks
func TestSQLiteAnnouncementDedup(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	ent, err := st.CreateEntity(ctx, store.NewEntity{Ticker: "BBCA"})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	in := store.NewAnnouncement{
		Title:      "Pengumuman HMETD [BBCA]",
		URL:        "https://example.test/a.pdf",
		Source:     "idx",
		Published:  "2024-03-01T08:00:00",
		Category:   category.RightsIssue,
		Confidence: conf(0.5),
		EntityID:   ent.ID,
	}
	created, err := st.CreateAnnouncement(ctx, in)
	if err != nil {
		t.Fatalf("CreateAnnouncement: %v", err)
	}
	wantPublished := time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)
	if !created.PublishedAt.Equal(wantPublished) {
		t.Errorf("Expected published %v, got %v", wantPublished, created.PublishedAt)
	}

	if _, err := st.CreateAnnouncement(ctx, in); !errors.Is(err, internalerr.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}

	found, err := st.FindAnnouncementsByURLs(ctx, []string{in.URL, in.URL, "https://example.test/missing.pdf", ""})
	if err != nil {
		t.Fatalf("FindAnnouncementsByURLs: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("Expected 1 url, got %d", len(found))
	}

	empty, err := st.FindAnnouncementsByURLs(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("Expected empty result, got %v / %v", empty, err)
	}

	list, total, err := st.ListAnnouncements(ctx, store.AnnouncementFilter{})
	if err != nil {
		t.Fatalf("ListAnnouncements: %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("Expected 1 announcement, got %d/%d", len(list), total)
	}
	got := list[0]
	if got.ID != created.ID || got.EntityID != ent.ID || got.Category != category.RightsIssue {
		t.Errorf("Round trip mismatch: %+v", got)
	}
	if got.Confidence == nil || *got.Confidence != 0.5 {
		t.Errorf("Expected confidence 0.5, got %v", got.Confidence)
	}
}

// TestSQLiteAnnouncementValidation tests rejected inputs
func TestSQLiteAnnouncementValidation(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	_, err := st.CreateAnnouncement(ctx, store.NewAnnouncement{
		Title: "t", URL: "u", Published: "not a date", Category: category.MTO,
	})
	if !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}

	_, err = st.CreateAnnouncement(ctx, store.NewAnnouncement{
		Title: "t", URL: "u", Published: "2024-03-01", Category: category.MTO, EntityID: "ghost",
	})
	if !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	// nothing was written
	_, total, _ := st.ListAnnouncements(ctx, store.AnnouncementFilter{})
	if total != 0 {
		t.Errorf("Expected empty table, got %d", total)
	}
}

// TestSQLiteNullableFields tests announcements without entity or confidence
func TestSQLiteNullableFields(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	if _, err := st.CreateAnnouncement(ctx, store.NewAnnouncement{
		Title: "Laporan", URL: "u1", Published: "2024-03-01", Category: category.BackdoorListing,
	}); err != nil {
		t.Fatalf("CreateAnnouncement: %v", err)
	}

	list, _, err := st.ListAnnouncements(ctx, store.AnnouncementFilter{})
	if err != nil {
		t.Fatalf("ListAnnouncements: %v", err)
	}
	if list[0].EntityID != "" || list[0].Confidence != nil {
		t.Errorf("Expected null entity and confidence, got %+v", list[0])
	}
	if list[0].Source != store.DefaultSource {
		t.Errorf("Expected default source, got %q", list[0].Source)
	}
}

// TestSQLiteConcurrentEntityCreate tests the unique ticker constraint under contention
func TestSQLiteConcurrentEntityCreate(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dups    int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.CreateEntity(ctx, store.NewEntity{Ticker: "TLKM"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, internalerr.ErrDuplicate):
				dups++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 || dups != 9 {
		t.Errorf("Expected 1 created and 9 duplicates, got %d/%d", created, dups)
	}
}

// TestSQLiteReopen tests data survives closing and reopening the file
func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "reopen.db")

	st, err := OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if _, err := st.CreateEntity(ctx, store.NewEntity{Ticker: "ASII"}); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	st.Close()

	st, err = OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite (reopen): %v", err)
	}
	defer st.Close()

	if _, ok, err := st.FindEntityByTicker(ctx, "asii"); err != nil || !ok {
		t.Errorf("Expected ASII after reopen, got ok=%v err=%v", ok, err)
	}
}
