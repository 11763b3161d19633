package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/cognicore/corpact/pkg/corpact/category"
	"github.com/cognicore/corpact/pkg/corpact/store"
)

func TestSQLiteListAnnouncements(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	bbca, _ := st.CreateEntity(ctx, store.NewEntity{Ticker: "BBCA"})
	bmri, _ := st.CreateEntity(ctx, store.NewEntity{Ticker: "BMRI"})

	seed := []store.NewAnnouncement{
		{Title: "a", URL: "u1", Published: "2024-03-01T08:00:00", Category: category.RightsIssue, EntityID: bbca.ID},
		{Title: "b", URL: "u2", Published: "2024-03-02 08:00:00", Category: category.MTO, EntityID: bbca.ID},
		{Title: "c", URL: "u3", Published: "2024-03-03T08:00:00+07:00", Category: category.RightsIssue, EntityID: bmri.ID},
		{Title: "d", URL: "u4", Published: "2024-03-04", Category: category.BackdoorListing},
	}
	for _, a := range seed {
		if _, err := st.CreateAnnouncement(ctx, a); err != nil {
			t.Fatalf("CreateAnnouncement(%s): %v", a.URL, err)
		}
	}

	tests := []struct {
		name      string
		filter    store.AnnouncementFilter
		wantURLs  []string
		wantTotal int
	}{
		{name: "all", wantURLs: []string{"u4", "u3", "u2", "u1"}, wantTotal: 4},
		{name: "entity", filter: store.AnnouncementFilter{EntityID: bbca.ID}, wantURLs: []string{"u2", "u1"}, wantTotal: 2},
		{name: "category", filter: store.AnnouncementFilter{Category: category.RightsIssue}, wantURLs: []string{"u3", "u1"}, wantTotal: 2},
		{
			name: "entity and category",
			filter: store.AnnouncementFilter{
				EntityID: bbca.ID,
				Category: category.MTO,
			},
			wantURLs:  []string{"u2"},
			wantTotal: 1,
		},
		{
			name: "range through end of day",
			filter: store.AnnouncementFilter{
				From: time.Date(2024, 3, 2, 0, 0, 0, 0, store.WIB),
				To:   time.Date(2024, 3, 3, 0, 0, 0, 0, store.WIB),
			},
			wantURLs:  []string{"u3", "u2"},
			wantTotal: 2,
		},
		{name: "limit offset", filter: store.AnnouncementFilter{Limit: 1, Offset: 2}, wantURLs: []string{"u2"}, wantTotal: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := st.ListAnnouncements(ctx, tt.filter)
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

func TestSQLiteListEntities(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	for _, tk := range []string{"TLKM", "BBCA", "BBRI", "BMRI", "INET-R"} {
		if _, err := st.CreateEntity(ctx, store.NewEntity{Ticker: tk}); err != nil {
			t.Fatalf("CreateEntity(%s): %v", tk, err)
		}
	}

	tests := []struct {
		filter    store.EntityFilter
		want      []string
		wantTotal int
	}{
		{filter: store.EntityFilter{TickerContains: "bb"}, want: []string{"BBCA", "BBRI"}, wantTotal: 2},
		{filter: store.EntityFilter{TickerContains: "-r"}, want: []string{"INET-R"}, wantTotal: 1},
		{filter: store.EntityFilter{TickerContains: "%"}, want: []string{}, wantTotal: 0},
		{filter: store.EntityFilter{Limit: 2, Offset: 1}, want: []string{"BBRI", "BMRI"}, wantTotal: 5},
		{filter: store.EntityFilter{TickerContains: "b", Limit: 1}, want: []string{"BBCA"}, wantTotal: 3},
	}

	for _, tt := range tests {
		got, total, err := st.ListEntities(ctx, tt.filter)
		if err != nil {
			t.Fatalf("ListEntities(%+v): %v", tt.filter, err)
		}
		if total != tt.wantTotal {
			t.Errorf("ListEntities(%+v): expected total %d, got %d", tt.filter, tt.wantTotal, total)
		}
		if len(got) != len(tt.want) {
			t.Errorf("ListEntities(%+v): expected %v, got %d results", tt.filter, tt.want, len(got))
			continue
		}
		for i := range tt.want {
			if got[i].Ticker != tt.want[i] {
				t.Errorf("ListEntities(%+v)[%d] = %s, want %s", tt.filter, i, got[i].Ticker, tt.want[i])
			}
		}
	}
}
