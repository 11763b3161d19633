package store

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/corpact/pkg/corpact/internalerr"
)

// WIB is the exchange's local time zone (UTC+7). Feed timestamps without
// an offset are read in this zone.
var WIB = time.FixedZone("WIB", 7*60*60)

var publishedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParsePublished parses a feed timestamp into UTC.
func ParsePublished(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty published timestamp: %w", internalerr.ErrInvalidInput)
	}
	for _, layout := range publishedLayouts {
		if t, err := time.ParseInLocation(layout, raw, WIB); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable published timestamp %q: %w", raw, internalerr.ErrInvalidInput)
}

// NormalizeTicker trims and upper-cases a ticker.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a new lexically sortable identifier.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}

// PrepareEntity validates and normalizes a NewEntity.
func PrepareEntity(e NewEntity, now time.Time) (Entity, error) {
	ticker := NormalizeTicker(e.Ticker)
	if ticker == "" {
		return Entity{}, fmt.Errorf("entity ticker required: %w", internalerr.ErrInvalidInput)
	}
	name := strings.TrimSpace(e.Name)
	if name == "" {
		name = ticker
	}
	return Entity{
		ID:        NewID(),
		Ticker:    ticker,
		Name:      name,
		Sector:    strings.TrimSpace(e.Sector),
		CreatedAt: now.UTC(),
	}, nil
}

// PrepareAnnouncement validates a NewAnnouncement and parses its timestamp.
func PrepareAnnouncement(a NewAnnouncement, now time.Time) (Announcement, error) {
	title := strings.TrimSpace(a.Title)
	if title == "" {
		return Announcement{}, fmt.Errorf("announcement title required: %w", internalerr.ErrInvalidInput)
	}
	url := strings.TrimSpace(a.URL)
	if url == "" {
		return Announcement{}, fmt.Errorf("announcement url required: %w", internalerr.ErrInvalidInput)
	}
	if !a.Category.Valid() {
		return Announcement{}, fmt.Errorf("announcement category %q: %w", a.Category, internalerr.ErrInvalidInput)
	}
	if a.Confidence != nil && (*a.Confidence < 0 || *a.Confidence > 1) {
		return Announcement{}, fmt.Errorf("confidence %v out of range: %w", *a.Confidence, internalerr.ErrInvalidInput)
	}
	published, err := ParsePublished(a.Published)
	if err != nil {
		return Announcement{}, err
	}

	source := strings.TrimSpace(a.Source)
	if source == "" {
		source = DefaultSource
	}

	var conf *float64
	if a.Confidence != nil {
		v := *a.Confidence
		conf = &v
	}
	return Announcement{
		ID:          NewID(),
		Title:       title,
		URL:         url,
		Source:      source,
		PublishedAt: published,
		Category:    a.Category,
		Confidence:  conf,
		EntityID:    strings.TrimSpace(a.EntityID),
		CreatedAt:   now.UTC(),
	}, nil
}

// Window returns the inclusive time bounds of the filter.
func (f AnnouncementFilter) Window() (from, to time.Time) {
	from = f.From
	to = f.To
	if !to.IsZero() {
		h, m, s := to.Clock()
		if h == 0 && m == 0 && s == 0 && to.Nanosecond() == 0 {
			to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
	}
	return from, to
}

// Page clamps limit and offset into usable values.
func Page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
