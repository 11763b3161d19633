// Package store defines the persistence gateway used by the ingestion
// pipeline and the read side. Implementations must enforce URL uniqueness
// for announcements and case-insensitive ticker uniqueness for entities.
package store

import (
	"context"
	"time"

	"github.com/cognicore/corpact/pkg/corpact/category"
)

// Store is the persistence gateway.
type Store interface {
	Close() error

	// Entities
	FindEntityByTicker(ctx context.Context, ticker string) (Entity, bool, error)
	CreateEntity(ctx context.Context, e NewEntity) (Entity, error)
	GetEntity(ctx context.Context, id string) (Entity, error)
	ListEntities(ctx context.Context, f EntityFilter) ([]Entity, int, error)

	// Announcements
	FindAnnouncementsByURLs(ctx context.Context, urls []string) (map[string]struct{}, error)
	CreateAnnouncement(ctx context.Context, a NewAnnouncement) (Announcement, error)
	ListAnnouncements(ctx context.Context, f AnnouncementFilter) ([]Announcement, int, error)
}

// Entity is a listed company identified by its ticker.
type Entity struct {
	ID        string
	Ticker    string
	Name      string
	Sector    string
	CreatedAt time.Time
}

// NewEntity is the input to CreateEntity.
type NewEntity struct {
	Ticker string
	Name   string
	Sector string
}

// Announcement is a persisted disclosure. EntityID is empty when no
// issuer could be attributed. Confidence is nil when unknown.
type Announcement struct {
	ID          string
	Title       string
	URL         string
	Source      string
	PublishedAt time.Time
	Category    category.Category
	Confidence  *float64
	EntityID    string
	CreatedAt   time.Time
}

// NewAnnouncement is the input to CreateAnnouncement. Published is the
// feed's raw timestamp string; the gateway parses it.
type NewAnnouncement struct {
	Title      string
	URL        string
	Source     string
	Published  string
	Category   category.Category
	Confidence *float64
	EntityID   string
}

// AnnouncementFilter selects announcements for the read side. Zero values
// mean "no constraint". A To value at midnight covers the whole day.
type AnnouncementFilter struct {
	EntityID string
	Category category.Category
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// EntityFilter selects entities by ticker substring.
type EntityFilter struct {
	TickerContains string
	Limit          int
	Offset         int
}

const (
	// DefaultSource labels announcements created without a source.
	DefaultSource = "idx"

	DefaultListLimit = 50
	MaxListLimit     = 500
)
