package corpact

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cognicore/corpact/pkg/corpact/category"
	"github.com/cognicore/corpact/pkg/corpact/classify"
	"github.com/cognicore/corpact/pkg/corpact/ingest"
	"github.com/cognicore/corpact/pkg/corpact/internalerr"
	"github.com/cognicore/corpact/pkg/corpact/store"
)

// Corpact is the ingestion and query facade
type Corpact struct {
	store      store.Store
	pipeline   *ingest.Pipeline
	classifier *classify.Classifier
	logger     arbor.ILogger
}

// Options configures a Corpact instance
type Options struct {
	Store      store.Store
	Pipeline   *ingest.Pipeline
	Classifier *classify.Classifier
	Logger     arbor.ILogger
}

// New creates a Corpact instance with the given dependencies
func New(opts Options) *Corpact {
	if opts.Classifier == nil {
		opts.Classifier = classify.Default()
	}
	if opts.Logger == nil {
		opts.Logger = arbor.NewLogger()
	}
	return &Corpact{
		store:      opts.Store,
		pipeline:   opts.Pipeline,
		classifier: opts.Classifier,
		logger:     opts.Logger,
	}
}

// Close cleanly shuts down the Corpact instance
func (c *Corpact) Close() error {
	return c.store.Close()
}

// Store exposes the underlying gateway
func (c *Corpact) Store() store.Store {
	return c.store
}

// Run performs one ingestion run
func (c *Corpact) Run(ctx context.Context) (ingest.Report, error) {
	if c.pipeline == nil {
		return ingest.Report{}, fmt.Errorf("no ingestion pipeline configured: %w", internalerr.ErrInvalidConfig)
	}
	return c.pipeline.Run(ctx)
}

// Classify scores free text with the configured classifier
func (c *Corpact) Classify(title, body string) classify.Result {
	return c.classifier.Classify(title, body)
}

// AnnouncementQuery selects announcements. Ticker and Category are
// optional; To is inclusive through the end of its day.
type AnnouncementQuery struct {
	Ticker   string
	Category string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// AnnouncementPage is one page of query results
type AnnouncementPage struct {
	Items []store.Announcement
	Total int
}

// Announcements lists announcements newest first. An unknown ticker yields
// an empty page.
func (c *Corpact) Announcements(ctx context.Context, q AnnouncementQuery) (AnnouncementPage, error) {
	filter := store.AnnouncementFilter{
		From:   q.From,
		To:     q.To,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return AnnouncementPage{}, fmt.Errorf("date range ends before it starts: %w", internalerr.ErrInvalidInput)
	}

	if q.Category != "" {
		cat, err := category.Parse(q.Category)
		if err != nil {
			return AnnouncementPage{}, err
		}
		filter.Category = cat
	}

	if q.Ticker != "" {
		ent, ok, err := c.store.FindEntityByTicker(ctx, q.Ticker)
		if err != nil {
			return AnnouncementPage{}, err
		}
		if !ok {
			return AnnouncementPage{Items: []store.Announcement{}}, nil
		}
		filter.EntityID = ent.ID
	}

	items, total, err := c.store.ListAnnouncements(ctx, filter)
	if err != nil {
		return AnnouncementPage{}, err
	}
	return AnnouncementPage{Items: items, Total: total}, nil
}

// EntityPage is one page of entities plus the total match count.
type EntityPage struct {
	Items []store.Entity
	Total int
}

// Entities lists entities whose ticker contains the given substring
func (c *Corpact) Entities(ctx context.Context, tickerContains string, limit, offset int) (EntityPage, error) {
	items, total, err := c.store.ListEntities(ctx, store.EntityFilter{
		TickerContains: tickerContains,
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		return EntityPage{}, err
	}
	return EntityPage{Items: items, Total: total}, nil
}

// Entity looks up an entity by ticker
func (c *Corpact) Entity(ctx context.Context, ticker string) (store.Entity, error) {
	ent, ok, err := c.store.FindEntityByTicker(ctx, ticker)
	if err != nil {
		return store.Entity{}, err
	}
	if !ok {
		return store.Entity{}, fmt.Errorf("entity %s: %w", store.NormalizeTicker(ticker), internalerr.ErrNotFound)
	}
	return ent, nil
}

// Timeline returns an entity and its most recent announcements
func (c *Corpact) Timeline(ctx context.Context, ticker string, limit int) (store.Entity, []store.Announcement, error) {
	ent, err := c.Entity(ctx, ticker)
	if err != nil {
		return store.Entity{}, nil, err
	}
	items, _, err := c.store.ListAnnouncements(ctx, store.AnnouncementFilter{EntityID: ent.ID, Limit: limit})
	if err != nil {
		return store.Entity{}, nil, err
	}
	return ent, items, nil
}
