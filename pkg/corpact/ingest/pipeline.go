// Package ingest runs the disclosure ingestion flow:
// fetch → normalize → in-run dedup → cross-run dedup → resolve entity → persist
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/corpact/pkg/corpact/category"
	"github.com/cognicore/corpact/pkg/corpact/classify"
	"github.com/cognicore/corpact/pkg/corpact/feed"
	"github.com/cognicore/corpact/pkg/corpact/internalerr"
	"github.com/cognicore/corpact/pkg/corpact/store"
)

const (
	DefaultPageSize     = 10
	DefaultPages        = 1
	DefaultWorkers      = 4
	DefaultRetryBackoff = 500 * time.Millisecond
	DefaultConfidence   = 0.5
	DefaultMaxFailures  = 100
)

// Options configures a Pipeline. Store and Source are required.
type Options struct {
	Store      store.Store
	Source     feed.Source
	Buckets    category.Buckets     // search phrases per category
	Classifier *classify.Classifier // used when Reclassify is set
	Logger     arbor.ILogger

	PageSize     int
	Pages        int // pages fetched per keyword
	Workers      int // concurrent fetches
	Retries      int // extra attempts per page after a fetch error
	RetryBackoff time.Duration
	BatchSize    int // URLs per existence check

	// DefaultConfidence is stored on bucket-categorized announcements.
	// Zero means DefaultConfidence.
	DefaultConfidence float64
	// Reclassify sets category and confidence from the text classifier
	// instead of the search bucket.
	Reclassify  bool
	SourceLabel string // defaults to Source.Name()
	MaxFailures int    // failures kept in the report; zero keeps DefaultMaxFailures

	Now func() time.Time
}

// Pipeline orchestrates one ingestion run at a time.
type Pipeline struct {
	opts     Options
	resolver *Resolver
	logger   arbor.ILogger
}

// slot is one (category, keyword) search and its fetched pages.
type slot struct {
	category category.Category
	keyword  string
	pages    []fetchedPage
}

type fetchedPage struct {
	number   int
	items    []feed.Item
	attempts int
	err      error
}

// candidate is a normalized item tagged with its category.
type candidate struct {
	Candidate
	category   category.Category
	confidence float64
	keyword    string
	page       int
}

// NewPipeline validates opts and fills defaults.
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("pipeline store is required: %w", internalerr.ErrInvalidConfig)
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("pipeline source is required: %w", internalerr.ErrInvalidConfig)
	}
	if opts.Buckets == nil {
		opts.Buckets = category.DefaultBuckets()
	}
	if err := opts.Buckets.Validate(); err != nil {
		return nil, err
	}
	if opts.Classifier == nil {
		opts.Classifier = classify.Default()
	}
	if opts.Logger == nil {
		opts.Logger = arbor.NewLogger()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Pages <= 0 {
		opts.Pages = DefaultPages
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryBackoff < 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.DefaultConfidence == 0 {
		opts.DefaultConfidence = DefaultConfidence
	}
	if opts.DefaultConfidence < 0 || opts.DefaultConfidence > 1 {
		return nil, fmt.Errorf("default confidence %v out of range: %w", opts.DefaultConfidence, internalerr.ErrInvalidConfig)
	}
	if opts.SourceLabel == "" {
		opts.SourceLabel = opts.Source.Name()
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Pipeline{
		opts:     opts,
		resolver: NewResolver(opts.Store, opts.Logger),
		logger:   opts.Logger,
	}, nil
}

// Run performs one ingestion run. Per-item problems are counted in the
// report; a non-nil error means the run itself failed and the report has
// Success false.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	report := newReport(uuid.NewString(), p.opts.Now().UTC(), p.opts.MaxFailures)
	log := p.logger.WithCorrelationId(report.RunID)

	log.Info().
		Str("run_id", report.RunID).
		Str("source", p.opts.SourceLabel).
		Int("workers", p.opts.Workers).
		Bool("reclassify", p.opts.Reclassify).
		Msg("Ingestion run started")

	slots := p.fetchAll(ctx)
	if err := ctx.Err(); err != nil {
		return p.fail(report, log, fmt.Errorf("run cancelled during fetch: %w", err))
	}

	candidates := p.collect(slots, &report, log)

	urls := make([]string, len(candidates))
	for i, c := range candidates {
		urls[i] = c.URL
	}
	existing, err := FindExisting(ctx, p.opts.Store, urls, p.opts.BatchSize)
	if err != nil {
		return p.fail(report, log, fmt.Errorf("cross-run existence check: %w", err))
	}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return p.fail(report, log, fmt.Errorf("run cancelled during persistence: %w", err))
		}
		if _, ok := existing[c.URL]; ok {
			report.Record(Outcome{Kind: OutcomeDuplicate, URL: c.URL, Keyword: c.keyword, Page: c.page, Category: c.category})
			continue
		}
		outcome := p.persist(ctx, c, log)
		if outcome.Kind != OutcomeSaved && ctx.Err() != nil {
			return p.fail(report, log, fmt.Errorf("run cancelled during persistence: %w", ctx.Err()))
		}
		report.Record(outcome)
	}

	report.FinishedAt = p.opts.Now().UTC()
	report.Success = true

	log.Info().
		Str("run_id", report.RunID).
		Int("api_calls", report.APICalls).
		Int("total_fetched", report.TotalFetched).
		Int("saved", report.Saved).
		Int("duplicates", report.Duplicates).
		Int("entities_created", report.EntitiesCreated).
		Int("rejected", report.Rejected).
		Int("fetch_errors", report.FetchErrors).
		Int("entity_errors", report.EntityErrors).
		Int("persist_errors", report.PersistErrors).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Ingestion run completed")

	return report, nil
}

func (p *Pipeline) fail(report Report, log arbor.ILogger, err error) (Report, error) {
	report.FinishedAt = p.opts.Now().UTC()
	report.Success = false
	report.Error = err.Error()
	log.Error().Err(err).Str("run_id", report.RunID).Msg("Ingestion run failed")
	return report, err
}

// fetchAll fans the searches out over a bounded pool. Each goroutine
// writes only its own slot, so no locking is needed.
func (p *Pipeline) fetchAll(ctx context.Context) []slot {
	var slots []slot
	for _, cat := range category.All() {
		for _, kw := range p.opts.Buckets.Keywords(cat) {
			slots = append(slots, slot{category: cat, keyword: kw})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i := range slots {
		s := &slots[i]
		g.Go(func() error {
			s.pages = p.fetchKeyword(gctx, s.keyword)
			return nil
		})
	}
	_ = g.Wait()
	return slots
}

// fetchKeyword fetches pages 1..Pages, stopping after a failed or short page.
func (p *Pipeline) fetchKeyword(ctx context.Context, keyword string) []fetchedPage {
	var pages []fetchedPage
	for n := 1; n <= p.opts.Pages; n++ {
		fp := p.fetchPage(ctx, keyword, n)
		pages = append(pages, fp)
		if fp.err != nil || len(fp.items) < p.opts.PageSize {
			break
		}
	}
	return pages
}

func (p *Pipeline) fetchPage(ctx context.Context, keyword string, number int) fetchedPage {
	q := feed.Query{Keyword: keyword, Page: number, PageSize: p.opts.PageSize}
	fp := fetchedPage{number: number}

	for attempt := 0; attempt <= p.opts.Retries; attempt++ {
		if attempt > 0 && !sleep(ctx, p.opts.RetryBackoff*time.Duration(attempt)) {
			break
		}
		fp.attempts++
		page, err := p.opts.Source.Fetch(ctx, q)
		if err == nil {
			fp.items = page.Items
			fp.err = nil
			return fp
		}
		fp.err = err
		if !feed.IsFetchError(err) || ctx.Err() != nil {
			break
		}
		p.logger.Debug().
			Err(err).
			Str("keyword", keyword).
			Int("page", number).
			Int("attempt", fp.attempts).
			Msg("Feed fetch attempt failed")
	}
	return fp
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// collect is the single aggregation point: it walks slots in declaration
// order, normalizes items and applies in-run dedup.
func (p *Pipeline) collect(slots []slot, report *Report, log arbor.ILogger) []candidate {
	seen := NewSeenSet()
	var out []candidate

	for _, s := range slots {
		for _, fp := range s.pages {
			report.APICalls += fp.attempts
			if fp.err != nil {
				log.Warn().
					Err(fp.err).
					Str("category", s.category.String()).
					Str("keyword", s.keyword).
					Int("page", fp.number).
					Int("attempts", fp.attempts).
					Msg("Feed fetch failed, continuing with next keyword")
				report.Record(Outcome{Kind: OutcomeFetchFailed, Keyword: s.keyword, Page: fp.number, Category: s.category, Reason: fp.err.Error()})
				continue
			}

			report.TotalFetched += len(fp.items)
			for _, item := range fp.items {
				cand, err := Normalize(item)
				if err != nil {
					log.Debug().
						Str("keyword", s.keyword).
						Str("item_id", item.ID).
						Str("reason", err.Error()).
						Msg("Feed item rejected")
					report.Record(Outcome{Kind: OutcomeRejected, Keyword: s.keyword, Page: fp.number, Category: s.category, Reason: err.Error()})
					continue
				}
				if !seen.Add(cand.URL) {
					report.Record(Outcome{Kind: OutcomeDuplicate, URL: cand.URL, Keyword: s.keyword, Page: fp.number, Category: s.category})
					continue
				}

				c := candidate{
					Candidate:  cand,
					category:   s.category,
					confidence: p.opts.DefaultConfidence,
					keyword:    s.keyword,
					page:       fp.number,
				}
				if p.opts.Reclassify {
					res := p.opts.Classifier.Classify(cand.Text, "")
					c.category = res.Category
					c.confidence = res.Confidence
				}
				report.Categories[c.category]++
				out = append(out, c)
			}
		}
	}
	return out
}

// persist resolves the issuer and writes one announcement.
func (p *Pipeline) persist(ctx context.Context, c candidate, log arbor.ILogger) Outcome {
	outcome := Outcome{URL: c.URL, Keyword: c.keyword, Page: c.page, Category: c.category}

	ent, created, err := p.resolver.Resolve(ctx, c.Ticker)
	if err != nil {
		log.Warn().
			Err(err).
			Str("url", c.URL).
			Str("ticker", c.Ticker).
			Msg("Entity resolution failed, skipping announcement")
		outcome.Kind = OutcomeEntityFailed
		outcome.Reason = err.Error()
		return outcome
	}
	outcome.EntityCreated = created

	conf := c.confidence
	_, err = p.opts.Store.CreateAnnouncement(ctx, store.NewAnnouncement{
		Title:      c.Title,
		URL:        c.URL,
		Source:     p.opts.SourceLabel,
		Published:  c.Published,
		Category:   c.category,
		Confidence: &conf,
		EntityID:   ent.ID,
	})
	switch {
	case err == nil:
		outcome.Kind = OutcomeSaved
	case errors.Is(err, internalerr.ErrDuplicate):
		// written by a concurrent run after the existence check
		outcome.Kind = OutcomeDuplicate
	default:
		log.Warn().
			Err(err).
			Str("url", c.URL).
			Str("category", c.category.String()).
			Msg("Announcement persistence failed")
		outcome.Kind = OutcomePersistFailed
		outcome.Reason = err.Error()
	}
	return outcome
}
