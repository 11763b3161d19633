package corpact

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/cognicore/corpact/pkg/corpact/category"
	"github.com/cognicore/corpact/pkg/corpact/classify"
	"github.com/cognicore/corpact/pkg/corpact/config"
	"github.com/cognicore/corpact/pkg/corpact/feed"
	"github.com/cognicore/corpact/pkg/corpact/ingest"
	"github.com/cognicore/corpact/pkg/corpact/internalerr"
	"github.com/cognicore/corpact/pkg/corpact/store"
	"github.com/cognicore/corpact/pkg/corpact/store/memstore"
	"github.com/cognicore/corpact/pkg/corpact/store/sqlite"
)

// OpenStore opens the gateway selected by cfg
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memstore.New(), nil
	case "sqlite":
		return sqlite.OpenSQLite(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q: %w", cfg.Driver, internalerr.ErrInvalidConfig)
	}
}

// NewFeedClient builds the HTTP source connector from cfg
func NewFeedClient(cfg config.FeedConfig, logger arbor.ILogger) *feed.Client {
	opts := []feed.ClientOption{
		feed.WithBaseURL(cfg.BaseURL),
		feed.WithHTTPClient(&http.Client{Timeout: cfg.Timeout.Duration}),
		feed.WithLogger(logger),
		feed.WithRateLimit(cfg.RateLimit),
		feed.WithLanguage(cfg.Language),
		feed.WithKeywordParam(cfg.KeywordParam),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, feed.WithUserAgent(cfg.UserAgent))
	}
	return feed.NewClient(opts...)
}

// Open wires a Corpact instance from configuration. A nil source uses the
// HTTP feed client.
func Open(ctx context.Context, cfg *config.Config, source feed.Source, logger arbor.ILogger) (*Corpact, error) {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	buckets, err := cfg.Buckets()
	if err != nil {
		return nil, err
	}
	keywords, err := cfg.ClassifierKeywords()
	if err != nil {
		return nil, err
	}
	classifier := classify.New(keywords)

	st, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if source == nil {
		source = NewFeedClient(cfg.Feed, logger)
	}

	pipeline, err := ingest.NewPipeline(ingest.Options{
		Store:             st,
		Source:            source,
		Buckets:           buckets,
		Classifier:        classifier,
		Logger:            logger,
		PageSize:          cfg.Feed.PageSize,
		Pages:             cfg.Feed.Pages,
		Workers:           cfg.Ingest.FetchWorkers,
		Retries:           cfg.Ingest.FetchRetries,
		RetryBackoff:      cfg.Ingest.RetryBackoff.Duration,
		BatchSize:         cfg.Ingest.ExistenceBatchSize,
		DefaultConfidence: cfg.Ingest.DefaultConfidence,
		Reclassify:        cfg.Ingest.Reclassify,
		SourceLabel:       cfg.Ingest.SourceLabel,
		MaxFailures:       cfg.Ingest.MaxFailures,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	logger.Info().
		Str("store", cfg.Store.Driver).
		Str("source", source.Name()).
		Int("keywords", countKeywords(buckets)).
		Msg("Corpact opened")

	return New(Options{
		Store:      st,
		Pipeline:   pipeline,
		Classifier: classifier,
		Logger:     logger,
	}), nil
}

func countKeywords(b category.Buckets) int {
	n := 0
	for _, c := range category.All() {
		n += len(b.Keywords(c))
	}
	return n
}
