package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cognicore/corpact/pkg/corpact/category"
	"github.com/cognicore/corpact/pkg/corpact/classify"
	"github.com/cognicore/corpact/pkg/corpact/feed"
	"github.com/cognicore/corpact/pkg/corpact/ingest"
	"github.com/cognicore/corpact/pkg/corpact/internalerr"
)

// Config is the full corpact configuration.
type Config struct {
	Feed    FeedConfig    `yaml:"feed" toml:"feed"`
	Ingest  IngestConfig  `yaml:"ingest" toml:"ingest"`
	Store   StoreConfig   `yaml:"store" toml:"store"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`

	// Keywords maps a category name to its search phrases, in query order.
	Keywords map[string][]string `yaml:"keywords" toml:"keywords"`
	// Classifier optionally overrides the text classifier phrases.
	Classifier map[string][]string `yaml:"classifier" toml:"classifier"`
}

type FeedConfig struct {
	BaseURL      string   `yaml:"base_url" toml:"base_url" validate:"required,url"`
	KeywordParam string   `yaml:"keyword_param" toml:"keyword_param" validate:"required"`
	Language     string   `yaml:"language" toml:"language" validate:"required"`
	PageSize     int      `yaml:"page_size" toml:"page_size" validate:"gt=0,lte=100"`
	Pages        int      `yaml:"pages" toml:"pages" validate:"gte=1,lte=50"`
	Timeout      Duration `yaml:"timeout" toml:"timeout"`
	RateLimit    float64  `yaml:"rate_limit" toml:"rate_limit" validate:"gte=0"` // requests per second, 0 = unlimited
	UserAgent    string   `yaml:"user_agent" toml:"user_agent"`
}

type IngestConfig struct {
	SourceLabel        string   `yaml:"source_label" toml:"source_label" validate:"required"`
	DefaultConfidence  float64  `yaml:"default_confidence" toml:"default_confidence" validate:"gt=0,lte=1"`
	Reclassify         bool     `yaml:"reclassify" toml:"reclassify"`
	FetchWorkers       int      `yaml:"fetch_workers" toml:"fetch_workers" validate:"gte=1,lte=64"`
	FetchRetries       int      `yaml:"fetch_retries" toml:"fetch_retries" validate:"gte=0,lte=10"`
	RetryBackoff       Duration `yaml:"retry_backoff" toml:"retry_backoff"`
	ExistenceBatchSize int      `yaml:"existence_batch_size" toml:"existence_batch_size" validate:"gte=1,lte=500"`
	MaxFailures        int      `yaml:"max_failures" toml:"max_failures" validate:"gte=0"`
	// Schedule is a cron expression for repeated runs. Empty runs once.
	Schedule           string   `yaml:"schedule" toml:"schedule"`
	RunTimeout         Duration `yaml:"run_timeout" toml:"run_timeout"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" toml:"driver" validate:"oneof=memory sqlite"`
	Path   string `yaml:"path" toml:"path" validate:"required_if=Driver sqlite"`
}

type LoggingConfig struct {
	Level      string   `yaml:"level" toml:"level" validate:"oneof=trace debug info warn error"`
	Output     []string `yaml:"output" toml:"output" validate:"dive,oneof=stdout console file"`
	File       string   `yaml:"file" toml:"file"`
	TimeFormat string   `yaml:"time_format" toml:"time_format"`
}

// Default returns a working configuration for the live feed.
func Default() *Config {
	buckets := category.DefaultBuckets()
	keywords := make(map[string][]string, len(buckets))
	for cat, phrases := range buckets {
		keywords[cat.String()] = append([]string(nil), phrases...)
	}

	return &Config{
		Feed: FeedConfig{
			BaseURL:      feed.DefaultBaseURL,
			KeywordParam: feed.DefaultKeywordParam,
			Language:     feed.DefaultLanguage,
			PageSize:     ingest.DefaultPageSize,
			Pages:        ingest.DefaultPages,
			Timeout:      Duration{feed.DefaultTimeout},
			RateLimit:    feed.DefaultRateLimit,
			UserAgent:    feed.DefaultUserAgent,
		},
		Ingest: IngestConfig{
			SourceLabel:        "idx",
			DefaultConfidence:  ingest.DefaultConfidence,
			FetchWorkers:       ingest.DefaultWorkers,
			FetchRetries:       2,
			RetryBackoff:       Duration{ingest.DefaultRetryBackoff},
			ExistenceBatchSize: ingest.DefaultBatchSize,
			MaxFailures:        ingest.DefaultMaxFailures,
			RunTimeout:         Duration{10 * time.Minute},
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "corpact.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Keywords: keywords,
	}
}

// Validate checks field constraints and the keyword buckets.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %v: %w", err, internalerr.ErrInvalidConfig)
	}
	if c.Feed.Timeout.Duration <= 0 {
		return fmt.Errorf("config: feed.timeout must be positive: %w", internalerr.ErrInvalidConfig)
	}
	if c.Ingest.RetryBackoff.Duration < 0 {
		return fmt.Errorf("config: ingest.retry_backoff must not be negative: %w", internalerr.ErrInvalidConfig)
	}
	if c.Ingest.RunTimeout.Duration < 0 {
		return fmt.Errorf("config: ingest.run_timeout must not be negative: %w", internalerr.ErrInvalidConfig)
	}
	if c.Ingest.Schedule != "" {
		if _, err := cron.ParseStandard(c.Ingest.Schedule); err != nil {
			return fmt.Errorf("config: ingest.schedule: %v: %w", err, internalerr.ErrInvalidConfig)
		}
	}
	if _, err := c.Buckets(); err != nil {
		return err
	}
	if _, err := c.ClassifierKeywords(); err != nil {
		return err
	}
	return nil
}

// Buckets converts Keywords into category buckets.
func (c *Config) Buckets() (category.Buckets, error) {
	b, err := parseCategoryMap(c.Keywords)
	if err != nil {
		return nil, fmt.Errorf("config keywords: %v: %w", err, internalerr.ErrInvalidConfig)
	}
	if err := category.Buckets(b).Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// ClassifierKeywords returns the configured classifier phrases, or the
// defaults when none are configured.
func (c *Config) ClassifierKeywords() (map[category.Category][]string, error) {
	if len(c.Classifier) == 0 {
		return classify.DefaultKeywords(), nil
	}
	m, err := parseCategoryMap(c.Classifier)
	if err != nil {
		return nil, fmt.Errorf("config classifier: %v: %w", err, internalerr.ErrInvalidConfig)
	}
	return m, nil
}

func parseCategoryMap(in map[string][]string) (map[category.Category][]string, error) {
	out := make(map[category.Category][]string, len(in))
	for name, phrases := range in {
		cat, err := category.Parse(name)
		if err != nil {
			return nil, err
		}
		out[cat] = append(out[cat], phrases...)
	}
	return out, nil
}

// Duration is a time.Duration read from strings such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
