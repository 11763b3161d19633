// Package feed is the source connector for the exchange announcement
// search endpoint. One Fetch call is one HTTP request; retries belong to
// the caller.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/cognicore/corpact/pkg/corpact/internalerr"
)

const (
	// DefaultBaseURL is the IDX announcement search endpoint.
	DefaultBaseURL = "https://www.idx.co.id/primary/NewsAnnouncement/GetAllAnnouncement"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is requests per second.
	DefaultRateLimit = 2

	DefaultLanguage     = "id"
	DefaultKeywordParam = "keyword"
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	maxErrorBody = 512
)

// Source produces raw result pages for a search query.
type Source interface {
	Name() string
	Fetch(ctx context.Context, q Query) (Page, error)
}

// Query addresses one page of results for a keyword.
type Query struct {
	Keyword  string `validate:"required"`
	Page     int    `validate:"min=1"`
	PageSize int    `validate:"gt=0"`
}

var validate = validator.New()

// Validate checks the query constraints before any I/O happens.
func (q Query) Validate() error {
	q.Keyword = strings.TrimSpace(q.Keyword)
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("feed query: %v: %w", err, internalerr.ErrInvalidInput)
	}
	return nil
}

// Client calls the exchange search endpoint.
type Client struct {
	baseURL      string
	language     string
	keywordParam string
	userAgent    string
	httpClient   *http.Client
	logger       arbor.ILogger
	limiter      *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom endpoint URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets requests per second. Zero or less disables limiting.
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithLanguage sets the lang query parameter.
func WithLanguage(lang string) ClientOption {
	return func(c *Client) {
		c.language = lang
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithKeywordParam overrides the name of the keyword query parameter.
func WithKeywordParam(name string) ClientOption {
	return func(c *Client) {
		c.keywordParam = name
	}
}

// NewClient creates a feed client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      DefaultBaseURL,
		language:     DefaultLanguage,
		keywordParam: DefaultKeywordParam,
		userAgent:    DefaultUserAgent,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		limiter:      rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = arbor.NewLogger()
	}

	return c
}

// Name returns the source label recorded on announcements.
func (c *Client) Name() string {
	return "idx"
}

// Fetch performs a single search request.
func (c *Client) Fetch(ctx context.Context, q Query) (Page, error) {
	if err := q.Validate(); err != nil {
		return Page{}, err
	}
	keyword := strings.TrimSpace(q.Keyword)

	fail := func(status int, err error) (Page, error) {
		return Page{}, &FetchError{Keyword: keyword, Page: q.Page, StatusCode: status, Err: err}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fail(0, fmt.Errorf("rate limiter: %w", err))
	}

	params := url.Values{}
	params.Set(c.keywordParam, keyword)
	params.Set("pageNumber", strconv.Itoa(q.Page))
	params.Set("pageSize", strconv.Itoa(q.PageSize))
	params.Set("lang", c.language)

	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fail(0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug().
		Str("keyword", keyword).
		Int("page", q.Page).
		Int("page_size", q.PageSize).
		Msg("Feed request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(0, fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fail(resp.StatusCode, errors.New(strings.TrimSpace(string(body))))
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}

	return page, nil
}
