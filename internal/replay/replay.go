// Package replay serves recorded feed pages from a JSONL file so runs can
// be reproduced offline. Each line holds one (keyword, page) response.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/cognicore/corpact/pkg/corpact/feed"
)

// Record is one line of a replay file. Error, when set, replays a failed
// request instead of a page.
type Record struct {
	Keyword string      `json:"keyword"`
	Page    int         `json:"page"`
	Items   []feed.Item `json:"items"`
	Status  int         `json:"status,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type key struct {
	keyword string
	page    int
}

// Source implements feed.Source over recorded pages. Unrecorded queries
// return an empty page.
type Source struct {
	name    string
	records map[key]Record
}

// LoadFromJSONL loads records from a JSONL file, skipping malformed lines.
func LoadFromJSONL(path string, logger arbor.ILogger) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, path, logger)
}

// Read loads records from r. name labels log lines.
func Read(r io.Reader, name string, logger arbor.ILogger) (*Source, error) {
	if logger == nil {
		logger = arbor.NewLogger()
	}

	src := &Source{name: "idx", records: make(map[key]Record)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			logger.Warn().Err(err).Str("file", name).Int("line", line).Msg("Skipping malformed replay line")
			continue
		}
		rec.Keyword = strings.TrimSpace(rec.Keyword)
		if rec.Keyword == "" {
			logger.Warn().Str("file", name).Int("line", line).Msg("Skipping replay line without keyword")
			continue
		}
		if rec.Page <= 0 {
			rec.Page = 1
		}
		src.records[key{rec.Keyword, rec.Page}] = rec
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read replay %s: %w", name, err)
	}

	if len(src.records) == 0 {
		return nil, fmt.Errorf("no valid records found in %s", name)
	}
	return src, nil
}

// Name implements feed.Source.
func (s *Source) Name() string { return s.name }

// Len returns the number of recorded pages.
func (s *Source) Len() int { return len(s.records) }

// Fetch implements feed.Source.
func (s *Source) Fetch(ctx context.Context, q feed.Query) (feed.Page, error) {
	if err := q.Validate(); err != nil {
		return feed.Page{}, err
	}
	if err := ctx.Err(); err != nil {
		return feed.Page{}, &feed.FetchError{Keyword: q.Keyword, Page: q.Page, Err: err}
	}

	rec, ok := s.records[key{strings.TrimSpace(q.Keyword), q.Page}]
	if !ok {
		return feed.Page{}, nil
	}
	if rec.Error != "" {
		return feed.Page{}, &feed.FetchError{Keyword: rec.Keyword, Page: rec.Page, StatusCode: rec.Status, Err: errors.New(rec.Error)}
	}

	items := rec.Items
	if q.PageSize > 0 && len(items) > q.PageSize {
		items = items[:q.PageSize]
	}
	return feed.Page{Items: items, ItemCount: len(items), PageCount: 1}, nil
}

// Recorder wraps a feed.Source and appends every response to w as a
// replay line.
type Recorder struct {
	src feed.Source
	mu  sync.Mutex
	enc *json.Encoder
}

// NewRecorder creates a recording source.
func NewRecorder(src feed.Source, w io.Writer) *Recorder {
	return &Recorder{src: src, enc: json.NewEncoder(w)}
}

// Name implements feed.Source.
func (r *Recorder) Name() string { return r.src.Name() }

// Fetch implements feed.Source.
func (r *Recorder) Fetch(ctx context.Context, q feed.Query) (feed.Page, error) {
	page, err := r.src.Fetch(ctx, q)

	rec := Record{Keyword: q.Keyword, Page: q.Page, Items: page.Items}
	if err != nil {
		var fe *feed.FetchError
		if !errors.As(err, &fe) {
			return page, err
		}
		rec.Items = nil
		rec.Status = fe.StatusCode
		rec.Error = fe.Error()
		if fe.Err != nil {
			rec.Error = fe.Err.Error()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if encErr := r.enc.Encode(rec); encErr != nil {
		return page, fmt.Errorf("record replay line: %w", encErr)
	}
	return page, err
}
