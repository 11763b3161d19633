// Package category defines the closed set of corporate-action categories and
// the keyword buckets used to search the feed for each of them.
package category

import (
	"fmt"
	"strings"

	"github.com/cognicore/corpact/pkg/corpact/internalerr"
)

// Category is a corporate-action type.
type Category string

const (
	RightsIssue     Category = "RIGHTS_ISSUE"
	MTO             Category = "MTO"
	BackdoorListing Category = "BACKDOOR_LISTING"
)

// All returns the categories in declaration order. Ingestion runs and
// classifier tie-breaks both follow this order.
func All() []Category {
	return []Category{RightsIssue, MTO, BackdoorListing}
}

// Valid reports whether c is a member of the closed set.
func (c Category) Valid() bool {
	switch c {
	case RightsIssue, MTO, BackdoorListing:
		return true
	}
	return false
}

func (c Category) String() string { return string(c) }

// Parse converts a case-insensitive name into a Category.
func Parse(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q: %w", s, internalerr.ErrInvalidInput)
	}
	return c, nil
}

// Buckets maps each category to the search phrases issued against the feed.
type Buckets map[Category][]string

// DefaultBuckets returns the search phrases used by the exchange feed
// connector when no configuration overrides them.
func DefaultBuckets() Buckets {
	return Buckets{
		RightsIssue:     {"hmetd", "hak memesan efek"},
		MTO:             {"tender offer", "penawaran tender"},
		BackdoorListing: {"backdoor", "akuisisi aset", "perubahan kegiatan usaha", "pengambilalihan"},
	}
}

// Keywords returns the trimmed, non-empty phrases for c in configured order.
func (b Buckets) Keywords(c Category) []string {
	var out []string
	for _, kw := range b[c] {
		kw = strings.TrimSpace(kw)
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// Validate checks that every key is a known category and at least one
// category carries a phrase.
func (b Buckets) Validate() error {
	total := 0
	for c := range b {
		if !c.Valid() {
			return fmt.Errorf("bucket %q: %w", c, internalerr.ErrInvalidConfig)
		}
		total += len(b.Keywords(c))
	}
	if total == 0 {
		return fmt.Errorf("no search keywords configured: %w", internalerr.ErrInvalidConfig)
	}
	return nil
}
