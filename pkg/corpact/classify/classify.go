// Package classify maps free announcement text to a corporate-action
// category and extracts ticker symbols from titles. Everything here is pure.
package classify

import (
	"math"
	"strings"

	"github.com/cognicore/corpact/pkg/corpact/category"
)

const (
	// FallbackConfidence is assigned when no keyword matches.
	FallbackConfidence = 0.3
	confidenceStep     = 0.2
	maxConfidence      = 1.0
)

// Result is the outcome of classifying one text.
type Result struct {
	Category   category.Category
	Confidence float64
	Hits       int
	Matched    []string
}

// Classifier scores text against per-category keyword phrases.
type Classifier struct {
	order    []category.Category
	keywords map[category.Category][]string // lowercase
}

// DefaultKeywords returns the phrases the classifier counts per category.
func DefaultKeywords() map[category.Category][]string {
	return map[category.Category][]string{
		category.RightsIssue: {"hmetd", "hak memesan efek", "rights issue", "penawaran terbatas"},
		category.MTO:         {"tender offer", "penawaran tender", "mto", "mandatory tender offer"},
		category.BackdoorListing: {
			"backdoor",
			"akuisisi aset",
			"perubahan kegiatan usaha",
			"pengambilalihan",
			"reverse takeover",
			"rtb",
		},
	}
}

// New creates a classifier. Categories missing from keywords score zero.
func New(keywords map[category.Category][]string) *Classifier {
	c := &Classifier{
		order:    category.All(),
		keywords: make(map[category.Category][]string, len(keywords)),
	}
	for cat, phrases := range keywords {
		normalized := make([]string, 0, len(phrases))
		for _, p := range phrases {
			p = strings.ToLower(strings.TrimSpace(p))
			if p != "" {
				normalized = append(normalized, p)
			}
		}
		c.keywords[cat] = normalized
	}
	return c
}

// Default creates a classifier with DefaultKeywords.
func Default() *Classifier {
	return New(DefaultKeywords())
}

// Classify scores title and body. The category with strictly the most
// phrase hits wins; ties go to the earlier category in category.All().
// With zero hits the result is BACKDOOR_LISTING at FallbackConfidence.
func (c *Classifier) Classify(title, body string) Result {
	text := strings.ToLower(title + " " + body)

	best := Result{Category: category.BackdoorListing}
	for _, cat := range c.order {
		var matched []string
		for _, kw := range c.keywords[cat] {
			if strings.Contains(text, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) > best.Hits {
			best = Result{Category: cat, Hits: len(matched), Matched: matched}
		}
	}

	best.Confidence = Confidence(best.Hits)
	return best
}

// Confidence converts a hit count into a score in [0.3, 1.0], rounded to
// two decimals. It never decreases as hits grow.
func Confidence(hits int) float64 {
	if hits <= 0 {
		return FallbackConfidence
	}
	v := math.Min(FallbackConfidence+confidenceStep*float64(hits), maxConfidence)
	return math.Round(v*100) / 100
}
