package ingest

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cognicore/corpact/pkg/corpact/classify"
	"github.com/cognicore/corpact/pkg/corpact/feed"
	"github.com/cognicore/corpact/pkg/corpact/internalerr"
)

// Rejection reasons reported by Normalize.
const (
	ReasonMissingTitle = "missing title"
	ReasonMissingURL   = "missing document url"
)

// RejectError is returned by Normalize for records that cannot become
// announcements.
type RejectError struct {
	Reason string
	ItemID string
}

func (e *RejectError) Error() string { return e.Reason }

// Unwrap lets errors.Is match internalerr.ErrInvalidInput.
func (e *RejectError) Unwrap() error { return internalerr.ErrInvalidInput }

// Candidate is a normalized feed record awaiting dedup and persistence.
type Candidate struct {
	SourceID  string
	Title     string // display title, "<title> [<CODE>]" when Code is set
	Text      string // cleaned title without the code suffix
	URL       string
	Code      string // issuer code from the record, may be empty
	Ticker    string // Code, or extracted from the title when Code is empty
	Published string // raw feed timestamp
}

// Normalize turns a raw feed record into a Candidate.
func Normalize(item feed.Item) (Candidate, error) {
	title := cleanText(item.Title)
	if title == "" {
		return Candidate{}, &RejectError{Reason: ReasonMissingTitle, ItemID: item.ID}
	}

	url := documentURL(item.Attachments)
	if url == "" {
		return Candidate{}, &RejectError{Reason: ReasonMissingURL, ItemID: item.ID}
	}

	code := strings.TrimSpace(item.Code)
	c := Candidate{
		SourceID:  item.ID,
		Title:     title,
		Text:      title,
		URL:       url,
		Code:      code,
		Ticker:    code,
		Published: item.PublishDate,
	}
	if code != "" {
		c.Title = title + " [" + code + "]"
	} else if ticker, ok := classify.ExtractTicker(title); ok {
		c.Ticker = ticker
	}
	return c, nil
}

// documentURL picks the attachment explicitly flagged primary, falling back
// to the first attachment.
func documentURL(atts []feed.Attachment) string {
	if len(atts) == 0 {
		return ""
	}
	for _, a := range atts {
		if a.Primary() {
			return strings.TrimSpace(a.FullSavePath)
		}
	}
	return strings.TrimSpace(atts[0].FullSavePath)
}

// markupTag matches a complete start, end or self-closing tag.
var markupTag = regexp.MustCompile(`</?([A-Za-z][A-Za-z0-9]*)(?:\s[^<>]*)?/?>`)

// inlineTags are the elements removed from titles. Anything else in angle
// brackets is kept as text.
var inlineTags = map[atom.Atom]bool{
	atom.A: true, atom.B: true, atom.Br: true, atom.Div: true, atom.Em: true,
	atom.Font: true, atom.I: true, atom.P: true, atom.Small: true, atom.Span: true,
	atom.Strong: true, atom.Sub: true, atom.Sup: true, atom.U: true,
}

// cleanText removes inline markup tags, decodes entities and collapses
// whitespace.
func cleanText(s string) string {
	if strings.Contains(s, "<") {
		s = markupTag.ReplaceAllStringFunc(s, func(tag string) string {
			name := markupTag.FindStringSubmatch(tag)[1]
			if inlineTags[atom.Lookup([]byte(strings.ToLower(name)))] {
				return " "
			}
			return tag
		})
	}
	if strings.Contains(s, "&") {
		s = html.UnescapeString(s)
	}
	return strings.Join(strings.Fields(s), " ")
}
