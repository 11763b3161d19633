package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cognicore/corpact/pkg/corpact/internalerr"
)

// Page is one page of search results returned by the feed.
type Page struct {
	Items     []Item `json:"Items"`
	ItemCount int    `json:"ItemCount"`
	PageCount int    `json:"PageCount"`
}

// Item is a raw announcement record as published by the exchange.
type Item struct {
	ID          string       `json:"Id"`
	Title       string       `json:"Title"`
	Code        string       `json:"Code"`
	PublishDate string       `json:"PublishDate"`
	Attachments []Attachment `json:"Attachments"`
}

// Attachment is a document linked from an announcement. IsAttachment is
// 0 for the primary disclosure and 1 for supplementary files; nil when the
// feed omitted it or sent null.
type Attachment struct {
	FullSavePath string `json:"FullSavePath"`
	IsAttachment *Flag  `json:"IsAttachment,omitempty"`
}

// Primary reports whether the feed explicitly marked this as the main document.
func (a Attachment) Primary() bool {
	return a.IsAttachment != nil && !bool(*a.IsAttachment)
}

// FlagOf returns a pointer to a Flag holding v.
func FlagOf(v bool) *Flag {
	f := Flag(v)
	return &f
}

// Flag decodes the feed's 0/1 integer flags. JSON booleans, quoted
// numbers and null are accepted too.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", `""`:
		*f = false
		return nil
	case "true":
		*f = true
		return nil
	case "false":
		*f = false
		return nil
	}

	s := string(bytes.Trim(data, `"`))
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("flag value %s: %w", data, err)
	}
	*f = n != 0
	return nil
}

// MarshalJSON writes the flag back in the feed's integer form.
func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// UnmarshalJSON accepts Id as either a JSON string or a number.
func (i *Item) UnmarshalJSON(data []byte) error {
	type plain Item
	aux := struct {
		ID json.RawMessage `json:"Id"`
		*plain
	}{plain: (*plain)(i)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	i.ID = ""
	if len(aux.ID) > 0 && string(aux.ID) != "null" {
		var s string
		if err := json.Unmarshal(aux.ID, &s); err == nil {
			i.ID = s
		} else {
			i.ID = string(aux.ID)
		}
	}
	return nil
}

// FetchError describes a failed request for one (keyword, page).
type FetchError struct {
	Keyword    string
	Page       int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %q page %d: status %d: %v", e.Keyword, e.Page, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %q page %d: %v", e.Keyword, e.Page, e.Err)
}

// Unwrap exposes both the cause and internalerr.ErrFetchFailed to errors.Is.
func (e *FetchError) Unwrap() []error {
	return []error{internalerr.ErrFetchFailed, e.Err}
}

// IsFetchError reports whether err came from a failed feed request.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
