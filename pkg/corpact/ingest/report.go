package ingest

import (
	"time"

	"github.com/cognicore/corpact/pkg/corpact/category"
)

// OutcomeKind classifies what happened to one candidate or fetch.
type OutcomeKind string

const (
	OutcomeSaved         OutcomeKind = "saved"
	OutcomeDuplicate     OutcomeKind = "duplicate"
	OutcomeRejected      OutcomeKind = "rejected"
	OutcomeEntityFailed  OutcomeKind = "entity_failed"
	OutcomePersistFailed OutcomeKind = "persist_failed"
	OutcomeFetchFailed   OutcomeKind = "fetch_failed"
)

// Outcome is the result of handling one item.
type Outcome struct {
	Kind          OutcomeKind
	URL           string
	Keyword       string
	Page          int
	Category      category.Category
	Reason        string
	EntityCreated bool
}

// Failure is a per-item problem surfaced in the report.
type Failure struct {
	Kind    OutcomeKind `json:"kind"`
	Keyword string      `json:"keyword,omitempty"`
	Page    int         `json:"page,omitempty"`
	URL     string      `json:"url,omitempty"`
	Reason  string      `json:"reason"`
}

// Report is the statistics for one run.
type Report struct {
	RunID           string                    `json:"run_id"`
	StartedAt       time.Time                 `json:"started_at"`
	FinishedAt      time.Time                 `json:"finished_at"`
	Success         bool                      `json:"success"`
	Error           string                    `json:"error,omitempty"`
	APICalls        int                       `json:"api_calls"`
	TotalFetched    int                       `json:"total_fetched"`
	Saved           int                       `json:"saved"`
	Duplicates      int                       `json:"duplicates"`
	EntitiesCreated int                       `json:"entities_created"`
	Categories      map[category.Category]int `json:"categories"`
	Rejected        int                       `json:"rejected"`
	FetchErrors     int                       `json:"fetch_errors"`
	EntityErrors    int                       `json:"entity_errors"`
	PersistErrors   int                       `json:"persist_errors"`
	Failures        []Failure                 `json:"failures,omitempty"`
	FailuresOmitted int                       `json:"failures_omitted,omitempty"`

	maxFailures int
}

func newReport(runID string, started time.Time, maxFailures int) Report {
	cats := make(map[category.Category]int, len(category.All()))
	for _, c := range category.All() {
		cats[c] = 0
	}
	return Report{
		RunID:       runID,
		StartedAt:   started,
		Categories:  cats,
		maxFailures: maxFailures,
	}
}

// Record folds an outcome into the counters.
func (r *Report) Record(o Outcome) {
	switch o.Kind {
	case OutcomeSaved:
		r.Saved++
		if o.EntityCreated {
			r.EntitiesCreated++
		}
		return
	case OutcomeDuplicate:
		r.Duplicates++
		if o.EntityCreated {
			r.EntitiesCreated++
		}
		return
	case OutcomeRejected:
		r.Rejected++
	case OutcomeEntityFailed:
		r.EntityErrors++
	case OutcomePersistFailed:
		r.PersistErrors++
		if o.EntityCreated {
			r.EntitiesCreated++
		}
	case OutcomeFetchFailed:
		r.FetchErrors++
	}

	if r.maxFailures > 0 && len(r.Failures) >= r.maxFailures {
		r.FailuresOmitted++
		return
	}
	r.Failures = append(r.Failures, Failure{
		Kind:    o.Kind,
		Keyword: o.Keyword,
		Page:    o.Page,
		URL:     o.URL,
		Reason:  o.Reason,
	})
}
