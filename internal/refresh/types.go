// Package refresh provides the background market-data enrichment runtime:
// run lifecycle with cooperative cancellation and backgrounding, per-category
// progress tracking, failure collection, and the polling snapshot surface.
package refresh

import "time"

// Category is one of the independently-progressed units of enrichment work.
type Category string

const (
	// CategoryMetadata - security reference metadata.
	CategoryMetadata Category = "securityMetadata"
	// CategoryPrices - security prices.
	CategoryPrices Category = "securityPrices"
	// CategoryFx - foreign-exchange rates.
	CategoryFx Category = "fxRates"
)

// AllCategories returns every category in canonical execution order.
func AllCategories() []Category {
	return []Category{CategoryMetadata, CategoryPrices, CategoryFx}
}

// Scope is the subset of categories a run is asked to refresh.
type Scope struct {
	Metadata bool `json:"metadata"`
	Prices   bool `json:"prices"`
	Fx       bool `json:"fx"`
}

// FullScope selects all three categories.
func FullScope() Scope {
	return Scope{Metadata: true, Prices: true, Fx: true}
}

// Includes reports whether the scope selects the given category.
func (s Scope) Includes(c Category) bool {
	switch c {
	case CategoryMetadata:
		return s.Metadata
	case CategoryPrices:
		return s.Prices
	case CategoryFx:
		return s.Fx
	default:
		return false
	}
}

// Categories returns the selected categories in canonical execution order.
func (s Scope) Categories() []Category {
	var selected []Category
	for _, c := range AllCategories() {
		if s.Includes(c) {
			selected = append(selected, c)
		}
	}
	return selected
}

// IsEmpty reports whether the scope selects nothing.
func (s Scope) IsEmpty() bool {
	return !s.Metadata && !s.Prices && !s.Fx
}

// Status is the lifecycle state of a run.
type Status string

const (
	// StatusRunning - the run is still executing.
	StatusRunning Status = "running"
	// StatusCompleted - every item in scope was processed without failure.
	StatusCompleted Status = "completed"
	// StatusCompletedWithIssues - the run finished but recorded failed items.
	StatusCompletedWithIssues Status = "completed_with_issues"
	// StatusCanceled - cancellation fired before the run exhausted its items.
	StatusCanceled Status = "canceled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// CategoryProgress counts processed items against the known total for one
// category. Processed is monotonically non-decreasing and never exceeds Total.
type CategoryProgress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// FailedItem records a single per-item fetch failure. Failures are data, not
// control flow: the run continues past them.
type FailedItem struct {
	Category   Category `json:"category"`
	Identifier string   `json:"identifier"`
	Reason     string   `json:"reason"`
}

// Run is an immutable snapshot of an enrichment run. Progress contains an
// entry only for categories in scope. EndedAt is nil until the run is
// terminal.
type Run struct {
	ID          string                        `json:"id"`
	Status      Status                        `json:"status"`
	Scope       Scope                         `json:"scope"`
	Progress    map[Category]CategoryProgress `json:"category_progress"`
	FailedItems []FailedItem                  `json:"failed_items"`
	StartedAt   time.Time                     `json:"started_at"`
	EndedAt     *time.Time                    `json:"ended_at"`
	Background  bool                          `json:"background"`
}

// StartResult is the outcome of a start request: either a newly created run
// or the already-active run that the request joined.
type StartResult struct {
	CreatedNewRun bool `json:"created_new_run"`
	Run           Run  `json:"run"`
}

// Freshness holds, per category, the end time of the most recent run in
// which the category was selected and recorded zero failures. Nil means
// "never refreshed".
type Freshness struct {
	Metadata *time.Time `json:"metadata"`
	Prices   *time.Time `json:"prices"`
	Fx       *time.Time `json:"fx"`
}

// PanelState is the read-only snapshot assembled for polling consumers.
type PanelState struct {
	ActiveRun     *Run      `json:"active_run"`
	LatestSummary *Run      `json:"latest_summary"`
	Freshness     Freshness `json:"freshness"`
}
