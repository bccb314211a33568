package fx

import "time"

// Observation is a single persisted exchange-rate observation.
// Observations are append-only: unique per (source, target, date), never
// updated or deleted. An observation for (A,B) implicitly defines the
// inverse rate for (B,A) at the same date.
type Observation struct {
	ID             int64     `json:"id"`
	SourceCurrency string    `json:"source_currency"`
	TargetCurrency string    `json:"target_currency"`
	Date           time.Time `json:"date"`
	Rate           float64   `json:"rate"`
}

// Source describes how a conversion rate was obtained.
type Source string

const (
	// SourceSameCurrency - source and target currency are identical, rate 1.
	SourceSameCurrency Source = "same_currency"
	// SourceAsOf - the most recent observation dated on or before the
	// requested valuation date.
	SourceAsOf Source = "as_of"
	// SourceLatestFallback - no observation exists on or before the requested
	// date; the most recent observation overall was used instead.
	SourceLatestFallback Source = "latest_fallback"
	// SourceUnavailable - no observation exists for the pair in either
	// direction; no conversion was possible.
	SourceUnavailable Source = "unavailable"
)

// Result is the outcome of a conversion query. It is computed per query and
// never persisted. ConvertedAmount and Rate are nil when Source is
// SourceUnavailable; Pair is nil when Source is SourceSameCurrency.
type Result struct {
	ConvertedAmount *float64 `json:"converted_amount"`
	Rate            *float64 `json:"rate"`
	Source          Source   `json:"source"`
	Pair            *string  `json:"pair"`
}

// DateOnly truncates a timestamp to midnight UTC. All observation dates and
// valuation dates are compared at day granularity.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
