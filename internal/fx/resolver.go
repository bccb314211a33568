package fx

import (
	"time"

	"github.com/rs/zerolog"
)

// Resolver answers point-in-time currency conversion queries against the
// observation store. It is a pure query service: it has no dependency on
// refresh-run state and never mutates the store.
//
// Resolution policy, in order:
//  1. Identical currencies convert at rate 1 (same_currency).
//  2. The most recent observation - direct or inverse - dated on or before
//     the valuation date (as_of).
//  3. The most recent observation for the pair regardless of date
//     (latest_fallback).
//  4. Otherwise the conversion is unavailable; callers render the nil
//     amount as a non-fatal "N/A".
//
// When two observations share a date the direct pair beats the inverse and
// the most-recently-inserted row wins.
type Resolver struct {
	store *ObservationStore
	log   zerolog.Logger
}

// NewResolver creates a new conversion resolver.
func NewResolver(store *ObservationStore, log zerolog.Logger) *Resolver {
	return &Resolver{
		store: store,
		log:   log.With().Str("component", "fx_resolver").Logger(),
	}
}

// Convert converts amount from sourceCurrency to targetCurrency as of the
// given valuation date. Store failures are returned as errors; a missing
// rate is not an error, it yields a Result with SourceUnavailable.
func (r *Resolver) Convert(amount float64, sourceCurrency, targetCurrency string, asOf time.Time) (Result, error) {
	if sourceCurrency == targetCurrency {
		rate := 1.0
		converted := amount
		return Result{
			ConvertedAmount: &converted,
			Rate:            &rate,
			Source:          SourceSameCurrency,
			Pair:            nil,
		}, nil
	}

	pair := sourceCurrency + "->" + targetCurrency

	// As-of: most recent observation dated on or before the valuation date.
	obs, direct, err := r.store.Best(sourceCurrency, targetCurrency, &asOf)
	if err != nil {
		return Result{}, err
	}
	if obs != nil {
		return r.result(amount, obs, direct, pair, SourceAsOf), nil
	}

	// Latest fallback: most recent observation regardless of date.
	obs, direct, err = r.store.Best(sourceCurrency, targetCurrency, nil)
	if err != nil {
		return Result{}, err
	}
	if obs != nil {
		r.log.Debug().
			Str("pair", pair).
			Time("as_of", asOf).
			Time("observation_date", obs.Date).
			Msg("No as-of rate, using latest fallback")
		return r.result(amount, obs, direct, pair, SourceLatestFallback), nil
	}

	return Result{
		ConvertedAmount: nil,
		Rate:            nil,
		Source:          SourceUnavailable,
		Pair:            &pair,
	}, nil
}

// result builds a conversion result from an observation, inverting the rate
// when the observation is for the opposite direction.
func (r *Resolver) result(amount float64, obs *Observation, direct bool, pair string, source Source) Result {
	rate := obs.Rate
	if !direct {
		rate = 1 / obs.Rate
	}
	converted := amount * rate

	return Result{
		ConvertedAmount: &converted,
		Rate:            &rate,
		Source:          source,
		Pair:            &pair,
	}
}
