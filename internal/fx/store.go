// Package fx provides the append-only exchange-rate observation store and
// the point-in-time conversion resolver built on top of it.
package fx

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ObservationStore persists exchange-rate observations in history.db.
// The history is append-only: re-observing an existing (source, target, date)
// key is a no-op, and rows are never updated or deleted.
type ObservationStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewObservationStore creates a new observation store.
func NewObservationStore(db *sql.DB, log zerolog.Logger) *ObservationStore {
	return &ObservationStore{
		db:  db,
		log: log.With().Str("component", "fx_store").Logger(),
	}
}

// Insert appends an observation. The date is truncated to midnight UTC.
// Inserting a key that already exists is a no-op (the original observation
// wins); a non-positive rate is rejected.
func (s *ObservationStore) Insert(sourceCurrency, targetCurrency string, date time.Time, rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("invalid rate %f for %s->%s: must be positive", rate, sourceCurrency, targetCurrency)
	}
	if sourceCurrency == targetCurrency {
		return fmt.Errorf("refusing to record observation for identical currencies %s", sourceCurrency)
	}

	dateUnix := DateOnly(date).Unix()

	_, err := s.db.Exec(`
		INSERT INTO fx_observations (source_currency, target_currency, date, rate, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_currency, target_currency, date) DO NOTHING
	`, sourceCurrency, targetCurrency, dateUnix, rate, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to insert fx observation: %w", err)
	}

	s.log.Debug().
		Str("source", sourceCurrency).
		Str("target", targetCurrency).
		Float64("rate", rate).
		Msg("Recorded fx observation")

	return nil
}

// Best returns the best observation for a pair, considering both directions.
// When asOf is non-nil only observations dated on or before asOf are
// considered. Preference order: later date first, then direct pair over
// inverse, then most-recently-inserted (highest id). Returns the observation
// and whether it is for the direct (source->target) pair, or (nil, false)
// when no observation exists.
func (s *ObservationStore) Best(sourceCurrency, targetCurrency string, asOf *time.Time) (*Observation, bool, error) {
	query := `
		SELECT id, source_currency, target_currency, date, rate
		FROM fx_observations
		WHERE ((source_currency = ? AND target_currency = ?)
		    OR (source_currency = ? AND target_currency = ?))
	`
	args := []any{sourceCurrency, targetCurrency, targetCurrency, sourceCurrency}

	if asOf != nil {
		query += " AND date <= ?"
		args = append(args, DateOnly(*asOf).Unix())
	}

	// Equal-date tie-break: direct pair beats inverse, then the
	// most-recently-inserted row wins.
	query += `
		ORDER BY date DESC,
			CASE WHEN source_currency = ? THEN 1 ELSE 0 END DESC,
			id DESC
		LIMIT 1
	`
	args = append(args, sourceCurrency)

	var obs Observation
	var dateUnix int64

	err := s.db.QueryRow(query, args...).Scan(
		&obs.ID,
		&obs.SourceCurrency,
		&obs.TargetCurrency,
		&dateUnix,
		&obs.Rate,
	)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query fx observations: %w", err)
	}

	obs.Date = time.Unix(dateUnix, 0).UTC()
	return &obs, obs.SourceCurrency == sourceCurrency, nil
}

// ListPair returns all observations for a pair (direct direction only),
// newest first. Used by the HTTP surface for inspection.
func (s *ObservationStore) ListPair(sourceCurrency, targetCurrency string, limit int) ([]Observation, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT id, source_currency, target_currency, date, rate
		FROM fx_observations
		WHERE source_currency = ? AND target_currency = ?
		ORDER BY date DESC, id DESC
		LIMIT ?
	`, sourceCurrency, targetCurrency, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list fx observations: %w", err)
	}
	defer rows.Close()

	var observations []Observation
	for rows.Next() {
		var obs Observation
		var dateUnix int64
		if err := rows.Scan(&obs.ID, &obs.SourceCurrency, &obs.TargetCurrency, &dateUnix, &obs.Rate); err != nil {
			return nil, fmt.Errorf("failed to scan fx observation: %w", err)
		}
		obs.Date = time.Unix(dateUnix, 0).UTC()
		observations = append(observations, obs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fx observations: %w", err)
	}

	return observations, nil
}

// LatestDate returns the date of the most recent observation in either
// direction for any pair involving the given currency as source or target.
// Returns zero time when the store has no observations for it.
func (s *ObservationStore) LatestDate(currency string) (time.Time, error) {
	var dateUnix sql.NullInt64
	err := s.db.QueryRow(`
		SELECT MAX(date) FROM fx_observations
		WHERE source_currency = ? OR target_currency = ?
	`, currency, currency).Scan(&dateUnix)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest fx date: %w", err)
	}
	if !dateUnix.Valid {
		return time.Time{}, nil
	}
	return time.Unix(dateUnix.Int64, 0).UTC(), nil
}
