// Package securities provides persistence for externally sourced security
// reference metadata and daily prices in history.db.
package securities

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Store writes fetched security data to history.db.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a new securities store.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "securities_store").Logger(),
	}
}

// Metadata is the reference metadata kept per security.
type Metadata struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Currency   string `json:"currency"`
	Exchange   string `json:"exchange,omitempty"`
}

// UpsertMetadata inserts or replaces reference metadata for a security.
func (s *Store) UpsertMetadata(md Metadata) error {
	_, err := s.db.Exec(`
		INSERT INTO security_metadata (identifier, name, currency, exchange, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET
			name = excluded.name,
			currency = excluded.currency,
			exchange = excluded.exchange,
			updated_at = excluded.updated_at
	`, md.Identifier, md.Name, md.Currency, md.Exchange, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert metadata for %s: %w", md.Identifier, err)
	}

	s.log.Debug().
		Str("identifier", md.Identifier).
		Str("currency", md.Currency).
		Msg("Upserted security metadata")

	return nil
}

// GetMetadata fetches reference metadata for a security.
// Returns nil if not found (not an error).
func (s *Store) GetMetadata(identifier string) (*Metadata, error) {
	var md Metadata
	var exchange sql.NullString

	err := s.db.QueryRow(`
		SELECT identifier, name, currency, exchange
		FROM security_metadata
		WHERE identifier = ?
	`, identifier).Scan(&md.Identifier, &md.Name, &md.Currency, &exchange)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata for %s: %w", identifier, err)
	}

	if exchange.Valid {
		md.Exchange = exchange.String
	}
	return &md, nil
}

// UpsertDailyPrice inserts or replaces a daily closing price.
// The date is truncated to midnight UTC.
func (s *Store) UpsertDailyPrice(identifier string, date time.Time, close float64, currency string) error {
	dateUnix := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC).Unix()

	_, err := s.db.Exec(`
		INSERT INTO daily_prices (identifier, date, close, currency, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(identifier, date) DO UPDATE SET
			close = excluded.close,
			currency = excluded.currency,
			updated_at = excluded.updated_at
	`, identifier, dateUnix, close, currency, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert daily price for %s: %w", identifier, err)
	}

	s.log.Debug().
		Str("identifier", identifier).
		Float64("close", close).
		Str("currency", currency).
		Msg("Upserted daily price")

	return nil
}

// LatestPriceDate returns the date of the most recent stored price for a
// security. Returns zero time if none exists (not an error).
func (s *Store) LatestPriceDate(identifier string) (time.Time, error) {
	var dateUnix int64
	err := s.db.QueryRow(`
		SELECT date FROM daily_prices
		WHERE identifier = ?
		ORDER BY date DESC
		LIMIT 1
	`, identifier).Scan(&dateUnix)

	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest price date for %s: %w", identifier, err)
	}

	return time.Unix(dateUnix, 0).UTC(), nil
}
