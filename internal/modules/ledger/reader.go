// Package ledger provides read-only access to the accounting data store.
// The ledger is owned by the bookkeeping application; this service only
// enumerates identifiers from it to derive refresh work sets and never
// writes to it.
package ledger

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// Reader exposes read-only queries against ledger.db.
type Reader struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewReader creates a new ledger reader.
func NewReader(db *sql.DB, log zerolog.Logger) *Reader {
	return &Reader{
		db:  db,
		log: log.With().Str("component", "ledger_reader").Logger(),
	}
}

// SecurityIdentifiers returns the identifiers of all securities known to the
// ledger, sorted for deterministic iteration order.
func (r *Reader) SecurityIdentifiers() ([]string, error) {
	rows, err := r.db.Query("SELECT identifier FROM securities ORDER BY identifier")
	if err != nil {
		return nil, fmt.Errorf("failed to query security identifiers: %w", err)
	}
	defer rows.Close()

	var identifiers []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan security identifier: %w", err)
		}
		identifiers = append(identifiers, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security identifiers: %w", err)
	}

	return identifiers, nil
}

// SecurityCurrencies returns the distinct currencies securities are
// denominated in, sorted alphabetically.
func (r *Reader) SecurityCurrencies() ([]string, error) {
	rows, err := r.db.Query("SELECT DISTINCT currency FROM securities WHERE currency <> ''")
	if err != nil {
		return nil, fmt.Errorf("failed to query security currencies: %w", err)
	}
	defer rows.Close()

	var currencies []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan currency: %w", err)
		}
		currencies = append(currencies, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating currencies: %w", err)
	}

	sort.Strings(currencies)
	return currencies, nil
}

// CurrencyPairs returns the FX pairs that need coverage for valuation in the
// given base currency: one source->base pair per distinct security currency
// other than the base itself. Pairs are formatted "SRC->DST".
func (r *Reader) CurrencyPairs(baseCurrency string) ([]string, error) {
	if baseCurrency == "" {
		return nil, nil
	}

	currencies, err := r.SecurityCurrencies()
	if err != nil {
		return nil, err
	}

	var pairs []string
	for _, c := range currencies {
		if c == baseCurrency {
			continue
		}
		pairs = append(pairs, c+"->"+baseCurrency)
	}

	return pairs, nil
}
