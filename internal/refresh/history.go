package refresh

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/valora-app/valora/internal/database"
)

// HistoryStore persists terminal runs and answers freshness queries.
// Active runs live only in the manager's memory; a row appears here exactly
// once, when the run reaches a terminal state.
type HistoryStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryStore creates a run history store.
func NewHistoryStore(db *sql.DB, log zerolog.Logger) *HistoryStore {
	return &HistoryStore{
		db:  db,
		log: log.With().Str("repository", "refresh_history").Logger(),
	}
}

// SaveTerminal writes a terminal run and its failed items in one transaction.
func (s *HistoryStore) SaveTerminal(run Run) error {
	if !run.Status.Terminal() || run.EndedAt == nil {
		return fmt.Errorf("run %s is not terminal", run.ID)
	}

	return database.WithTransaction(s.db, func(tx *sql.Tx) error {
		metadata := run.Progress[CategoryMetadata]
		prices := run.Progress[CategoryPrices]
		fxProgress := run.Progress[CategoryFx]

		_, err := tx.Exec(`
			INSERT INTO refresh_runs (
				id, status, scope_metadata, scope_prices, scope_fx,
				metadata_processed, metadata_total,
				prices_processed, prices_total,
				fx_processed, fx_total,
				started_at, ended_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status,
				ended_at = excluded.ended_at
		`, run.ID, string(run.Status),
			boolToInt(run.Scope.Metadata), boolToInt(run.Scope.Prices), boolToInt(run.Scope.Fx),
			metadata.Processed, metadata.Total,
			prices.Processed, prices.Total,
			fxProgress.Processed, fxProgress.Total,
			run.StartedAt.Unix(), run.EndedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		for seq, item := range run.FailedItems {
			_, err := tx.Exec(`
				INSERT INTO refresh_run_failures (run_id, seq, category, identifier, reason)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(run_id, seq) DO NOTHING
			`, run.ID, seq, string(item.Category), item.Identifier, item.Reason)
			if err != nil {
				return fmt.Errorf("failed to insert run failure: %w", err)
			}
		}

		return nil
	})
}

// GetRun returns a persisted run by ID, or nil if none exists.
func (s *HistoryStore) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, status, scope_metadata, scope_prices, scope_fx,
		       metadata_processed, metadata_total,
		       prices_processed, prices_total,
		       fx_processed, fx_total,
		       started_at, ended_at
		FROM refresh_runs
		WHERE id = ?
	`, runID)

	run, err := s.scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// LatestTerminal returns the most recently ended run, or nil when history is
// empty.
func (s *HistoryStore) LatestTerminal() (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, status, scope_metadata, scope_prices, scope_fx,
		       metadata_processed, metadata_total,
		       prices_processed, prices_total,
		       fx_processed, fx_total,
		       started_at, ended_at
		FROM refresh_runs
		ORDER BY ended_at DESC, id DESC
		LIMIT 1
	`)

	run, err := s.scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// Freshness returns, per category, the end time of the most recent run that
// included the category in scope and recorded no failures for it.
func (s *HistoryStore) Freshness() (Freshness, error) {
	var fresh Freshness

	columns := []struct {
		scopeColumn string
		category    Category
		target      **time.Time
	}{
		{"scope_metadata", CategoryMetadata, &fresh.Metadata},
		{"scope_prices", CategoryPrices, &fresh.Prices},
		{"scope_fx", CategoryFx, &fresh.Fx},
	}

	for _, c := range columns {
		query := fmt.Sprintf(`
			SELECT MAX(r.ended_at)
			FROM refresh_runs r
			WHERE r.%s = 1
			  AND r.ended_at IS NOT NULL
			  AND NOT EXISTS (
				SELECT 1 FROM refresh_run_failures f
				WHERE f.run_id = r.id AND f.category = ?
			  )
		`, c.scopeColumn)

		var endedAt sql.NullInt64
		if err := s.db.QueryRow(query, string(c.category)).Scan(&endedAt); err != nil {
			return Freshness{}, fmt.Errorf("failed to query freshness: %w", err)
		}
		if endedAt.Valid {
			t := time.Unix(endedAt.Int64, 0).UTC()
			*c.target = &t
		}
	}

	return fresh, nil
}

// scanRun reads one run row plus its failed items.
func (s *HistoryStore) scanRun(row *sql.Row) (*Run, error) {
	var run Run
	var status string
	var scopeMetadata, scopePrices, scopeFx int
	var metadata, prices, fxProgress CategoryProgress
	var startedAt, endedAt int64

	err := row.Scan(&run.ID, &status, &scopeMetadata, &scopePrices, &scopeFx,
		&metadata.Processed, &metadata.Total,
		&prices.Processed, &prices.Total,
		&fxProgress.Processed, &fxProgress.Total,
		&startedAt, &endedAt)
	if err != nil {
		return nil, err
	}

	run.Status = Status(status)
	run.Scope = Scope{Metadata: scopeMetadata == 1, Prices: scopePrices == 1, Fx: scopeFx == 1}
	run.StartedAt = time.Unix(startedAt, 0).UTC()
	ended := time.Unix(endedAt, 0).UTC()
	run.EndedAt = &ended

	run.Progress = make(map[Category]CategoryProgress)
	if run.Scope.Metadata {
		run.Progress[CategoryMetadata] = metadata
	}
	if run.Scope.Prices {
		run.Progress[CategoryPrices] = prices
	}
	if run.Scope.Fx {
		run.Progress[CategoryFx] = fxProgress
	}

	failures, err := s.loadFailures(run.ID)
	if err != nil {
		return nil, err
	}
	run.FailedItems = failures

	return &run, nil
}

func (s *HistoryStore) loadFailures(runID string) ([]FailedItem, error) {
	rows, err := s.db.Query(`
		SELECT category, identifier, reason
		FROM refresh_run_failures
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run failures: %w", err)
	}
	defer rows.Close()

	var failures []FailedItem
	for rows.Next() {
		var item FailedItem
		var category string
		if err := rows.Scan(&category, &item.Identifier, &item.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan run failure: %w", err)
		}
		item.Category = Category(category)
		failures = append(failures, item)
	}
	return failures, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
