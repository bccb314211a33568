package refresh

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupHistoryStore(t *testing.T) *HistoryStore {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE refresh_runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		scope_metadata INTEGER NOT NULL,
		scope_prices INTEGER NOT NULL,
		scope_fx INTEGER NOT NULL,
		metadata_processed INTEGER NOT NULL DEFAULT 0,
		metadata_total INTEGER NOT NULL DEFAULT 0,
		prices_processed INTEGER NOT NULL DEFAULT 0,
		prices_total INTEGER NOT NULL DEFAULT 0,
		fx_processed INTEGER NOT NULL DEFAULT 0,
		fx_total INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		ended_at INTEGER
	)`)
	require.NoError(t, err)

	_, err = db.Exec(`CREATE TABLE refresh_run_failures (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		category TEXT NOT NULL,
		identifier TEXT NOT NULL,
		reason TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`)
	require.NoError(t, err)

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	return NewHistoryStore(db, logger)
}

func terminalRun(id string, status Status, scope Scope, endedAt time.Time, failures ...FailedItem) Run {
	progress := make(map[Category]CategoryProgress)
	for _, c := range scope.Categories() {
		progress[c] = CategoryProgress{Processed: 2, Total: 2}
	}
	started := endedAt.Add(-time.Minute)
	return Run{
		ID:          id,
		Status:      status,
		Scope:       scope,
		Progress:    progress,
		FailedItems: failures,
		StartedAt:   started,
		EndedAt:     &endedAt,
	}
}

func TestSaveTerminalRejectsRunningRun(t *testing.T) {
	store := setupHistoryStore(t)

	err := store.SaveTerminal(Run{ID: "r1", Status: StatusRunning})
	assert.Error(t, err)
}

func TestSaveAndGetRunRoundTrip(t *testing.T) {
	store := setupHistoryStore(t)

	endedAt := time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)
	run := terminalRun("r1", StatusCompletedWithIssues, Scope{Prices: true, Fx: true}, endedAt,
		FailedItem{Category: CategoryPrices, Identifier: "BROKEN", Reason: "provider returned 500"})

	require.NoError(t, store.SaveTerminal(run))

	loaded, err := store.GetRun("r1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, StatusCompletedWithIssues, loaded.Status)
	assert.Equal(t, Scope{Prices: true, Fx: true}, loaded.Scope)
	assert.Equal(t, CategoryProgress{Processed: 2, Total: 2}, loaded.Progress[CategoryPrices])
	// Categories outside the scope have no progress entry.
	_, ok := loaded.Progress[CategoryMetadata]
	assert.False(t, ok)
	require.NotNil(t, loaded.EndedAt)
	assert.Equal(t, endedAt, *loaded.EndedAt)
	require.Len(t, loaded.FailedItems, 1)
	assert.Equal(t, "BROKEN", loaded.FailedItems[0].Identifier)
}

func TestGetRunReturnsNilWhenMissing(t *testing.T) {
	store := setupHistoryStore(t)

	run, err := store.GetRun("no-such-run")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestLatestTerminal(t *testing.T) {
	store := setupHistoryStore(t)

	latest, err := store.LatestTerminal()
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, store.SaveTerminal(terminalRun("r1", StatusCompleted, FullScope(),
		time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC))))
	require.NoError(t, store.SaveTerminal(terminalRun("r2", StatusCanceled, FullScope(),
		time.Date(2024, 3, 2, 3, 0, 0, 0, time.UTC))))

	latest, err = store.LatestTerminal()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "r2", latest.ID)
}

func TestFreshnessTracksCleanRunsPerCategory(t *testing.T) {
	store := setupHistoryStore(t)

	fresh, err := store.Freshness()
	require.NoError(t, err)
	assert.Nil(t, fresh.Metadata)
	assert.Nil(t, fresh.Prices)
	assert.Nil(t, fresh.Fx)

	day1 := time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 3, 0, 0, 0, time.UTC)

	// Clean full run on day 1.
	require.NoError(t, store.SaveTerminal(terminalRun("r1", StatusCompleted, FullScope(), day1)))

	// Day-2 run covers prices and fx but the fx category had a failure, so
	// only prices advances.
	require.NoError(t, store.SaveTerminal(terminalRun("r2", StatusCompletedWithIssues,
		Scope{Prices: true, Fx: true}, day2,
		FailedItem{Category: CategoryFx, Identifier: "USD->EUR", Reason: "feed down"})))

	fresh, err = store.Freshness()
	require.NoError(t, err)
	require.NotNil(t, fresh.Metadata)
	assert.Equal(t, day1, *fresh.Metadata)
	require.NotNil(t, fresh.Prices)
	assert.Equal(t, day2, *fresh.Prices)
	require.NotNil(t, fresh.Fx)
	assert.Equal(t, day1, *fresh.Fx)
}

func TestFreshnessIgnoresOutOfScopeFailures(t *testing.T) {
	store := setupHistoryStore(t)

	day1 := time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)

	// A failed prices item must not taint the fx category's freshness.
	require.NoError(t, store.SaveTerminal(terminalRun("r1", StatusCompletedWithIssues,
		Scope{Prices: true, Fx: true}, day1,
		FailedItem{Category: CategoryPrices, Identifier: "BROKEN", Reason: "provider returned 500"})))

	fresh, err := store.Freshness()
	require.NoError(t, err)
	assert.Nil(t, fresh.Prices)
	require.NotNil(t, fresh.Fx)
	assert.Equal(t, day1, *fresh.Fx)
}
