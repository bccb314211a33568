package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Default per-item fetch timeout. Cancellation is cooperative: an in-flight
// item always finishes (or times out) and has its outcome recorded before the
// run stops.
const defaultItemTimeout = 30 * time.Second

// Reconciler is notified after a clean FX refresh so pending base-currency
// reconciliation can be marked resolved.
type Reconciler interface {
	ResolveIfPending() error
}

// runState is the manager's mutable record of one run. All fields except
// cancelCtx/cancel are guarded by the manager mutex. items is the work list
// frozen at enumeration time so totals and execution never drift apart.
type runState struct {
	run       Run
	items     map[Category][]string
	cancelCtx context.Context
	cancel    context.CancelFunc
	reporter  *progressReporter
}

// Manager owns the enrichment run lifecycle: the single active slot, run
// execution, cancellation, backgrounding, and the post-run reconciliation
// hook. At most one run is active at a time; a start request while a run is
// active joins that run instead of starting another.
type Manager struct {
	fetchers map[Category]CategoryFetcher
	history  *HistoryStore
	recon    Reconciler
	emitter  EventEmitter
	log      zerolog.Logger

	mu     sync.Mutex
	active *runState
	runs   map[string]*runState

	itemTimeout time.Duration
	now         func() time.Time

	// onRunDone is closed per run when its goroutine finishes. Tests use it
	// to wait deterministically.
	done map[string]chan struct{}
}

// NewManager creates a refresh manager. The reconciler and emitter may be nil.
func NewManager(fetchers []CategoryFetcher, history *HistoryStore, recon Reconciler, emitter EventEmitter, log zerolog.Logger) *Manager {
	byCategory := make(map[Category]CategoryFetcher, len(fetchers))
	for _, f := range fetchers {
		byCategory[f.Category()] = f
	}
	return &Manager{
		fetchers:    byCategory,
		history:     history,
		recon:       recon,
		emitter:     emitter,
		log:         log.With().Str("component", "refresh").Logger(),
		runs:        make(map[string]*runState),
		done:        make(map[string]chan struct{}),
		itemTimeout: defaultItemTimeout,
		now:         time.Now,
	}
}

// StartRun starts a new run over the given scope, or joins the active run if
// one exists. An empty scope yields an immediately completed run that never
// occupies the active slot.
func (m *Manager) StartRun(scope Scope) (StartResult, error) {
	m.mu.Lock()

	if m.active != nil {
		result := StartResult{CreatedNewRun: false, Run: snapshotRun(m.active.run)}
		m.mu.Unlock()
		m.log.Debug().Str("run_id", result.Run.ID).Msg("Join request for already-active run")
		return result, nil
	}

	id := uuid.New().String()
	startedAt := m.now().UTC()

	if scope.IsEmpty() {
		endedAt := startedAt
		run := Run{
			ID:        id,
			Status:    StatusCompleted,
			Scope:     scope,
			Progress:  map[Category]CategoryProgress{},
			StartedAt: startedAt,
			EndedAt:   &endedAt,
		}
		m.runs[id] = &runState{run: run}
		m.mu.Unlock()

		m.persistTerminal(run)
		m.log.Info().Str("run_id", id).Msg("Empty scope, run completed immediately")
		return StartResult{CreatedNewRun: true, Run: snapshotRun(run)}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	state := &runState{
		run: Run{
			ID:        id,
			Status:    StatusRunning,
			Scope:     scope,
			Progress:  make(map[Category]CategoryProgress),
			StartedAt: startedAt,
		},
		items:     make(map[Category][]string),
		cancelCtx: ctx,
		cancel:    cancel,
		reporter:  newProgressReporter(m.emitter, id),
	}
	m.active = state
	m.runs[id] = state
	doneCh := make(chan struct{})
	m.done[id] = doneCh

	// Enumerate totals synchronously so the first snapshot a caller sees
	// already carries {0, total} for every category in scope. An enumeration
	// failure records the whole category as one failed item with total 0.
	for _, category := range scope.Categories() {
		items, failure := m.enumerate(ctx, category)
		state.items[category] = items
		state.run.Progress[category] = CategoryProgress{Processed: 0, Total: len(items)}
		if failure != nil {
			state.run.FailedItems = append(state.run.FailedItems, *failure)
		}
	}

	result := StartResult{CreatedNewRun: true, Run: snapshotRun(state.run)}
	m.mu.Unlock()

	state.reporter.emitStarted(scope)
	m.log.Info().
		Str("run_id", id).
		Bool("metadata", scope.Metadata).
		Bool("prices", scope.Prices).
		Bool("fx", scope.Fx).
		Msg("Refresh run started")

	go func() {
		defer close(doneCh)
		m.execute(state)
	}()

	return result, nil
}

// enumerate lists the work items for a category, mapping errors and missing
// fetchers to a single failed item covering the whole category.
func (m *Manager) enumerate(ctx context.Context, category Category) ([]string, *FailedItem) {
	fetcher, ok := m.fetchers[category]
	if !ok {
		return nil, &FailedItem{
			Category:   category,
			Identifier: string(category),
			Reason:     "no fetcher registered for category",
		}
	}

	items, err := fetcher.Identifiers(ctx)
	if err != nil {
		return nil, &FailedItem{
			Category:   category,
			Identifier: string(category),
			Reason:     fmt.Sprintf("enumeration failed: %v", err),
		}
	}
	return items, nil
}

// execute drives a run to a terminal state. Cancellation is checked between
// items only; a FetchOne already underway runs to completion under its own
// timeout and has its outcome recorded.
func (m *Manager) execute(state *runState) {
	canceled := false

	for _, category := range state.run.Scope.Categories() {
		fetcher, ok := m.fetchers[category]
		if !ok {
			continue
		}

		for _, identifier := range state.items[category] {
			if state.cancelCtx.Err() != nil {
				canceled = true
				break
			}

			err := m.fetchOne(fetcher, identifier)

			m.mu.Lock()
			progress := state.run.Progress[category]
			if progress.Processed < progress.Total {
				progress.Processed++
			}
			state.run.Progress[category] = progress
			if err != nil {
				state.run.FailedItems = append(state.run.FailedItems, FailedItem{
					Category:   category,
					Identifier: identifier,
					Reason:     err.Error(),
				})
			}
			processed, total := progress.Processed, progress.Total
			m.mu.Unlock()

			state.reporter.reportProgress(category, processed, total)
		}

		if canceled {
			break
		}
	}

	m.finalize(state, canceled)
}

// fetchOne runs a single item fetch under its own timeout, detached from the
// run's cancel context so in-flight work finishes after a cancel request.
func (m *Manager) fetchOne(fetcher CategoryFetcher, identifier string) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.itemTimeout)
	defer cancel()
	return fetcher.FetchOne(ctx, identifier)
}

// finalize stamps the terminal status, releases the active slot, persists the
// run, fires the reconciliation hook, and emits the finished event.
func (m *Manager) finalize(state *runState, canceled bool) {
	m.mu.Lock()
	endedAt := m.now().UTC()
	state.run.EndedAt = &endedAt

	switch {
	case canceled:
		state.run.Status = StatusCanceled
	case len(state.run.FailedItems) > 0:
		state.run.Status = StatusCompletedWithIssues
	default:
		state.run.Status = StatusCompleted
	}

	if m.active == state {
		m.active = nil
	}
	run := snapshotRun(state.run)
	m.mu.Unlock()

	m.persistTerminal(run)

	if run.Status == StatusCompleted && run.Scope.Fx && m.recon != nil {
		if err := m.recon.ResolveIfPending(); err != nil {
			m.log.Error().Err(err).Str("run_id", run.ID).Msg("Reconciliation hook failed")
		}
	}

	state.reporter.emitFinished(run.Status, endedAt.Sub(run.StartedAt), len(run.FailedItems))
	m.log.Info().
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Int("failed_items", len(run.FailedItems)).
		Dur("duration", endedAt.Sub(run.StartedAt)).
		Msg("Refresh run finished")
}

// persistTerminal writes a terminal run to history. Persistence is
// best-effort: a write failure is logged and the in-memory record remains
// authoritative for the process lifetime.
func (m *Manager) persistTerminal(run Run) {
	if m.history == nil {
		return
	}
	if err := m.history.SaveTerminal(run); err != nil {
		m.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to persist run history")
	}
}

// CancelRun requests cooperative cancellation of a run. Canceling a run that
// is already terminal is a no-op; an unknown run ID is an error.
func (m *Manager) CancelRun(runID string) error {
	m.mu.Lock()
	state, ok := m.runs[runID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown run %q", runID)
	}
	terminal := state.run.Status.Terminal()
	m.mu.Unlock()

	if terminal {
		return nil
	}

	m.log.Info().Str("run_id", runID).Msg("Cancellation requested")
	state.cancel()
	return nil
}

// SendToBackground marks a run as backgrounded. This is bookkeeping only: the
// run keeps executing exactly as before and its results land identically.
func (m *Manager) SendToBackground(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("unknown run %q", runID)
	}
	state.run.Background = true
	return nil
}

// ActiveRun returns a snapshot of the currently active run, or nil.
func (m *Manager) ActiveRun() *Run {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil
	}
	run := snapshotRun(m.active.run)
	return &run
}

// GetRunSummary returns a snapshot of the given run, falling back to
// persisted history for runs from earlier process lifetimes. Returns nil
// when the run is unknown.
func (m *Manager) GetRunSummary(runID string) (*Run, error) {
	m.mu.Lock()
	state, ok := m.runs[runID]
	if ok {
		run := snapshotRun(state.run)
		m.mu.Unlock()
		return &run, nil
	}
	m.mu.Unlock()

	if m.history == nil {
		return nil, nil
	}
	return m.history.GetRun(runID)
}

// Wait blocks until the given run's goroutine has finished. Returns
// immediately for runs without a goroutine (unknown or empty-scope).
func (m *Manager) Wait(runID string) {
	m.mu.Lock()
	ch, ok := m.done[runID]
	m.mu.Unlock()
	if ok {
		<-ch
	}
}

// snapshotRun deep-copies the mutable fields so callers never alias live
// manager state.
func snapshotRun(run Run) Run {
	copied := run
	copied.Progress = make(map[Category]CategoryProgress, len(run.Progress))
	for category, progress := range run.Progress {
		copied.Progress[category] = progress
	}
	if run.FailedItems != nil {
		copied.FailedItems = make([]FailedItem, len(run.FailedItems))
		copy(copied.FailedItems, run.FailedItems)
	}
	if run.EndedAt != nil {
		endedAt := *run.EndedAt
		copied.EndedAt = &endedAt
	}
	return copied
}
