package refresh

import (
	"sync"
	"time"
)

// EventEmitter defines the interface for emitting events
type EventEmitter interface {
	Emit(event string, data any)
}

// Event names for the run lifecycle
const (
	EventRunStarted  = "RefreshRunStarted"
	EventRunProgress = "RefreshRunProgress"
	EventRunFinished = "RefreshRunFinished"
)

// RunStartedEvent is emitted when a run begins execution
type RunStartedEvent struct {
	RunID string `json:"run_id"`
	Scope Scope  `json:"scope"`
}

// RunProgressEvent is emitted as items are processed
type RunProgressEvent struct {
	RunID     string   `json:"run_id"`
	Category  Category `json:"category"`
	Processed int      `json:"processed"`
	Total     int      `json:"total"`
}

// RunFinishedEvent is emitted when a run reaches a terminal state
type RunFinishedEvent struct {
	RunID       string        `json:"run_id"`
	Status      Status        `json:"status"`
	Duration    time.Duration `json:"duration"`
	FailedItems int           `json:"failed_items"`
}

// Throttle interval for progress events (avoid spam)
const progressThrottleInterval = 100 * time.Millisecond

// progressReporter emits throttled progress events for one run.
// These feed the activity panel's event log; the panel itself polls, so
// dropped events are harmless.
type progressReporter struct {
	emitter EventEmitter
	runID   string

	lastReport time.Time
	mu         sync.Mutex
}

func newProgressReporter(emitter EventEmitter, runID string) *progressReporter {
	return &progressReporter{
		emitter: emitter,
		runID:   runID,
	}
}

// reportProgress emits a throttled per-category progress event.
func (r *progressReporter) reportProgress(category Category, processed, total int) {
	if r == nil || r.emitter == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if time.Since(r.lastReport) < progressThrottleInterval {
		return
	}
	r.lastReport = time.Now()

	r.emitter.Emit(EventRunProgress, RunProgressEvent{
		RunID:     r.runID,
		Category:  category,
		Processed: processed,
		Total:     total,
	})
}

// emitStarted emits a RefreshRunStarted event
func (r *progressReporter) emitStarted(scope Scope) {
	if r == nil || r.emitter == nil {
		return
	}

	r.emitter.Emit(EventRunStarted, RunStartedEvent{
		RunID: r.runID,
		Scope: scope,
	})
}

// emitFinished emits a RefreshRunFinished event
func (r *progressReporter) emitFinished(status Status, duration time.Duration, failedItems int) {
	if r == nil || r.emitter == nil {
		return
	}

	r.emitter.Emit(EventRunFinished, RunFinishedEvent{
		RunID:       r.runID,
		Status:      status,
		Duration:    duration,
		FailedItems: failedItems,
	})
}
