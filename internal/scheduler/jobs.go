package scheduler

import (
	"fmt"

	"github.com/valora-app/valora/internal/refresh"
)

// RunStarter is the narrow refresh contract the nightly job needs.
type RunStarter interface {
	StartRun(scope refresh.Scope) (refresh.StartResult, error)
}

// NightlyRefreshJob starts a full-scope refresh. If a run is already active
// it joins it, which for a scheduled job means doing nothing.
type NightlyRefreshJob struct {
	starter RunStarter
}

// NewNightlyRefreshJob creates the nightly full refresh job.
func NewNightlyRefreshJob(starter RunStarter) *NightlyRefreshJob {
	return &NightlyRefreshJob{starter: starter}
}

// Name returns the job name
func (j *NightlyRefreshJob) Name() string { return "nightly_refresh" }

// Run starts the full-scope refresh
func (j *NightlyRefreshJob) Run() error {
	if _, err := j.starter.StartRun(refresh.FullScope()); err != nil {
		return fmt.Errorf("failed to start nightly refresh: %w", err)
	}
	return nil
}
