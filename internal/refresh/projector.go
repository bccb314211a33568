package refresh

import (
	"github.com/rs/zerolog"
)

// Projector assembles the polling snapshot the activity panel renders: the
// active run if any, the latest terminal summary, and per-category freshness.
type Projector struct {
	manager *Manager
	history *HistoryStore
	log     zerolog.Logger
}

// NewProjector creates a panel state projector.
func NewProjector(manager *Manager, history *HistoryStore, log zerolog.Logger) *Projector {
	return &Projector{
		manager: manager,
		history: history,
		log:     log.With().Str("component", "refresh_projector").Logger(),
	}
}

// PanelState builds one consistent snapshot. The latest summary is read from
// persisted history so it survives restarts; freshness degrades to all-nil
// rather than failing the whole snapshot.
func (p *Projector) PanelState() (PanelState, error) {
	state := PanelState{
		ActiveRun: p.manager.ActiveRun(),
	}

	latest, err := p.history.LatestTerminal()
	if err != nil {
		return PanelState{}, err
	}
	state.LatestSummary = latest

	fresh, err := p.history.Freshness()
	if err != nil {
		p.log.Error().Err(err).Msg("Freshness query failed, reporting unknown")
	} else {
		state.Freshness = fresh
	}

	return state, nil
}
