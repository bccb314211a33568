package refresh

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handlers provides HTTP handlers for the refresh runtime.
type Handlers struct {
	manager   *Manager
	projector *Projector
}

// NewHandlers creates new HTTP handlers for the refresh runtime.
func NewHandlers(manager *Manager, projector *Projector) *Handlers {
	return &Handlers{manager: manager, projector: projector}
}

// RegisterRoutes registers HTTP routes for the refresh runtime.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/refresh", func(r chi.Router) {
		r.Post("/", h.StartRun)
		r.Get("/panel", h.GetPanelState)
		r.Get("/{runID}", h.GetRunSummary)
		r.Post("/{runID}/cancel", h.CancelRun)
		r.Post("/{runID}/background", h.SendToBackground)
		r.Get("/{runID}/failures.txt", h.ExportFailures)
	})
}

// StartRun starts a refresh over the requested scope, or joins the active
// run. Body: {"metadata": true, "prices": true, "fx": true}. An absent body
// means full scope.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	scope := FullScope()
	if r.Body != nil && r.ContentLength != 0 {
		var requested Scope
		if err := json.NewDecoder(r.Body).Decode(&requested); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		scope = requested
	}

	result, err := h.manager.StartRun(scope)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if result.CreatedNewRun {
		status = http.StatusCreated
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}

// GetPanelState returns the polling snapshot for the activity panel.
func (h *Handlers) GetPanelState(w http.ResponseWriter, r *http.Request) {
	state, err := h.projector.PanelState()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

// GetRunSummary returns a snapshot of one run, active or historical.
func (h *Handlers) GetRunSummary(w http.ResponseWriter, r *http.Request) {
	run, err := h.manager.GetRunSummary(chi.URLParam(r, "runID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// CancelRun requests cooperative cancellation of a run.
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.CancelRun(chi.URLParam(r, "runID")); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// SendToBackground marks a run as backgrounded.
func (h *Handlers) SendToBackground(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.SendToBackground(chi.URLParam(r, "runID")); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportFailures returns a run's failed items as plain text.
func (h *Handlers) ExportFailures(w http.ResponseWriter, r *http.Request) {
	run, err := h.manager.GetRunSummary(chi.URLParam(r, "runID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(ExportFailedItems(*run)))
}
