package reconciliation

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handlers provides HTTP handlers for base-currency settings.
type Handlers struct {
	tracker *Tracker
}

// NewHandlers creates new HTTP handlers for base-currency settings.
func NewHandlers(tracker *Tracker) *Handlers {
	return &Handlers{tracker: tracker}
}

// RegisterRoutes registers HTTP routes for base-currency settings.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/settings/base-currency", func(r chi.Router) {
		r.Get("/", h.GetBaseCurrency)
		r.Put("/", h.SetBaseCurrency)
	})
}

// GetBaseCurrency returns the configured base currency and the current
// reconciliation record (null when none exists).
func (h *Handlers) GetBaseCurrency(w http.ResponseWriter, r *http.Request) {
	currency, err := h.tracker.BaseCurrency()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	state, err := h.tracker.GetState()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"base_currency":  currency,
		"reconciliation": state,
	})
}

// SetBaseCurrency updates the base currency. Body: {"currency": "EUR"}.
func (h *Handlers) SetBaseCurrency(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Currency string `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.tracker.SetBaseCurrency(body.Currency); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	state, err := h.tracker.GetState()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"base_currency":  body.Currency,
		"reconciliation": state,
	})
}
