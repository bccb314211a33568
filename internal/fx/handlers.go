package fx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// Handlers provides HTTP handlers for FX queries.
type Handlers struct {
	resolver *Resolver
	store    *ObservationStore
}

// NewHandlers creates new HTTP handlers for FX queries.
func NewHandlers(resolver *Resolver, store *ObservationStore) *Handlers {
	return &Handlers{
		resolver: resolver,
		store:    store,
	}
}

// RegisterRoutes registers HTTP routes for FX queries.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/fx", func(r chi.Router) {
		r.Get("/convert", h.Convert)
		r.Get("/observations/{source}/{target}", h.ListObservations)
	})
}

// Convert answers a point-in-time conversion query.
// Query params: amount, from, to, as_of (YYYY-MM-DD, defaults to today).
func (h *Handlers) Convert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	amount, err := strconv.ParseFloat(q.Get("amount"), 64)
	if err != nil {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}

	from := q.Get("from")
	to := q.Get("to")
	if from == "" || to == "" {
		http.Error(w, "from and to are required", http.StatusBadRequest)
		return
	}

	asOf := time.Now().UTC()
	if v := q.Get("as_of"); v != "" {
		asOf, err = time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, "invalid as_of date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}

	result, err := h.resolver.Convert(amount, from, to, asOf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// ListObservations returns recent observations for a pair.
func (h *Handlers) ListObservations(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	target := chi.URLParam(r, "target")

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	observations, err := h.store.ListPair(source, target, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(observations)
}
