package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/valora-app/valora/internal/database"
)

// SystemHandlers handles health and system status endpoints.
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	databases   []*database.DB
}

// NewSystemHandlers creates system monitoring handlers.
func NewSystemHandlers(log zerolog.Logger, dataDir string, databases []*database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		databases:   databases,
	}
}

// Health is a minimal liveness probe.
func (h *SystemHandlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Status returns process uptime, resource usage, and per-database health.
func (h *SystemHandlers) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cpuPercent, ramPercent := h.resourceUsage()

	dbStatus := make(map[string]string, len(h.databases))
	for _, db := range h.databases {
		if db == nil {
			continue
		}
		if err := db.HealthCheck(ctx); err != nil {
			dbStatus[db.Name()] = "unhealthy: " + err.Error()
		} else {
			dbStatus[db.Name()] = "healthy"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"uptime_seconds": int(time.Since(h.startupTime).Seconds()),
		"data_dir":       h.dataDir,
		"cpu_percent":    cpuPercent,
		"ram_percent":    ramPercent,
		"databases":      dbStatus,
	})
}

// resourceUsage samples CPU and RAM usage. Failures degrade to zero rather
// than failing the status endpoint.
func (h *SystemHandlers) resourceUsage() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuPercent[0], 0
	}

	return cpuPercent[0], memStat.UsedPercent
}
