package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aegis-trader/aegis/internal/database"
	"github.com/aegis-trader/aegis/internal/runs"
	"github.com/aegis-trader/aegis/internal/tools"
)

// SystemHandlers serves process and host monitoring endpoints.
type SystemHandlers struct {
	log       zerolog.Logger
	runtimeDB *database.DB
	registry  *runs.Registry
	tools     *tools.Registry
	startedAt time.Time
}

// NewSystemHandlers creates system monitoring handlers.
func NewSystemHandlers(log zerolog.Logger, runtimeDB *database.DB, registry *runs.Registry, toolRegistry *tools.Registry) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("component", "system_handlers").Logger(),
		runtimeDB: runtimeDB,
		registry:  registry,
		tools:     toolRegistry,
		startedAt: time.Now(),
	}
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuAvg, ramPercent := h.getSystemStats()

	statusCounts := make(map[string]int)
	for _, run := range h.registry.List() {
		statusCounts[string(run.Status)]++
	}

	var hostUptime uint64
	if uptime, err := host.Uptime(); err == nil {
		hostUptime = uptime
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "ok",
		"uptime_seconds":     int64(time.Since(h.startedAt).Seconds()),
		"host_uptime_hours":  hostUptime / 3600,
		"cpu_percent":        cpuAvg,
		"ram_percent":        ramPercent,
		"goroutines":         runtime.NumGoroutine(),
		"registered_tools":   h.tools.Names(),
		"runs_by_status":     statusCounts,
		"database":           h.runtimeDB.Name(),
	})
}

// getSystemStats calculates CPU and RAM usage percentages
// Uses a short interval (100ms) so the status endpoint stays responsive
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
