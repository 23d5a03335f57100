package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

var startTime = time.Now()

// HealthChecker is anything that can report its own reachability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthHandler struct {
	checks  map[string]HealthChecker
	version string
	timeout time.Duration
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	System    SystemStats       `json:"system"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
}

// SystemStats is a host snapshot. Fields stay zero when gopsutil cannot
// read them.
type SystemStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	Goroutines    int     `json:"goroutines"`
}

// NewHealthHandler reports on every non-nil checker. A nil checker is
// listed as disabled.
func NewHealthHandler(version string, checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{checks: checks, version: version, timeout: 3 * time.Second}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	services := make(map[string]string, len(h.checks))
	overallStatus := "healthy"
	for name, check := range h.checks {
		if check == nil {
			services[name] = "disabled"
			continue
		}
		if err := check.HealthCheck(ctx); err != nil {
			services[name] = "unhealthy: " + err.Error()
			overallStatus = "unhealthy"
			continue
		}
		services[name] = "healthy"
	}

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Services:  services,
		System:    systemStats(ctx),
		Version:   h.version,
		Uptime:    time.Since(startTime).String(),
	}

	status := http.StatusOK
	if overallStatus != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response)
}

func systemStats(ctx context.Context) SystemStats {
	stats := SystemStats{Goroutines: runtime.NumGoroutine()}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}
	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryPercent = memInfo.UsedPercent
		stats.MemoryUsedMB = memInfo.Used / 1024 / 1024
	}
	return stats
}
