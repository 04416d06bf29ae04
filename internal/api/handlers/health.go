package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// DatabaseHealthChecker verifies the database connection.
type DatabaseHealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RedisHealthChecker verifies the Redis connection.
type RedisHealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler serves the liveness, readiness, and full health probes.
type HealthHandler struct {
	db    DatabaseHealthChecker
	redis RedisHealthChecker
}

func NewHealthHandler(db DatabaseHealthChecker, redis RedisHealthChecker) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// SystemStats is a point-in-time snapshot of host resource usage.
type SystemStats struct {
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	CPUPercent        float64 `json:"cpu_percent"`
	Goroutines        int     `json:"goroutines"`
}

// HealthResponse is the full health probe payload.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	System    *SystemStats      `json:"system,omitempty"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
}

var startTime = time.Now()

// HealthCheck reports the status of every dependency. Redis is critical
// because drafts live there; without it the chat loop cannot run.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	span := sentry.StartSpan(ctx, "health_check")
	defer span.Finish()
	ctx = span.Context()

	servicesStatus := make(map[string]string)
	criticalUnhealthy := false

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			servicesStatus["database"] = "unhealthy: " + err.Error()
			span.SetTag("database.status", "unhealthy")
		} else {
			servicesStatus["database"] = "healthy"
			span.SetTag("database.status", "healthy")
		}
	} else {
		// The service degrades to chat-only without Postgres; finalization
		// will fail but drafting still works.
		servicesStatus["database"] = "not configured"
		span.SetTag("database.status", "not_configured")
	}

	if h.redis != nil {
		if err := h.redis.HealthCheck(ctx); err != nil {
			servicesStatus["redis"] = "unhealthy: " + err.Error()
			span.SetTag("redis.status", "unhealthy")
			sentry.CaptureException(err)
			criticalUnhealthy = true
		} else {
			servicesStatus["redis"] = "healthy"
			span.SetTag("redis.status", "healthy")
		}
	} else {
		servicesStatus["redis"] = "unhealthy: not configured"
		span.SetTag("redis.status", "not_configured")
		criticalUnhealthy = true
	}

	status := "healthy"
	for _, s := range servicesStatus {
		if s != "healthy" && s != "not configured" {
			status = "degraded"
		}
	}
	span.SetTag("overall.status", status)

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Services:  servicesStatus,
		System:    collectSystemStats(ctx),
		Version:   os.Getenv("APP_VERSION"),
		Uptime:    time.Since(startTime).String(),
	}

	code := http.StatusOK
	if criticalUnhealthy {
		code = http.StatusServiceUnavailable
		span.Status = sentry.SpanStatusUnavailable
	} else {
		span.Status = sentry.SpanStatusOK
	}
	c.JSON(code, response)
}

// collectSystemStats gathers host usage. Failures just drop the section.
func collectSystemStats(ctx context.Context) *SystemStats {
	stats := &SystemStats{Goroutines: runtime.NumGoroutine()}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryUsedPercent = vm.UsedPercent
	}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}
	return stats
}

// ReadinessCheck reports whether the service can take traffic. Redis must be
// reachable; Postgres being down only degrades finalization.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	servicesStatus := make(map[string]string)
	ready := true

	if h.redis != nil && h.redis.HealthCheck(ctx) == nil {
		servicesStatus["redis"] = "ready"
	} else {
		servicesStatus["redis"] = "not ready"
		ready = false
	}

	if h.db != nil && h.db.HealthCheck(ctx) == nil {
		servicesStatus["database"] = "ready"
	} else {
		servicesStatus["database"] = "degraded"
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"ready":    ready,
		"services": servicesStatus,
	})
}

// LivenessCheck confirms the process is responsive.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
