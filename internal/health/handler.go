package health

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/eleven-am/voice-widget/internal/connection"
	"github.com/eleven-am/voice-widget/internal/conversation"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentStatus struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type RuntimeStats struct {
	Goroutines         int    `json:"goroutines"`
	MemoryAllocMB      uint64 `json:"memory_alloc_mb"`
	MemoryTotalAllocMB uint64 `json:"memory_total_alloc_mb"`
	MemorySysMB        uint64 `json:"memory_sys_mb"`
	NumGC              uint32 `json:"num_gc"`
}

type SessionStats struct {
	State       string `json:"state"`
	Mode        string `json:"mode"`
	Subscribers int    `json:"subscribers"`
}

type Stats struct {
	Session SessionStats `json:"session"`
	Runtime RuntimeStats `json:"runtime"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Stats         Stats                      `json:"stats"`
	Components    map[string]ComponentStatus `json:"components"`
}

type SessionSource interface {
	Snapshot() conversation.Snapshot
}

type SubscriberCounter interface {
	Count() int
}

// Handler reports liveness and readiness. Redis and the database are
// optional; a nil client leaves its component out of the report.
type Handler struct {
	db          *gorm.DB
	redis       *redis.Client
	session     SessionSource
	subscribers SubscriberCounter
	version     string
	startTime   time.Time
}

func NewHandler(db *gorm.DB, redis *redis.Client, session SessionSource, subscribers SubscriberCounter, version string) *Handler {
	return &Handler{
		db:          db,
		redis:       redis,
		session:     session,
		subscribers: subscribers,
		version:     version,
		startTime:   time.Now(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	e.GET("/health/ready", h.Readiness)
}

func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *Handler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	type check struct {
		name  string
		check func(context.Context) ComponentStatus
	}
	checks := []check{{"session", h.checkSession}}
	if h.db != nil {
		checks = append(checks, check{"database", h.checkDatabase})
	}
	if h.redis != nil {
		checks = append(checks, check{"redis", h.checkRedis})
	}

	components := make(map[string]ComponentStatus)
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(len(checks))
	for _, ch := range checks {
		go func(name string, fn func(context.Context) ComponentStatus) {
			defer wg.Done()
			status := fn(ctx)
			mu.Lock()
			components[name] = status
			mu.Unlock()
		}(ch.name, ch.check)
	}
	wg.Wait()

	overallStatus := computeOverallStatus(components)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := h.session.Snapshot()
	subscribers := 0
	if h.subscribers != nil {
		subscribers = h.subscribers.Count()
	}

	resp := HealthResponse{
		Status:        overallStatus,
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Stats: Stats{
			Session: SessionStats{
				State:       snap.State.String(),
				Mode:        string(snap.Mode),
				Subscribers: subscribers,
			},
			Runtime: RuntimeStats{
				Goroutines:         runtime.NumGoroutine(),
				MemoryAllocMB:      memStats.Alloc / 1024 / 1024,
				MemoryTotalAllocMB: memStats.TotalAlloc / 1024 / 1024,
				MemorySysMB:        memStats.Sys / 1024 / 1024,
				NumGC:              memStats.NumGC,
			},
		},
		Components: components,
	}

	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, resp)
}

func component(start time.Time, status Status, errMsg string) ComponentStatus {
	return ComponentStatus{
		Status:    status,
		LatencyMs: time.Since(start).Milliseconds(),
		Error:     errMsg,
	}
}

func (h *Handler) checkSession(_ context.Context) ComponentStatus {
	start := time.Now()
	switch h.session.Snapshot().State {
	case connection.StateFailedPermanently:
		return component(start, StatusUnhealthy, "reconnect attempts exhausted")
	case connection.StateConnecting, connection.StateClosing:
		return component(start, StatusDegraded, "")
	}
	return component(start, StatusHealthy, "")
}

func (h *Handler) checkDatabase(ctx context.Context) ComponentStatus {
	start := time.Now()
	sqlDB, err := h.db.DB()
	if err != nil {
		return component(start, StatusUnhealthy, "failed to get underlying db")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return component(start, StatusUnhealthy, "ping failed")
	}
	return component(start, evaluateDBStats(sqlDB.Stats()), "")
}

// evaluateDBStats reports a saturated pool as degraded.
func evaluateDBStats(stats sql.DBStats) Status {
	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
		return StatusDegraded
	}
	return StatusHealthy
}

func (h *Handler) checkRedis(ctx context.Context) ComponentStatus {
	start := time.Now()
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return component(start, StatusUnhealthy, "ping failed")
	}
	return component(start, StatusHealthy, "")
}

// computeOverallStatus treats only the session as critical. Storage outages
// degrade history and transcripts but never the conversation itself.
func computeOverallStatus(components map[string]ComponentStatus) Status {
	if s, ok := components["session"]; ok && s.Status == StatusUnhealthy {
		return StatusUnhealthy
	}

	for _, status := range components {
		if status.Status != StatusHealthy {
			return StatusDegraded
		}
	}
	return StatusHealthy
}
