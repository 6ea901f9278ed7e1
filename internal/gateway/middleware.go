package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/eleven-am/voice-widget/internal/shared"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

type RateLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
	// IdleTTL evicts limiters of clients that have been quiet this long.
	IdleTTL time.Duration
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 5,
		Burst:             10,
		IdleTTL:           5 * time.Minute,
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type visitors struct {
	cfg RateLimiterConfig

	mu     sync.Mutex
	byAddr map[string]*visitor
	swept  time.Time
}

func (v *visitors) allow(addr string, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cfg.IdleTTL > 0 && now.Sub(v.swept) >= v.cfg.IdleTTL {
		for a, vis := range v.byAddr {
			if now.Sub(vis.lastSeen) >= v.cfg.IdleTTL {
				delete(v.byAddr, a)
			}
		}
		v.swept = now
	}

	vis, ok := v.byAddr[addr]
	if !ok {
		vis = &visitor{limiter: rate.NewLimiter(rate.Limit(v.cfg.RequestsPerSecond), v.cfg.Burst)}
		v.byAddr[addr] = vis
	}
	vis.lastSeen = now
	return vis.limiter.AllowN(now, 1)
}

func (v *visitors) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.byAddr)
}

// RateLimiter throttles requests per client address.
func RateLimiter(cfg RateLimiterConfig) echo.MiddlewareFunc {
	return rateLimiter(&visitors{cfg: cfg, byAddr: make(map[string]*visitor), swept: time.Now()}, time.Now)
}

func rateLimiter(v *visitors, now func() time.Time) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !v.allow(c.RealIP(), now()) {
				return shared.NewAPIError("rate_limit_exceeded", "too many requests").ToHTTP(http.StatusTooManyRequests)
			}
			return next(c)
		}
	}
}
