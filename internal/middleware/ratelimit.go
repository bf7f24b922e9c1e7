package middleware

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/noah-isme/commerce-admin-api/internal/service"
	appErrors "github.com/noah-isme/commerce-admin-api/pkg/errors"
	"github.com/noah-isme/commerce-admin-api/pkg/response"
)

// ErrInvalidRateLimit is returned by backends given a non-positive limit or window.
var ErrInvalidRateLimit = errors.New("ratelimit: limit and window must be positive")

// RateLimitBackend decides whether another request for key fits the budget.
type RateLimitBackend interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimitConfig bounds requests per client IP.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// RateLimit rejects clients exceeding cfg.Requests per cfg.Window on the
// route it guards. Backend errors let the request through.
func RateLimit(backend RateLimitBackend, cfg RateLimitConfig, metrics *service.MetricsService, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Requests <= 0 {
		cfg.Requests = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	retryAfter := strconv.Itoa(int(math.Ceil(cfg.Window.Seconds())))

	return func(c *gin.Context) {
		route := c.FullPath()
		key := route + "|" + c.ClientIP()
		allowed, err := backend.Allow(c.Request.Context(), key, cfg.Requests, cfg.Window)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("path", route), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			metrics.RecordRateLimited(route)
			c.Header("Retry-After", retryAfter)
			response.Error(c, appErrors.ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryRateLimiter keeps a token bucket per key in process memory. Buckets
// refill at limit per window with a burst of limit.
type MemoryRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	idle     time.Duration
	now      func() time.Time
}

// NewMemoryRateLimiter creates a limiter that forgets keys idle for longer than idle.
func NewMemoryRateLimiter(idle time.Duration) *MemoryRateLimiter {
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	return &MemoryRateLimiter{visitors: make(map[string]*visitor), idle: idle, now: time.Now}
}

// Allow implements RateLimitBackend.
func (m *MemoryRateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, ErrInvalidRateLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	v, ok := m.visitors[key]
	if !ok {
		every := rate.Every(window / time.Duration(limit))
		v = &visitor{limiter: rate.NewLimiter(every, limit)}
		m.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1), nil
}

// Run evicts idle keys until ctx is cancelled.
func (m *MemoryRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(m.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *MemoryRateLimiter) evictIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.idle)
	for key, v := range m.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(m.visitors, key)
		}
	}
}
