package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/embedops/flashgate/pkg/apiresponses"
	"github.com/embedops/flashgate/pkg/metrics"
)

// WindowConfig holds fixed-window limiter configuration.
type WindowConfig struct {
	// Window is the fixed window length.
	Window time.Duration
	// Max is the number of requests allowed per key per window.
	Max int
	// SweepInterval is how often expired windows are removed. Defaults to Window.
	SweepInterval time.Duration
}

// DefaultAuthConfig returns the limiter config for credential endpoints
// (register/login): 10 requests per 15 minutes per IP.
func DefaultAuthConfig() WindowConfig {
	return WindowConfig{Window: 15 * time.Minute, Max: 10}
}

// DefaultAPIConfig returns the limiter config for the general API:
// 500 requests per 15 minutes per IP.
func DefaultAPIConfig() WindowConfig {
	return WindowConfig{Window: 15 * time.Minute, Max: 500}
}

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds returns the retry hint rounded up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

type window struct {
	start time.Time
	count int
}

// FixedWindowLimiter is a fixed-window request counter keyed by an opaque
// string (typically "scope:ip"). The window resets abruptly at its boundary,
// so up to 2xMax requests can pass across a boundary; the trade-off buys O(1)
// memory and time per key. A background sweep removes expired windows.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	config  WindowConfig
	now     func() time.Time
	done    chan struct{}
}

// NewFixedWindow creates a fixed-window limiter and starts its sweep goroutine.
func NewFixedWindow(cfg WindowConfig) *FixedWindowLimiter {
	if cfg.Window == 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.Max == 0 {
		cfg.Max = 500
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = cfg.Window
	}

	l := &FixedWindowLimiter{
		windows: make(map[string]*window),
		config:  cfg,
		now:     time.Now,
		done:    make(chan struct{}),
	}

	go l.sweep()

	return l
}

// Check counts a request against key and decides whether it is allowed.
// The first request of a window (or of a key) always passes; once Max
// requests have been counted the decision carries a positive RetryAfter.
func (l *FixedWindowLimiter) Check(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, exists := l.windows[key]
	if !exists || now.Sub(w.start) >= l.config.Window {
		l.windows[key] = &window{start: now, count: 1}
		return Decision{Allowed: true, Remaining: l.config.Max - 1}
	}

	if w.count < l.config.Max {
		w.count++
		return Decision{Allowed: true, Remaining: l.config.Max - w.count}
	}

	return Decision{
		Allowed:    false,
		RetryAfter: l.config.Window - now.Sub(w.start),
	}
}

// Middleware returns a Gin middleware that applies the limiter per client IP.
// The scope string keeps distinct endpoint groups from sharing counters.
func (l *FixedWindowLimiter) Middleware(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := l.Check(scope + ":" + c.ClientIP())
		if !d.Allowed {
			metrics.RateLimitDenied.WithLabelValues(scope).Inc()
			apiresponses.RespondTooManyRequests(c, d.RetryAfterSeconds())
			c.Abort()
			return
		}
		c.Next()
	}
}

// Stop stops the sweep goroutine.
func (l *FixedWindowLimiter) Stop() {
	close(l.done)
}

// Len returns the current number of tracked keys (for testing/metrics).
func (l *FixedWindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Config returns a copy of the current configuration (for testing).
func (l *FixedWindowLimiter) Config() WindowConfig {
	return l.config
}

func (l *FixedWindowLimiter) sweep() {
	ticker := time.NewTicker(l.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.removeExpired()
		}
	}
}

func (l *FixedWindowLimiter) removeExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.config.Window {
			delete(l.windows, key)
		}
	}
}
