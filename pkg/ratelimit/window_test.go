package ratelimit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestLimiter(cfg WindowConfig) (*FixedWindowLimiter, *fakeClock) {
	l := NewFixedWindow(cfg)
	clock := newFakeClock()
	l.now = clock.Now
	return l, clock
}

func TestFixedWindowDefaults(t *testing.T) {
	t.Run("auth config", func(t *testing.T) {
		cfg := DefaultAuthConfig()
		assert.Equal(t, 15*time.Minute, cfg.Window)
		assert.Equal(t, 10, cfg.Max)
	})

	t.Run("api config allows more traffic than auth config", func(t *testing.T) {
		assert.Greater(t, DefaultAPIConfig().Max, DefaultAuthConfig().Max)
	})

	t.Run("zero values are filled", func(t *testing.T) {
		l := NewFixedWindow(WindowConfig{})
		defer l.Stop()
		assert.Equal(t, 15*time.Minute, l.Config().Window)
		assert.Equal(t, 500, l.Config().Max)
		assert.Equal(t, l.Config().Window, l.Config().SweepInterval)
	})
}

func TestFixedWindowCheck(t *testing.T) {
	t.Run("allows max requests then denies with retry hint", func(t *testing.T) {
		l, _ := newTestLimiter(WindowConfig{Window: 15 * time.Minute, Max: 10})
		defer l.Stop()

		for i := 0; i < 10; i++ {
			d := l.Check("login:10.0.0.1")
			require.True(t, d.Allowed, "request %d should be allowed", i)
			assert.Equal(t, 10-i-1, d.Remaining)
		}

		d := l.Check("login:10.0.0.1")
		assert.False(t, d.Allowed)
		assert.Greater(t, d.RetryAfterSeconds(), 0)
	})

	t.Run("window expiry resets the counter", func(t *testing.T) {
		l, clock := newTestLimiter(WindowConfig{Window: 15 * time.Minute, Max: 3})
		defer l.Stop()

		for i := 0; i < 3; i++ {
			require.True(t, l.Check("k").Allowed)
		}
		require.False(t, l.Check("k").Allowed)

		clock.Advance(15 * time.Minute)

		for i := 0; i < 3; i++ {
			assert.True(t, l.Check("k").Allowed, "request %d after reset", i)
		}
		assert.False(t, l.Check("k").Allowed)
	})

	t.Run("retry hint shrinks as the window ages", func(t *testing.T) {
		l, clock := newTestLimiter(WindowConfig{Window: 10 * time.Minute, Max: 1})
		defer l.Stop()

		require.True(t, l.Check("k").Allowed)
		first := l.Check("k")
		require.False(t, first.Allowed)

		clock.Advance(9 * time.Minute)
		later := l.Check("k")
		require.False(t, later.Allowed)
		assert.Less(t, later.RetryAfter, first.RetryAfter)
		assert.Equal(t, 60, later.RetryAfterSeconds())
	})

	t.Run("keys are independent", func(t *testing.T) {
		l, _ := newTestLimiter(WindowConfig{Window: time.Minute, Max: 1})
		defer l.Stop()

		require.True(t, l.Check("a").Allowed)
		require.False(t, l.Check("a").Allowed)
		assert.True(t, l.Check("b").Allowed)
	})

	t.Run("no lost increments under concurrency", func(t *testing.T) {
		l, _ := newTestLimiter(WindowConfig{Window: time.Minute, Max: 1000})
		defer l.Stop()

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					l.Check("shared")
				}
			}()
		}
		wg.Wait()

		// 500 requests consumed; exactly 500 more fit in the window.
		for i := 0; i < 500; i++ {
			require.True(t, l.Check("shared").Allowed, "request %d", i)
		}
		assert.False(t, l.Check("shared").Allowed)
	})
}

func TestFixedWindowSweep(t *testing.T) {
	l, clock := newTestLimiter(WindowConfig{Window: time.Minute, Max: 5})
	defer l.Stop()

	for i := 0; i < 20; i++ {
		l.Check(fmt.Sprintf("key-%d", i))
	}
	require.Equal(t, 20, l.Len())

	clock.Advance(2 * time.Minute)
	l.removeExpired()

	assert.Equal(t, 0, l.Len())
}

func TestFixedWindowMiddleware(t *testing.T) {
	l, _ := newTestLimiter(WindowConfig{Window: time.Minute, Max: 2})
	defer l.Stop()

	router := gin.New()
	router.GET("/ping", l.Middleware("test"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.1.2.3:12345"
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do().Code)
	assert.Equal(t, http.StatusOK, do().Code)

	w := do()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "retryAfterSeconds")
}
