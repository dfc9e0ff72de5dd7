package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestThrottle(cfg ThrottleConfig) (*CredentialThrottle, *fakeClock) {
	th := NewCredentialThrottle(cfg)
	clock := newFakeClock()
	th.now = clock.Now
	return th, clock
}

func TestCredentialThrottle(t *testing.T) {
	t.Run("fresh identity is not blocked", func(t *testing.T) {
		th, _ := newTestThrottle(DefaultThrottleConfig())
		defer th.Stop()

		blocked, retryAfter := th.Status("a@b.com")
		assert.False(t, blocked)
		assert.Zero(t, retryAfter)
	})

	t.Run("five consecutive failures block the identity", func(t *testing.T) {
		th, _ := newTestThrottle(DefaultThrottleConfig())
		defer th.Stop()

		for i := 0; i < 4; i++ {
			th.RecordFailure("a@b.com")
			blocked, _ := th.Status("a@b.com")
			require.False(t, blocked, "should not block after %d failures", i+1)
		}
		th.RecordFailure("a@b.com")

		blocked, retryAfter := th.Status("a@b.com")
		assert.True(t, blocked)
		assert.Greater(t, retryAfter, time.Duration(0))
	})

	t.Run("reset unblocks immediately", func(t *testing.T) {
		th, _ := newTestThrottle(DefaultThrottleConfig())
		defer th.Stop()

		for i := 0; i < 5; i++ {
			th.RecordFailure("a@b.com")
		}
		blocked, _ := th.Status("a@b.com")
		require.True(t, blocked)

		th.Reset("a@b.com")

		blocked, _ = th.Status("a@b.com")
		assert.False(t, blocked)
	})

	t.Run("window expiry unblocks", func(t *testing.T) {
		th, clock := newTestThrottle(ThrottleConfig{Window: 10 * time.Minute, MaxFailures: 5})
		defer th.Stop()

		for i := 0; i < 5; i++ {
			th.RecordFailure("a@b.com")
		}
		blocked, _ := th.Status("a@b.com")
		require.True(t, blocked)

		clock.Advance(10 * time.Minute)

		blocked, _ = th.Status("a@b.com")
		assert.False(t, blocked)
		// record was deleted on read, so a new failure starts a fresh streak
		th.RecordFailure("a@b.com")
		blocked, _ = th.Status("a@b.com")
		assert.False(t, blocked)
	})

	t.Run("identity is normalized", func(t *testing.T) {
		th, _ := newTestThrottle(DefaultThrottleConfig())
		defer th.Stop()

		for i := 0; i < 5; i++ {
			th.RecordFailure("  A@B.Com ")
		}
		blocked, _ := th.Status("a@b.com")
		assert.True(t, blocked)
	})

	t.Run("identities are independent", func(t *testing.T) {
		th, _ := newTestThrottle(DefaultThrottleConfig())
		defer th.Stop()

		for i := 0; i < 5; i++ {
			th.RecordFailure("a@b.com")
		}
		blocked, _ := th.Status("other@b.com")
		assert.False(t, blocked)
	})

	t.Run("failure after expired window starts a fresh streak", func(t *testing.T) {
		th, clock := newTestThrottle(ThrottleConfig{Window: 10 * time.Minute, MaxFailures: 5})
		defer th.Stop()

		for i := 0; i < 4; i++ {
			th.RecordFailure("a@b.com")
		}
		clock.Advance(11 * time.Minute)
		th.RecordFailure("a@b.com")

		blocked, _ := th.Status("a@b.com")
		assert.False(t, blocked)
		assert.Equal(t, 1, th.Len())
	})

	t.Run("sweep removes expired records", func(t *testing.T) {
		th, clock := newTestThrottle(ThrottleConfig{Window: time.Minute, MaxFailures: 5})
		defer th.Stop()

		for i := 0; i < 10; i++ {
			th.RecordFailure(fmt.Sprintf("user-%d@b.com", i))
		}
		require.Equal(t, 10, th.Len())

		clock.Advance(2 * time.Minute)
		th.removeExpired()

		assert.Equal(t, 0, th.Len())
	})
}
