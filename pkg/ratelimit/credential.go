package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// ThrottleConfig holds credential throttle configuration.
type ThrottleConfig struct {
	// Window is how long a failure streak is remembered.
	Window time.Duration
	// MaxFailures is the number of consecutive failures before lockout.
	MaxFailures int
	// SweepInterval is how often expired records are removed. Defaults to Window.
	SweepInterval time.Duration
}

// DefaultThrottleConfig returns the shipped lockout policy:
// 5 consecutive failures within 10 minutes.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{Window: 10 * time.Minute, MaxFailures: 5}
}

type failureRecord struct {
	failures int
	first    time.Time
}

// CredentialThrottle tracks consecutive authentication failures per account
// identity. It is keyed by identity rather than source IP, so a brute force
// spread across many addresses still locks the targeted account. A successful
// authentication deletes the record outright.
type CredentialThrottle struct {
	mu      sync.Mutex
	records map[string]*failureRecord
	config  ThrottleConfig
	now     func() time.Time
	done    chan struct{}
}

// NewCredentialThrottle creates a throttle and starts its sweep goroutine.
func NewCredentialThrottle(cfg ThrottleConfig) *CredentialThrottle {
	if cfg.Window == 0 {
		cfg.Window = 10 * time.Minute
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = cfg.Window
	}

	t := &CredentialThrottle{
		records: make(map[string]*failureRecord),
		config:  cfg,
		now:     time.Now,
		done:    make(chan struct{}),
	}

	go t.sweep()

	return t
}

// normalizeIdentity lowercases and trims the identity so "A@B.com " and
// "a@b.com" share one failure streak.
func normalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// Status reports whether the identity is currently locked out and, if so,
// how long until the lockout window expires. Expired records count as absent.
func (t *CredentialThrottle) Status(identity string) (blocked bool, retryAfter time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.records[normalizeIdentity(identity)]
	if !exists {
		return false, 0
	}
	elapsed := t.now().Sub(rec.first)
	if elapsed >= t.config.Window {
		delete(t.records, normalizeIdentity(identity))
		return false, 0
	}
	if rec.failures >= t.config.MaxFailures {
		return true, t.config.Window - elapsed
	}
	return false, 0
}

// RecordFailure counts one failed authentication for the identity. A failure
// arriving after the window expired starts a fresh streak.
func (t *CredentialThrottle) RecordFailure(identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := normalizeIdentity(identity)
	now := t.now()
	rec, exists := t.records[key]
	if !exists || now.Sub(rec.first) >= t.config.Window {
		t.records[key] = &failureRecord{failures: 1, first: now}
		return
	}
	rec.failures++
}

// Reset deletes the identity's failure record. Called on successful
// authentication; the lockout lifts immediately, with no decay.
func (t *CredentialThrottle) Reset(identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, normalizeIdentity(identity))
}

// Stop stops the sweep goroutine.
func (t *CredentialThrottle) Stop() {
	close(t.done)
}

// Len returns the current number of tracked identities (for testing/metrics).
func (t *CredentialThrottle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

func (t *CredentialThrottle) sweep() {
	ticker := time.NewTicker(t.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.removeExpired()
		}
	}
}

func (t *CredentialThrottle) removeExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for key, rec := range t.records {
		if now.Sub(rec.first) >= t.config.Window {
			delete(t.records, key)
		}
	}
}
