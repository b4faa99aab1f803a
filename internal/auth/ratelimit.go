// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package auth

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Defaults for the sliding-window limiter's housekeeping.
const (
	// DefaultCleanupInterval is the interval at which the background
	// goroutine evicts stale identifiers.
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultIdentifierMaxIdle is how long an identifier may sit with no
	// new attempts before its window is evicted. It must be at least as
	// long as the longest window policy in use, otherwise live state
	// could be dropped mid-window.
	DefaultIdentifierMaxIdle = time.Hour
)

// Limiter caps repeated attempts per identifier within a trailing time
// window. Identifiers are arbitrary strings (an IP, a username, or a
// composite such as "login:10.0.0.1"); callers probing multiple
// policies combine results with AND semantics.
type Limiter interface {
	// CheckAndRecord reports whether another attempt is allowed for the
	// identifier under the (max, window) policy, recording the attempt
	// if and only if it is allowed. A blocked caller never grows the
	// window further.
	CheckAndRecord(identifier string, max int, window time.Duration) bool
}

// attemptWindow holds the recorded attempt timestamps for one
// identifier, oldest first.
type attemptWindow struct {
	attempts []time.Time
}

// SlidingWindowLimiter implements Limiter with an exact-count sliding
// window. It is safe for concurrent use.
//
// A background goroutine periodically evicts identifiers that have gone
// idle, bounding memory over unbounded key cardinality. Call Close() to
// stop it.
type SlidingWindowLimiter struct {
	mu      sync.Mutex
	windows map[string]*attemptWindow
	maxIdle time.Duration

	// now is replaceable for tests.
	now func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup

	// Gauge of tracked identifiers (nil if no registry provided).
	identifierGauge prometheus.Gauge
}

// LimiterConfig configures a SlidingWindowLimiter. Zero values select
// the defaults.
type LimiterConfig struct {
	// CleanupInterval is the interval at which background eviction runs.
	CleanupInterval time.Duration

	// IdentifierMaxIdle is the idle age after which an identifier's
	// window is evicted.
	IdentifierMaxIdle time.Duration
}

// NewSlidingWindowLimiter creates a limiter and starts its background
// eviction goroutine. Call Close() to stop it.
func NewSlidingWindowLimiter(cfg LimiterConfig) *SlidingWindowLimiter {
	return newSlidingWindowLimiter(cfg, nil)
}

// NewSlidingWindowLimiterWithRegistry additionally registers a gauge of
// tracked identifiers with the provided Prometheus registry.
func NewSlidingWindowLimiterWithRegistry(cfg LimiterConfig, reg prometheus.Registerer) *SlidingWindowLimiter {
	return newSlidingWindowLimiter(cfg, reg)
}

func newSlidingWindowLimiter(cfg LimiterConfig, reg prometheus.Registerer) *SlidingWindowLimiter {
	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	maxIdle := cfg.IdentifierMaxIdle
	if maxIdle <= 0 {
		maxIdle = DefaultIdentifierMaxIdle
	}

	l := &SlidingWindowLimiter{
		windows:  make(map[string]*attemptWindow),
		maxIdle:  maxIdle,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	if reg != nil {
		l.identifierGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "codewatch_ratelimiter_identifiers",
			Help: "Current number of tracked rate limiter identifiers",
		})
		reg.MustRegister(l.identifierGauge)
	}

	l.wg.Add(1)
	go l.cleanupLoop(cleanupInterval)

	return l
}

// CheckAndRecord prunes timestamps older than now-window, then either
// rejects (count already at max) or records now and allows. The
// read-modify-write is atomic under the limiter mutex, so concurrent
// attempts for one identifier cannot under- or over-count.
func (l *SlidingWindowLimiter) CheckAndRecord(identifier string, max int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	w, exists := l.windows[identifier]
	if !exists {
		w = &attemptWindow{}
		l.windows[identifier] = w
	}

	// Prune attempts that fell out of the trailing window. Attempts are
	// appended in order, so the live suffix starts at the first one
	// still inside the window.
	cutoff := now.Add(-window)
	live := w.attempts
	for len(live) > 0 && !live[0].After(cutoff) {
		live = live[1:]
	}
	w.attempts = append(w.attempts[:0], live...)

	if len(w.attempts) >= max {
		return false
	}

	w.attempts = append(w.attempts, now)
	return true
}

// IdentifierCount returns the number of tracked identifiers. Useful for
// tests and monitoring.
func (l *SlidingWindowLimiter) IdentifierCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Cleanup evicts identifiers whose most recent attempt is older than
// maxIdle, and empty windows. Called automatically by the background
// goroutine; exposed for immediate eviction in tests.
func (l *SlidingWindowLimiter) Cleanup(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := l.now().Add(-maxIdle)
	for id, w := range l.windows {
		if len(w.attempts) == 0 || w.attempts[len(w.attempts)-1].Before(threshold) {
			delete(l.windows, id)
		}
	}

	if l.identifierGauge != nil {
		l.identifierGauge.Set(float64(len(l.windows)))
	}
}

// cleanupLoop runs periodic eviction in the background.
func (l *SlidingWindowLimiter) cleanupLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.Cleanup(l.maxIdle)
		}
	}
}

// Close stops the background eviction goroutine. It blocks until the
// goroutine has stopped.
func (l *SlidingWindowLimiter) Close() {
	close(l.stopChan)
	l.wg.Wait()
}

// Compile-time interface check.
var _ Limiter = (*SlidingWindowLimiter)(nil)
