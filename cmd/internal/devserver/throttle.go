package devserver

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// lockoutTier locks a key for Duration after its latest failure once it
// has Threshold recent failures.
type lockoutTier struct {
	Threshold int
	Duration  time.Duration
}

// defaultLockoutTiers are checked from the most severe down.
var defaultLockoutTiers = []lockoutTier{
	{Threshold: 20, Duration: 2 * time.Hour},
	{Threshold: 10, Duration: 30 * time.Minute},
	{Threshold: 5, Duration: 5 * time.Minute},
}

// RateLimitedError reports a throttled login or code attempt.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many failed attempts, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// throttle counts failed attempts per key in memory. A key is blocked by the
// sliding window (max failures per window) or by a progressive lockout tier.
type throttle struct {
	max    int
	window time.Duration
	tiers  []lockoutTier
	keep   time.Duration

	mu       sync.Mutex
	failures map[string][]time.Time // newest first
}

// newThrottle returns nil when max is zero; a nil throttle allows everything.
func newThrottle(max int, window time.Duration, tiers []lockoutTier) *throttle {
	if max <= 0 {
		return nil
	}
	tiers = append([]lockoutTier(nil), tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Threshold > tiers[j].Threshold })

	keep := window
	for _, t := range tiers {
		if t.Duration > keep {
			keep = t.Duration
		}
	}
	return &throttle{
		max:      max,
		window:   window,
		tiers:    tiers,
		keep:     keep,
		failures: make(map[string][]time.Time),
	}
}

// Check returns a *RateLimitedError while key is blocked.
func (t *throttle) Check(key string, now time.Time) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	failures := t.pruneLocked(key, now)
	t.mu.Unlock()

	if blocked, retry := evaluateProgressiveLockout(now, failures, t.tiers); blocked {
		return &RateLimitedError{RetryAfter: retry}
	}
	if blocked, retry := evaluateWindowThrottle(now, failures, t.max, t.window); blocked {
		return &RateLimitedError{RetryAfter: retry}
	}
	return nil
}

// Fail records a failed attempt for key.
func (t *throttle) Fail(key string, now time.Time) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[key] = append([]time.Time{now}, t.pruneLocked(key, now)...)
}

// Reset forgets key after a successful attempt.
func (t *throttle) Reset(key string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.failures, key)
	t.mu.Unlock()
}

func (t *throttle) pruneLocked(key string, now time.Time) []time.Time {
	list := t.failures[key]
	cut := now.Add(-t.keep)
	n := 0
	for n < len(list) && list[n].After(cut) {
		n++
	}
	if n == 0 {
		delete(t.failures, key)
		return nil
	}
	list = list[:n]
	t.failures[key] = list
	return append([]time.Time(nil), list...)
}

// evaluateWindowThrottle blocks once max failures fall inside window. The
// block lifts when the oldest of them leaves the window.
func evaluateWindowThrottle(now time.Time, failures []time.Time, max int, window time.Duration) (bool, time.Duration) {
	if max <= 0 || window <= 0 {
		return false, 0
	}
	cut := now.Add(-window)
	var (
		count  int
		oldest time.Time
	)
	for _, f := range failures {
		if !f.After(cut) {
			continue
		}
		count++
		if oldest.IsZero() || f.Before(oldest) {
			oldest = f
		}
	}
	if count < max {
		return false, 0
	}
	return true, oldest.Add(window).Sub(now)
}

// evaluateProgressiveLockout applies the first tier (highest threshold first)
// whose threshold the failures reach. The lock runs from the latest failure.
func evaluateProgressiveLockout(now time.Time, failures []time.Time, tiers []lockoutTier) (bool, time.Duration) {
	if len(failures) == 0 {
		return false, 0
	}
	latest := failures[0]
	for _, f := range failures[1:] {
		if f.After(latest) {
			latest = f
		}
	}
	for _, tier := range tiers {
		if tier.Threshold <= 0 || len(failures) < tier.Threshold {
			continue
		}
		until := latest.Add(tier.Duration)
		if until.After(now) {
			return true, until.Sub(now)
		}
		return false, 0
	}
	return false, 0
}
