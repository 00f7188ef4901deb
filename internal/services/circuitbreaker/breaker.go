// Package circuitbreaker tracks consecutive provider failures and
// short-circuits routing to providers that keep failing.
package circuitbreaker

import (
	"sync"
	"time"
)

const (
	DefaultThreshold = 3
	DefaultCooldown  = 60 * time.Second
)

// Breaker is a per-provider failure counter. It trips after threshold
// consecutive failures and holds requests off for the cooldown period.
// Once the cooldown elapses the breaker resets and the next request
// probes the provider; that probe's outcome restarts the count.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration

	failures  int
	trippedAt *time.Time
	lastError string

	now func() time.Time
}

func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// IsOpen reports whether requests should be held off. When the
// cooldown has elapsed it also resets the breaker so the caller's next
// attempt goes through as the probe.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.trippedAt == nil {
		return false
	}
	if b.now().Sub(*b.trippedAt) >= b.cooldown {
		b.failures = 0
		b.trippedAt = nil
		return false
	}
	return true
}

// RecordFailure counts one failure and trips the breaker at the
// threshold. The message is kept for status reporting only.
func (b *Breaker) RecordFailure(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastError = message
	if b.failures >= b.threshold && b.trippedAt == nil {
		t := b.now()
		b.trippedAt = &t
	}
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trippedAt = nil
	b.lastError = ""
}

// Snapshot is a point-in-time view for status reporting. Unlike
// IsOpen it never mutates the breaker: a provider whose cooldown has
// elapsed but has not been probed yet shows as half_open.
type Snapshot struct {
	State        string  `json:"state"`
	Failures     int     `json:"consecutive_failures"`
	TrippedAt    *string `json:"tripped_at,omitempty"`
	RetryAfterMS int64   `json:"retry_after_ms,omitempty"`
	LastError    string  `json:"last_error,omitempty"`
}

const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		State:     StateClosed,
		Failures:  b.failures,
		LastError: b.lastError,
	}
	if b.trippedAt == nil {
		return snap
	}

	tripped := b.trippedAt.UTC().Format(time.RFC3339Nano)
	snap.TrippedAt = &tripped

	remaining := b.cooldown - b.now().Sub(*b.trippedAt)
	if remaining > 0 {
		snap.State = StateOpen
		snap.RetryAfterMS = remaining.Milliseconds()
	} else {
		snap.State = StateHalfOpen
	}
	return snap
}
