package core

// limiter.go caps the number of parses running at once.
//
// Each parse holds one slot of a buffered channel for its duration. When
// every slot is taken, callers wait up to maxWait and then fail with
// ErrTooManyParses. WaitForDrain lets shutdown wait for in-flight parses.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyParses is returned when no parse slot frees up in time.
var ErrTooManyParses = errors.New("too many concurrent parses, please try again later")

const (
	DefaultMaxConcurrentParses = 5
	DefaultMaxWaitTime         = 30 * time.Second
)

// ParseLimiter is a counting semaphore for parse requests.
type ParseLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewParseLimiter allows at most maxConcurrent parses. Non-positive values
// fall back to the defaults.
func NewParseLimiter(maxConcurrent int, maxWait time.Duration) *ParseLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentParses
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &ParseLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting at most the configured time.
// Callers must Release after a nil return.
func (l *ParseLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyParses
	}
}

// TryAcquire takes a slot if one is free.
func (l *ParseLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *ParseLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// ActiveCount returns the number of parses holding a slot.
func (l *ParseLimiter) ActiveCount() int { return int(l.active.Load()) }

// MaxConcurrent returns the slot count.
func (l *ParseLimiter) MaxConcurrent() int { return cap(l.slots) }

// Available returns the number of free slots.
func (l *ParseLimiter) Available() int { return cap(l.slots) - len(l.slots) }

// WaitForDrain blocks until no parse holds a slot or ctx is done.
func (l *ParseLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for l.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// LimiterStatus is a point-in-time view of a ParseLimiter.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *ParseLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
	}
}
