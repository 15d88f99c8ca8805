// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package ratelimit throttles authentication attempts per client key.
package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimitedError is returned when a key has used up its attempts.
type LimitedError struct {
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %s", e.RetryAfter)
}

// Seconds returns RetryAfter rounded up to whole seconds, at least one.
func (e *LimitedError) Seconds() int {
	return max(1, int(math.Ceil(e.RetryAfter.Round(time.Millisecond).Seconds())))
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter grants each key a burst of attempts that refills evenly over the
// decay window.
type Limiter struct {
	now      func() time.Time
	entries  map[string]*entry
	done     chan struct{}
	mu       sync.RWMutex
	every    rate.Limit
	decay    time.Duration
	attempts int
	once     sync.Once
}

type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter allowing attempts per decay and starts its janitor.
// Call Close to stop it.
func New(attempts int, decay time.Duration, opts ...Option) *Limiter {
	if attempts <= 0 {
		attempts = 5
	}
	if decay <= 0 {
		decay = 15 * time.Minute
	}
	l := &Limiter{
		now:      time.Now,
		entries:  make(map[string]*entry),
		done:     make(chan struct{}),
		every:    rate.Every(decay / time.Duration(attempts)),
		decay:    decay,
		attempts: attempts,
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.janitor()
	return l
}

// Hit records an attempt for key. It returns *LimitedError when the key is
// exhausted; the refused attempt is not charged.
func (l *Limiter) Hit(key string) error {
	now := l.now()
	e := l.get(key, now)

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return &LimitedError{RetryAfter: l.decay}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return &LimitedError{RetryAfter: delay}
	}
	return nil
}

// Reset forgets key, e.g. after a successful login.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

// Close stops the janitor.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *Limiter) get(key string, now time.Time) *entry {
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()
	if ok {
		l.mu.Lock()
		e.lastSeen = now
		l.mu.Unlock()
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.entries[key]; ok {
		e.lastSeen = now
		return e
	}
	e = &entry{limiter: rate.NewLimiter(l.every, l.attempts), lastSeen: now}
	l.entries[key] = e
	return e
}

func (l *Limiter) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.evict()
		}
	}
}

// evict drops keys idle for a whole decay window; their buckets are full again.
func (l *Limiter) evict() int {
	cutoff := l.now().Add(-l.decay)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
			n++
		}
	}
	return n
}

// Key joins the parts of a limiter key.
func Key(scope string, parts ...string) string {
	key := scope
	for _, p := range parts {
		key += "|" + p
	}
	return key
}
