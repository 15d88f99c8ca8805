// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package ratelimit

// Evict exposes the janitor sweep to tests.
func (l *Limiter) Evict() int { return l.evict() }

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
