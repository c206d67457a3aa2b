package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	pinned   bool
}

// Limiter implements per-key token-bucket rate limiting.
// Keys are client addresses for the API and provider names for model calls.
type Limiter struct {
	limiters     map[string]*entry
	mu           sync.Mutex
	defaultRate  rate.Limit
	defaultBurst int
	now          func() time.Time
}

// NewLimiter creates a new rate limiter. A non-positive rate disables limiting.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}

	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		limiters:     make(map[string]*entry),
		defaultRate:  limit,
		defaultBurst: burst,
		now:          time.Now,
	}
}

// Wait waits for rate limit clearance for key
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.getLimiter(key).Wait(ctx)
}

// Allow checks if a request is allowed without waiting
func (l *Limiter) Allow(key string) bool {
	return l.getLimiter(key).Allow()
}

// getLimiter returns the rate limiter for a key, creating it on first use
func (l *Limiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.limiters[key]
	if !exists {
		e = &entry{limiter: rate.NewLimiter(l.defaultRate, l.defaultBurst)}
		l.limiters[key] = e
	}
	e.lastSeen = l.now()

	return e.limiter
}

// SetKeyRate sets a custom rate limit for a specific key. Custom limits are
// never evicted by Sweep.
func (l *Limiter) SetKeyRate(key string, requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if burst <= 0 {
		burst = l.defaultBurst
	}

	l.limiters[key] = &entry{
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		lastSeen: l.now(),
		pinned:   true,
	}
}

// Sweep drops limiters unused for longer than idle and returns how many were dropped
func (l *Limiter) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	dropped := 0
	for key, e := range l.limiters {
		if !e.pinned && e.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of tracked keys
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// RunSweeper calls Sweep every interval until ctx is done
func (l *Limiter) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(idle)
		}
	}
}
