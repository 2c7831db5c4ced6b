// Package ratelimit implements per-client token bucket limiting for the
// inbound API.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the number of requests left in the current window.
	Remaining int

	// RetryAfter is how long the client should wait before retrying.
	// Zero when Allowed.
	RetryAfter time.Duration
}

// Config holds limiter configuration.
type Config struct {
	// Limit is the number of requests allowed per Window.
	Limit int

	// Window is the refill period.
	Window time.Duration

	// IdleEviction is how long an unused bucket survives before the
	// janitor drops it. Zero disables eviction.
	IdleEviction time.Duration
}

// Limiter implements token bucket rate limiting per client key. Buckets
// live in a sync.Map and carry their own lock, so one client's refill
// arithmetic never serializes another's.
type Limiter struct {
	buckets sync.Map // string -> *bucket
	config  Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type bucket struct {
	mu       sync.Mutex
	tokens   float64
	lastFill time.Time
	lastSeen time.Time
}

// New creates a rate limiter. Defaults to 100 requests per minute.
func New(cfg Config) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{config: cfg}
}

// Allow consumes one token for the given client key.
func (l *Limiter) Allow(key string) Decision {
	now := time.Now()
	rate := float64(l.config.Limit) / l.config.Window.Seconds()

	v, _ := l.buckets.LoadOrStore(key, &bucket{
		tokens:   float64(l.config.Limit), // start full
		lastFill: now,
	})
	b := v.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSeen = now

	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * rate
	if b.tokens > float64(l.config.Limit) {
		b.tokens = float64(l.config.Limit)
	}
	b.lastFill = now

	if b.tokens >= 1 {
		b.tokens--
		return Decision{
			Allowed:   true,
			Remaining: int(b.tokens),
		}
	}

	// Time until one full token accrues.
	wait := time.Duration((1 - b.tokens) / rate * float64(time.Second))
	return Decision{
		Allowed:    false,
		Remaining:  0,
		RetryAfter: wait,
	}
}

// Reset clears the state for a client key.
func (l *Limiter) Reset(key string) {
	l.buckets.Delete(key)
}

// Start launches the janitor that evicts idle buckets, bounding memory to
// the set of recently seen clients. A no-op when IdleEviction is zero.
func (l *Limiter) Start(ctx context.Context) {
	if l.config.IdleEviction == 0 {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		ticker := time.NewTicker(l.config.IdleEviction)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.evictIdle(time.Now().Add(-l.config.IdleEviction))
			}
		}
	}()
}

// Stop halts the janitor.
func (l *Limiter) Stop(_ context.Context) {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

// evictIdle drops buckets not seen since the cutoff. A request racing the
// eviction of its own bucket simply starts a fresh, full one.
func (l *Limiter) evictIdle(cutoff time.Time) {
	l.buckets.Range(func(key, v any) bool {
		b := v.(*bucket)
		b.mu.Lock()
		idle := b.lastSeen.Before(cutoff)
		b.mu.Unlock()
		if idle {
			l.buckets.Delete(key)
		}
		return true
	})
}

// Len reports how many client buckets are live.
func (l *Limiter) Len() int {
	n := 0
	l.buckets.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
