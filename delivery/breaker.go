package delivery

import (
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/Mister-Storm/slipnotify/id"
)

// BreakerConfig tunes the per-subscriber circuit breakers.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the breaker.
	FailureThreshold uint32

	// OpenFor is how long an open breaker rejects calls before probing again.
	OpenFor time.Duration
}

// Breakers maintains one circuit breaker per subscriber. A subscriber whose
// endpoint keeps failing trips its own breaker without affecting deliveries
// to anyone else.
type Breakers struct {
	mu       sync.Mutex
	breakers map[id.ID]*gobreaker.CircuitBreaker[Result]
	config   BreakerConfig
}

// NewBreakers creates the breaker registry.
func NewBreakers(cfg BreakerConfig) *Breakers {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenFor == 0 {
		cfg.OpenFor = 30 * time.Second
	}
	return &Breakers{
		breakers: make(map[id.ID]*gobreaker.CircuitBreaker[Result]),
		config:   cfg,
	}
}

// Get returns the breaker for a subscriber, creating it on first use.
func (b *Breakers) Get(subID id.ID) *gobreaker.CircuitBreaker[Result] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[subID]; ok {
		return cb
	}

	threshold := b.config.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:    subID.String(),
		Timeout: b.config.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
	b.breakers[subID] = cb
	return cb
}

// Remove drops a subscriber's breaker, releasing its state. Called when a
// subscriber is deactivated.
func (b *Breakers) Remove(subID id.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.breakers, subID)
}
