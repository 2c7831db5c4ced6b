package slipnotify

import "time"

// Config holds the configuration for a Notifier instance.
type Config struct {
	// RequestTimeout is the HTTP timeout per delivery attempt.
	RequestTimeout time.Duration

	// MaxRetries is the default number of in-call attempts per delivery for
	// subscribers that do not set their own.
	MaxRetries int

	// RetryDelay is the default base backoff between in-call attempts.
	// Attempt n+1 waits n*RetryDelay.
	RetryDelay time.Duration

	// MaxAttempts is the total attempt ceiling across the immediate delivery
	// and retry sweeps before escalation to the dead letter queue.
	MaxAttempts int

	// SweepInterval is how often the retry sweep runs.
	SweepInterval time.Duration

	// SweepBatchSize caps how many pending records one sweep picks up.
	SweepBatchSize int

	// BreakerFailureThreshold is the consecutive failure count that opens a
	// subscriber's circuit breaker.
	BreakerFailureThreshold uint32

	// BreakerOpenFor is how long an open breaker rejects deliveries before
	// probing again.
	BreakerOpenFor time.Duration

	// IdempotencyTTL is how long cached API responses are replayed.
	IdempotencyTTL time.Duration

	// RateLimit is the number of inbound API requests allowed per client
	// per RateLimitWindow.
	RateLimit int

	// RateLimitWindow is the rate limit refill period.
	RateLimitWindow time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:          30 * time.Second,
		MaxRetries:              3,
		RetryDelay:              5 * time.Second,
		MaxAttempts:             5,
		SweepInterval:           5 * time.Minute,
		SweepBatchSize:          100,
		BreakerFailureThreshold: 5,
		BreakerOpenFor:          30 * time.Second,
		IdempotencyTTL:          24 * time.Hour,
		RateLimit:               100,
		RateLimitWindow:         time.Minute,
	}
}
