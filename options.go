package slipnotify

import (
	"log/slog"
	"time"

	"github.com/Mister-Storm/slipnotify/delivery"
	"github.com/Mister-Storm/slipnotify/dlq"
	"github.com/Mister-Storm/slipnotify/observability"
	"github.com/Mister-Storm/slipnotify/scheduler"
	"github.com/Mister-Storm/slipnotify/store"
	"github.com/Mister-Storm/slipnotify/subscriber"
)

// Notifier is the root webhook notification engine.
type Notifier struct {
	config  Config
	store   store.Store
	subSvc  *subscriber.Service
	exec    *delivery.Executor
	dlqSvc  *dlq.Service
	sweeper *scheduler.Sweeper
	metrics *observability.Metrics
	tracer  *observability.Tracer
	logger  *slog.Logger
	lc      lifecycle
}

// Option configures a Notifier instance.
type Option func(*Notifier) error

// New creates a new Notifier with the given options.
func New(opts ...Option) (*Notifier, error) {
	n := &Notifier{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}
	if n.store == nil {
		return nil, ErrNoStore
	}
	n.wireServices()
	return n, nil
}

// WithStore sets the persistence backend for the Notifier instance.
func WithStore(s store.Store) Option {
	return func(n *Notifier) error {
		n.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Notifier instance.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) error {
		n.logger = logger
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(n *Notifier) error {
		n.config = cfg
		return nil
	}
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(n *Notifier) error {
		n.metrics = m
		return nil
	}
}

// WithTracer sets the delivery tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(n *Notifier) error {
		n.tracer = t
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(n *Notifier) error {
		n.config.RequestTimeout = d
		return nil
	}
}

// WithMaxRetries sets the default number of in-call attempts per delivery.
func WithMaxRetries(count int) Option {
	return func(n *Notifier) error {
		n.config.MaxRetries = count
		return nil
	}
}

// WithRetryDelay sets the default base backoff between in-call attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(n *Notifier) error {
		n.config.RetryDelay = d
		return nil
	}
}

// WithMaxAttempts sets the total attempt ceiling before DLQ escalation.
func WithMaxAttempts(count int) Option {
	return func(n *Notifier) error {
		n.config.MaxAttempts = count
		return nil
	}
}

// WithSweepInterval sets how often the retry sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(n *Notifier) error {
		n.config.SweepInterval = d
		return nil
	}
}

// WithSweepBatchSize caps how many pending records one sweep picks up.
func WithSweepBatchSize(size int) Option {
	return func(n *Notifier) error {
		n.config.SweepBatchSize = size
		return nil
	}
}

// WithBreaker tunes the per-subscriber circuit breakers.
func WithBreaker(failureThreshold uint32, openFor time.Duration) Option {
	return func(n *Notifier) error {
		n.config.BreakerFailureThreshold = failureThreshold
		n.config.BreakerOpenFor = openFor
		return nil
	}
}

// WithIdempotencyTTL sets how long cached API responses are replayed.
func WithIdempotencyTTL(d time.Duration) Option {
	return func(n *Notifier) error {
		n.config.IdempotencyTTL = d
		return nil
	}
}
