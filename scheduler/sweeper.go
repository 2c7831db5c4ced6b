// Package scheduler implements the periodic retry sweep over pending
// deliveries.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Mister-Storm/slipnotify/delivery"
	"github.com/Mister-Storm/slipnotify/dlq"
	"github.com/Mister-Storm/slipnotify/observability"
	"github.com/Mister-Storm/slipnotify/subscriber"
)

// ErrSweepRunning is returned when a sweep is requested while another one
// is still in flight.
var ErrSweepRunning = errors.New("slipnotify: retry sweep already running")

// Redeliverer makes one additional delivery attempt for a pending record.
type Redeliverer interface {
	Redeliver(ctx context.Context, sub *subscriber.Subscriber, att *delivery.Attempt) (bool, error)
}

// Escalator parks exhausted deliveries in the dead letter queue.
type Escalator interface {
	Escalate(ctx context.Context, att *delivery.Attempt) (*dlq.Entry, error)
}

// Counters reports what a single sweep did.
type Counters struct {
	Scanned   int `json:"scanned"`
	Recovered int `json:"recovered"`
	Escalated int `json:"escalated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Config holds sweeper configuration.
type Config struct {
	// Interval is the time between sweeps.
	Interval time.Duration

	// BatchSize caps how many pending records one sweep picks up.
	BatchSize int

	Metrics *observability.Metrics
}

// Sweeper periodically re-attempts pending deliveries and escalates the
// exhausted ones. Sweeps are single flight: a tick that fires while the
// previous sweep is still running is dropped.
type Sweeper struct {
	attempts delivery.Store
	subs     subscriber.Store
	exec     Redeliverer
	dlq      Escalator
	config   Config
	logger   *slog.Logger

	running sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSweeper creates a retry sweeper.
func NewSweeper(attempts delivery.Store, subs subscriber.Store, exec Redeliverer, dlqSvc Escalator, cfg Config, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		attempts: attempts,
		subs:     subs,
		exec:     exec,
		dlq:      dlqSvc,
		config:   cfg,
		logger:   logger,
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				counters, err := s.RunOnce(ctx)
				if err != nil && !errors.Is(err, ErrSweepRunning) {
					s.logger.ErrorContext(ctx, "retry sweep failed", "error", err)
					continue
				}
				if counters.Scanned > 0 {
					s.logger.InfoContext(ctx, "retry sweep complete",
						slog.Int("scanned", counters.Scanned),
						slog.Int("recovered", counters.Recovered),
						slog.Int("escalated", counters.Escalated),
						slog.Int("skipped", counters.Skipped),
						slog.Int("failed", counters.Failed))
				}
			}
		}
	}()
}

// Stop cancels the sweep loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop(_ context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// RunOnce performs a single sweep: each pending record gets at most one
// additional attempt, and records at their ceiling move to the DLQ.
// Returns ErrSweepRunning if another sweep holds the lock.
func (s *Sweeper) RunOnce(ctx context.Context) (Counters, error) {
	if !s.running.TryLock() {
		return Counters{}, ErrSweepRunning
	}
	defer s.running.Unlock()

	var counters Counters

	batch, err := s.attempts.ListPendingAttempts(ctx, s.config.BatchSize)
	if err != nil {
		return counters, err
	}

	for _, att := range batch {
		if ctx.Err() != nil {
			break
		}
		counters.Scanned++
		s.sweepOne(ctx, att, &counters)
	}

	if s.config.Metrics != nil {
		s.config.Metrics.RetrySweepsTotal.Inc()
		s.config.Metrics.SweepRecovered.Add(float64(counters.Recovered))
		s.config.Metrics.SweepEscalated.Add(float64(counters.Escalated))
	}

	return counters, nil
}

// sweepOne processes one pending record. A panic in one record must not
// take down the sweep, so recovery is per entry.
func (s *Sweeper) sweepOne(ctx context.Context, att *delivery.Attempt, counters *Counters) {
	defer func() {
		if r := recover(); r != nil {
			counters.Failed++
			s.logger.ErrorContext(ctx, "panic while sweeping delivery",
				slog.String("attempt_id", att.ID.String()),
				slog.Any("panic", r))
		}
	}()

	sub, err := s.subs.GetSubscriber(ctx, att.SubscriberID)
	if err != nil {
		// The record stays pending; an operator can resolve the subscriber
		// or the record will eventually hit its ceiling by other paths.
		counters.Skipped++
		s.logger.WarnContext(ctx, "pending delivery has no subscriber",
			slog.String("attempt_id", att.ID.String()),
			slog.String("subscriber_id", att.SubscriberID.String()),
			slog.String("error", err.Error()))
		return
	}

	if !sub.Active {
		// A deactivated subscriber will never accept the delivery.
		s.escalate(ctx, att, counters)
		return
	}

	if att.Exhausted() {
		s.escalate(ctx, att, counters)
		return
	}

	delivered, err := s.exec.Redeliver(ctx, sub, att)
	if err != nil {
		counters.Failed++
		s.logger.ErrorContext(ctx, "redelivery bookkeeping failed",
			slog.String("attempt_id", att.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	if delivered {
		counters.Recovered++
		if s.config.Metrics != nil {
			s.config.Metrics.PendingDeliveries.Dec()
		}
		return
	}

	if att.Exhausted() {
		s.escalate(ctx, att, counters)
		return
	}

	// Still failing, still under the ceiling. The next sweep tries again.
	counters.Failed++
}

// escalate moves a record to the DLQ. The DLQ push happens first so a
// failure leaves the record pending for the next sweep.
func (s *Sweeper) escalate(ctx context.Context, att *delivery.Attempt, counters *Counters) {
	if _, err := s.dlq.Escalate(ctx, att); err != nil {
		counters.Failed++
		s.logger.ErrorContext(ctx, "dead letter push failed",
			slog.String("attempt_id", att.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	att.State = delivery.StateEscalated
	if err := s.attempts.UpdateAttempt(ctx, att); err != nil {
		counters.Failed++
		s.logger.ErrorContext(ctx, "escalation bookkeeping failed",
			slog.String("attempt_id", att.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	counters.Escalated++
	if s.config.Metrics != nil {
		s.config.Metrics.PendingDeliveries.Dec()
		s.config.Metrics.DLQSize.Inc()
	}
}
