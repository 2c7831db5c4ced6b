package slipnotify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mister-Storm/slipnotify/delivery"
	"github.com/Mister-Storm/slipnotify/dlq"
	"github.com/Mister-Storm/slipnotify/id"
	"github.com/Mister-Storm/slipnotify/scheduler"
	"github.com/Mister-Storm/slipnotify/slip"
	"github.com/Mister-Storm/slipnotify/store"
	"github.com/Mister-Storm/slipnotify/subscriber"
)

// testEventType tags deliveries triggered by TestDelivery. It is outside
// the slip taxonomy on purpose: subscribers must not mistake a connectivity
// probe for a real slip event.
const testEventType = slip.EventType("TEST")

// wireServices initializes the internal services after options have been applied.
func (n *Notifier) wireServices() {
	n.subSvc = subscriber.NewService(n.store, n.logger)

	n.dlqSvc = dlq.NewService(n.store, n.logger)

	n.exec = delivery.NewExecutor(n.store, delivery.Config{
		Timeout:     n.config.RequestTimeout,
		MaxRetries:  n.config.MaxRetries,
		RetryDelay:  n.config.RetryDelay,
		MaxAttempts: n.config.MaxAttempts,
		Breaker: delivery.BreakerConfig{
			FailureThreshold: n.config.BreakerFailureThreshold,
			OpenFor:          n.config.BreakerOpenFor,
		},
		Metrics: n.metrics,
		Tracer:  n.tracer,
	}, n.logger)

	n.sweeper = scheduler.NewSweeper(n.store, n.store, n.exec, n.dlqSvc, scheduler.Config{
		Interval:  n.config.SweepInterval,
		BatchSize: n.config.SweepBatchSize,
		Metrics:   n.metrics,
	}, n.logger)
}

// lifecycle gates event intake and tracks in-flight fan-out goroutines.
type lifecycle struct {
	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// OnSlipEvent fans a slip event out to every active subscriber registered
// for its type. Deliveries run concurrently and are not awaited; failures
// land in the ledger and are picked up by the retry sweep. The returned
// error covers intake only.
func (n *Notifier) OnSlipEvent(ctx context.Context, ev slip.Event) error {
	if !n.lc.started.Load() {
		return ErrNotStarted
	}

	et, ok := slip.WebhookEventType(ev)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnknownEventType, ev)
	}

	payload, err := slip.BuildPayload(ev)
	if err != nil {
		return fmt.Errorf("slipnotify: build payload: %w", err)
	}

	subs, err := n.store.ListActiveByEvent(ctx, et)
	if err != nil {
		return fmt.Errorf("slipnotify: resolve subscribers: %w", err)
	}

	if n.metrics != nil {
		n.metrics.RecordEvent(string(et))
	}

	if len(subs) == 0 {
		return nil
	}

	// Deliveries outlive the caller's request context but stop on Stop.
	dctx := context.WithoutCancel(ctx)
	for _, sub := range subs {
		n.lc.wg.Add(1)
		go func(sub *subscriber.Subscriber) {
			defer n.lc.wg.Done()
			if _, derr := n.exec.Deliver(dctx, sub, ev.SlipID(), et, payload); derr != nil {
				n.logger.ErrorContext(dctx, "delivery bookkeeping failed",
					"subscriber_id", sub.ID, "event_type", et, "error", derr)
			}
		}(sub)
	}

	n.logger.DebugContext(ctx, "slip event fanned out",
		"event_type", et,
		"slip_id", ev.SlipID(),
		"subscribers", len(subs),
	)

	return nil
}

// TestDelivery sends a signed connectivity probe to one subscriber and
// returns the outcome. The probe is a single attempt outside the normal
// fan-out path and is never written to the ledger.
func (n *Notifier) TestDelivery(ctx context.Context, sub *subscriber.Subscriber) *delivery.Attempt {
	payload := []byte(fmt.Sprintf(
		`{"eventType":%q,"subscriberId":%q,"timestamp":%q}`,
		testEventType, sub.ID, time.Now().UTC().Format(time.RFC3339),
	))
	return n.exec.Probe(ctx, sub, testEventType, payload)
}

// Start begins the retry sweep and opens event intake.
func (n *Notifier) Start(ctx context.Context) {
	ctx, n.lc.cancel = context.WithCancel(ctx)
	n.sweeper.Start(ctx)
	n.lc.started.Store(true)
}

// Stop closes event intake, waits for in-flight deliveries to drain and
// shuts down the retry sweep.
func (n *Notifier) Stop(ctx context.Context) {
	n.lc.started.Store(false)
	n.lc.wg.Wait()
	n.sweeper.Stop(ctx)
	if n.lc.cancel != nil {
		n.lc.cancel()
	}
}

// DeleteSubscriber soft-deletes a subscriber and releases its circuit
// breaker state. The row and its delivery history are retained.
func (n *Notifier) DeleteSubscriber(ctx context.Context, subID id.ID) error {
	if err := n.subSvc.Delete(ctx, subID); err != nil {
		return err
	}
	n.exec.Breakers().Remove(subID)
	return nil
}

// Subscribers returns the subscriber management service.
func (n *Notifier) Subscribers() *subscriber.Service {
	return n.subSvc
}

// DLQ returns the dead letter queue service.
func (n *Notifier) DLQ() *dlq.Service {
	return n.dlqSvc
}

// Executor returns the delivery executor.
func (n *Notifier) Executor() *delivery.Executor {
	return n.exec
}

// Sweeper returns the retry sweeper.
func (n *Notifier) Sweeper() *scheduler.Sweeper {
	return n.sweeper
}

// Store returns the underlying store.
func (n *Notifier) Store() store.Store {
	return n.store
}

// Config returns the effective configuration.
func (n *Notifier) Config() Config {
	return n.config
}
