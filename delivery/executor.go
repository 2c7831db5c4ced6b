// Package delivery implements the webhook delivery executor and its ledger.
//
// A delivery is attempted immediately when an event fans out, with a small
// number of in-call retries under linear backoff. Records that are still
// pending afterwards are picked up by the retry sweep, which grants one more
// attempt per pass until the total attempt ceiling is reached.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/Mister-Storm/slipnotify/id"
	"github.com/Mister-Storm/slipnotify/internal/entity"
	"github.com/Mister-Storm/slipnotify/observability"
	"github.com/Mister-Storm/slipnotify/signature"
	"github.com/Mister-Storm/slipnotify/slip"
	"github.com/Mister-Storm/slipnotify/subscriber"
)

const maxResponseBody = 1024 // 1KB cap on response body storage

// ErrBreakerOpen is returned when a subscriber's circuit breaker rejects the
// call without touching the network.
var ErrBreakerOpen = errors.New("slipnotify: circuit breaker open")

// Result holds the outcome of a single HTTP attempt.
type Result struct {
	StatusCode int
	Response   string
	Error      string
}

// OK reports whether the subscriber acknowledged the delivery.
func (r Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Config holds executor configuration.
type Config struct {
	// Timeout bounds each individual HTTP attempt.
	Timeout time.Duration

	// MaxRetries is the default number of in-call attempts for subscribers
	// that do not set their own.
	MaxRetries int

	// RetryDelay is the default base backoff between in-call attempts.
	// Attempt n+1 waits n*RetryDelay.
	RetryDelay time.Duration

	// MaxAttempts is the total attempt ceiling across executor and sweep
	// before escalation to the DLQ.
	MaxAttempts int

	Breaker BreakerConfig

	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Executor performs webhook deliveries and records them in the ledger.
type Executor struct {
	store    Store
	client   *http.Client
	breakers *Breakers
	config   Config
	logger   *slog.Logger
}

// NewExecutor creates a delivery executor.
func NewExecutor(store Store, cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	return &Executor{
		store:    store,
		client:   &http.Client{Timeout: cfg.Timeout},
		breakers: NewBreakers(cfg.Breaker),
		config:   cfg,
		logger:   logger,
	}
}

// Breakers exposes the per-subscriber breaker registry.
func (e *Executor) Breakers() *Breakers { return e.breakers }

// Deliver sends a payload to a subscriber, retrying in-call under linear
// backoff. The ledger row is created before the first attempt so a crash
// mid-delivery still leaves a pending record for the sweep. The returned
// Attempt reflects the final in-call state; a non-nil error means the ledger
// itself failed, not the subscriber endpoint.
func (e *Executor) Deliver(ctx context.Context, sub *subscriber.Subscriber, slipID id.ID, et slip.EventType, payload []byte) (*Attempt, error) {
	att := &Attempt{
		Entity:       entity.New(),
		ID:           id.NewAttemptID(),
		SubscriberID: sub.ID,
		SlipID:       slipID,
		EventType:    et,
		Payload:      payload,
		URL:          sub.URL,
		State:        StatePending,
		MaxAttempts:  e.config.MaxAttempts,
	}

	if err := e.store.CreateAttempt(ctx, att); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	var span trace.Span
	if e.config.Tracer != nil {
		ctx, span = e.config.Tracer.StartDeliverySpan(ctx, att.ID.String(), sub.ID.String(), string(et))
	}

	maxRetries := sub.MaxRetries
	if maxRetries <= 0 {
		maxRetries = e.config.MaxRetries
	}
	retryDelay := time.Duration(sub.RetryDelayMs) * time.Millisecond
	if retryDelay <= 0 {
		retryDelay = e.config.RetryDelay
	}

	for i := 1; i <= maxRetries && att.AttemptNumber < att.MaxAttempts; i++ {
		if i > 1 {
			// Linear backoff: wait (n-1)*delay before attempt n.
			if err := sleep(ctx, time.Duration(i-1)*retryDelay); err != nil {
				break
			}
		}

		delivered, err := e.attempt(ctx, sub, att)
		if delivered {
			break
		}
		if errors.Is(err, ErrBreakerOpen) {
			// The endpoint is known bad. Stop burning in-call attempts
			// and leave the record to the sweep.
			break
		}
	}

	if span != nil {
		e.config.Tracer.EndDeliverySpan(span, att.LastStatusCode, att.AttemptNumber, att.LastError)
	}

	if att.State == StatePending {
		if e.config.Metrics != nil {
			e.config.Metrics.PendingDeliveries.Inc()
		}
		e.logger.WarnContext(ctx, "delivery pending after immediate attempts",
			slog.String("attempt_id", att.ID.String()),
			slog.String("subscriber_id", sub.ID.String()),
			slog.Int("attempts", att.AttemptNumber),
			slog.String("last_error", att.LastError))
	}

	if err := e.store.UpdateAttempt(ctx, att); err != nil {
		return nil, fmt.Errorf("update attempt: %w", err)
	}

	return att, nil
}

// Probe makes a single delivery to verify connectivity. The record is
// returned but never persisted, so the sweep will not retry it.
func (e *Executor) Probe(ctx context.Context, sub *subscriber.Subscriber, et slip.EventType, payload []byte) *Attempt {
	att := &Attempt{
		Entity:       entity.New(),
		ID:           id.NewAttemptID(),
		SubscriberID: sub.ID,
		EventType:    et,
		Payload:      payload,
		URL:          sub.URL,
		State:        StatePending,
		MaxAttempts:  1,
	}
	e.attempt(ctx, sub, att) //nolint:errcheck // outcome is carried on the record
	return att
}

// Redeliver makes exactly one additional attempt for a pending record. Used
// by the retry sweep. Returns whether the subscriber acknowledged.
func (e *Executor) Redeliver(ctx context.Context, sub *subscriber.Subscriber, att *Attempt) (bool, error) {
	var span trace.Span
	if e.config.Tracer != nil {
		ctx, span = e.config.Tracer.StartDeliverySpan(ctx, att.ID.String(), sub.ID.String(), string(att.EventType))
	}

	delivered, _ := e.attempt(ctx, sub, att)

	if span != nil {
		e.config.Tracer.EndDeliverySpan(span, att.LastStatusCode, att.AttemptNumber, att.LastError)
	}

	if err := e.store.UpdateAttempt(ctx, att); err != nil {
		return delivered, fmt.Errorf("update attempt: %w", err)
	}
	return delivered, nil
}

// attempt makes one breaker-guarded HTTP call and advances the record.
func (e *Executor) attempt(ctx context.Context, sub *subscriber.Subscriber, att *Attempt) (bool, error) {
	att.AttemptNumber++

	cb := e.breakers.Get(sub.ID)
	start := time.Now()
	res, err := cb.Execute(func() (Result, error) {
		r := e.send(ctx, sub, att)
		if r.OK() {
			return r, nil
		}
		return r, fmt.Errorf("delivery failed: status=%d error=%q", r.StatusCode, r.Error)
	})
	latency := time.Since(start).Seconds()

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		// A rejected call never reached the network and does not count
		// against the attempt ceiling.
		att.AttemptNumber--
		att.LastError = ErrBreakerOpen.Error()
		if e.config.Metrics != nil {
			e.config.Metrics.BreakerOpenTotal.WithLabelValues(sub.ID.String()).Inc()
			e.config.Metrics.RecordDelivery("rejected", latency)
		}
		e.logger.WarnContext(ctx, "delivery rejected by open breaker",
			slog.String("attempt_id", att.ID.String()),
			slog.String("subscriber_id", sub.ID.String()))
		return false, ErrBreakerOpen
	}

	att.LastStatusCode = res.StatusCode
	att.LastError = res.Error
	att.LastResponse = res.Response

	if res.OK() {
		now := time.Now().UTC()
		att.State = StateDelivered
		att.DeliveredAt = &now
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("delivered", latency)
		}
		e.logger.InfoContext(ctx, "delivered",
			slog.String("attempt_id", att.ID.String()),
			slog.String("subscriber_id", sub.ID.String()),
			slog.Int("attempt", att.AttemptNumber),
			slog.Int("status", res.StatusCode))
		return true, nil
	}

	if e.config.Metrics != nil {
		e.config.Metrics.RecordDelivery("failed", latency)
	}
	e.logger.DebugContext(ctx, "delivery attempt failed",
		slog.String("attempt_id", att.ID.String()),
		slog.String("subscriber_id", sub.ID.String()),
		slog.Int("attempt", att.AttemptNumber),
		slog.Int("status", res.StatusCode),
		slog.String("error", res.Error))
	return false, err
}

// send performs the HTTP POST for one attempt.
func (e *Executor) send(ctx context.Context, sub *subscriber.Subscriber, att *Attempt) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, att.URL, bytes.NewReader(att.Payload))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "SlipNotify/1.0")
	req.Header.Set("X-Webhook-Signature", signature.Sign(att.Payload, sub.Secret))
	req.Header.Set("X-Webhook-Event", string(att.EventType))
	req.Header.Set("X-Webhook-Attempt", strconv.Itoa(att.AttemptNumber))

	resp, err := e.client.Do(req) //nolint:gosec // URL is a registered webhook destination.
	if err != nil {
		return Result{Error: err.Error()}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if readErr != nil {
		return Result{
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("read response: %v", readErr),
		}
	}

	return Result{
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
	}
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
