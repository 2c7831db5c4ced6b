package slipnotify

import (
	"errors"

	"github.com/Mister-Storm/slipnotify/delivery"
	"github.com/Mister-Storm/slipnotify/idempotency"
	"github.com/Mister-Storm/slipnotify/scheduler"
)

// Sentinel errors returned by slipnotify operations.
var (
	// ErrNoStore is returned when a Notifier is created without a store.
	ErrNoStore = errors.New("slipnotify: store is required")

	// ErrSubscriberNotFound is returned when a subscriber cannot be found.
	ErrSubscriberNotFound = errors.New("slipnotify: subscriber not found")

	// ErrAttemptNotFound is returned when a delivery record cannot be found.
	ErrAttemptNotFound = errors.New("slipnotify: delivery attempt not found")

	// ErrDLQNotFound is returned when a dead letter entry cannot be found.
	ErrDLQNotFound = errors.New("slipnotify: dead letter entry not found")

	// ErrUnknownEventType is returned when an event outside the slip
	// taxonomy reaches the notifier.
	ErrUnknownEventType = errors.New("slipnotify: unknown event type")

	// ErrStoreClosed is returned when a store operation is attempted after
	// the store is closed.
	ErrStoreClosed = errors.New("slipnotify: store is closed")

	// ErrNotStarted is returned when events are sent before Start.
	ErrNotStarted = errors.New("slipnotify: notifier not started")
)

// Sentinels owned by subsystem packages, re-exported for callers that only
// import the root.
var (
	// ErrBreakerOpen is returned when a subscriber's circuit breaker
	// rejects a delivery without touching the network.
	ErrBreakerOpen = delivery.ErrBreakerOpen

	// ErrDuplicateIdempotencyKey is returned when a live idempotency record
	// already exists for a key.
	ErrDuplicateIdempotencyKey = idempotency.ErrDuplicateKey

	// ErrIdempotencyNotFound is returned when no live idempotency record
	// exists for a key.
	ErrIdempotencyNotFound = idempotency.ErrNotFound

	// ErrIdempotencyKeyReuse marks a key presented with a different request
	// shape than the one it was first used for.
	ErrIdempotencyKeyReuse = idempotency.ErrKeyReuse

	// ErrSweepRunning is returned when a retry sweep is requested while
	// another one is still in flight.
	ErrSweepRunning = scheduler.ErrSweepRunning
)
