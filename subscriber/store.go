package subscriber

import (
	"context"

	"github.com/Mister-Storm/slipnotify/id"
	"github.com/Mister-Storm/slipnotify/slip"
)

// Store defines the persistence contract for webhook subscribers.
type Store interface {
	// CreateSubscriber persists a new subscriber.
	CreateSubscriber(ctx context.Context, sub *Subscriber) error

	// GetSubscriber returns a subscriber by ID.
	GetSubscriber(ctx context.Context, subID id.ID) (*Subscriber, error)

	// UpdateSubscriber modifies an existing subscriber.
	UpdateSubscriber(ctx context.Context, sub *Subscriber) error

	// ListSubscribers returns subscribers, optionally filtered.
	ListSubscribers(ctx context.Context, opts ListOpts) ([]*Subscriber, error)

	// ListActiveByEvent finds all active subscribers registered for an event
	// type. This is the hot path, called on every slip event fan-out.
	ListActiveByEvent(ctx context.Context, et slip.EventType) ([]*Subscriber, error)

	// DeactivateSubscriber soft-deletes a subscriber without touching its
	// delivery history.
	DeactivateSubscriber(ctx context.Context, subID id.ID) error
}
