package delivery

import (
	"time"

	"github.com/Mister-Storm/slipnotify/id"
	"github.com/Mister-Storm/slipnotify/internal/entity"
	"github.com/Mister-Storm/slipnotify/slip"
)

// State represents the current state of a delivery attempt record.
type State string

const (
	// StatePending indicates delivery has not succeeded yet and the record
	// is eligible for the retry sweep.
	StatePending State = "pending"

	// StateDelivered indicates the subscriber acknowledged the delivery.
	StateDelivered State = "delivered"

	// StateEscalated indicates the attempt ceiling was reached and the
	// record was handed to the dead letter queue.
	StateEscalated State = "escalated"
)

// Attempt is the ledger record for one event delivered to one subscriber.
// The row is advanced in place as attempts are made; there is exactly one
// row per (event, subscriber) pair.
type Attempt struct {
	entity.Entity

	// ID is the unique TypeID for this delivery record.
	ID id.ID `json:"id"`

	// SubscriberID references the target subscriber.
	SubscriberID id.ID `json:"subscriber_id"`

	// SlipID is the domain aggregate whose event triggered this delivery.
	// Nil for connectivity probes.
	SlipID id.ID `json:"slip_id,omitempty"`

	// EventType is the slip event being delivered.
	EventType slip.EventType `json:"event_type"`

	// URL is the delivery target, copied at dispatch time. Later subscriber
	// edits do not redirect a record already in flight.
	URL string `json:"url"`

	// Payload is the exact JSON body sent to the subscriber. Retries resend
	// these bytes unchanged so the signature stays valid.
	Payload []byte `json:"payload"`

	// State is the current delivery state.
	State State `json:"state"`

	// AttemptNumber counts every HTTP call made for this record, across the
	// immediate delivery and later sweeps.
	AttemptNumber int `json:"attempt_number"`

	// MaxAttempts is the total attempt ceiling before escalation to the DLQ.
	MaxAttempts int `json:"max_attempts"`

	// LastStatusCode is the HTTP status code from the most recent attempt.
	LastStatusCode int `json:"last_status_code,omitempty"`

	// LastError is the error message from the most recent failed attempt.
	LastError string `json:"last_error,omitempty"`

	// LastResponse is the response body from the most recent attempt, capped at 1KB.
	LastResponse string `json:"last_response,omitempty"`

	// DeliveredAt is when the subscriber acknowledged the delivery.
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// Exhausted reports whether the record has reached its attempt ceiling.
func (a *Attempt) Exhausted() bool {
	return a.AttemptNumber >= a.MaxAttempts
}

// ListOpts configures filtering and pagination for attempt listing.
type ListOpts struct {
	Offset       int
	Limit        int
	State        *State
	SubscriberID *id.ID
	SlipID       *id.ID
}
