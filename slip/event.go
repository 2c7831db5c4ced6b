// Package slip models the payment-slip domain events this module consumes.
//
// The slip aggregate itself (status transitions, CNAB files, barcodes, PDF
// rendering) lives outside this module. What crosses the boundary is a closed
// union of state-change events; each one maps to exactly one webhook event
// type that subscribers can register for.
package slip

import (
	"time"

	"github.com/Mister-Storm/slipnotify/id"
)

// EventType is the webhook event tag subscribers register for.
type EventType string

// The closed webhook event taxonomy. These values are part of the external
// contract: they appear in subscriber configuration, in the X-Webhook-Event
// header, and in every payload's eventType field.
const (
	EventSlipCreated            EventType = "SLIP_CREATED"
	EventSlipRegistered         EventType = "SLIP_REGISTERED"
	EventSlipPaid               EventType = "SLIP_PAID"
	EventSlipCancelled          EventType = "SLIP_CANCELLED"
	EventSlipExpired            EventType = "SLIP_EXPIRED"
	EventSlipRegistrationFailed EventType = "SLIP_REGISTRATION_FAILED"
)

// AllEventTypes lists every valid webhook event type.
var AllEventTypes = []EventType{
	EventSlipCreated,
	EventSlipRegistered,
	EventSlipPaid,
	EventSlipCancelled,
	EventSlipExpired,
	EventSlipRegistrationFailed,
}

// ValidEventType reports whether t is a member of the closed taxonomy.
func ValidEventType(t EventType) bool {
	for _, known := range AllEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Event is the interface implemented by every slip domain event.
// The union is closed: only the event types in this package implement it.
type Event interface {
	// SlipID returns the id of the slip aggregate that changed state.
	SlipID() id.ID

	// OccurredAt returns when the state change happened.
	OccurredAt() time.Time

	isSlipEvent()
}

// base carries the fields shared by every slip event.
type base struct {
	ID          id.ID
	AggregateID id.ID
	Occurred    time.Time
}

func (b base) SlipID() id.ID         { return b.AggregateID }
func (b base) OccurredAt() time.Time { return b.Occurred }
func (base) isSlipEvent()            {}

// newBase builds the shared event fields for a slip aggregate.
func newBase(slipID id.ID, occurred time.Time) base {
	return base{
		ID:          id.NewSlipEventID(),
		AggregateID: slipID,
		Occurred:    occurred.UTC(),
	}
}

// Created fires when a slip is issued.
type Created struct {
	base
	BankCode      string
	Amount        string
	DueDate       string
	PayerDocument string
}

// NewCreated builds a Created event.
func NewCreated(slipID id.ID, occurred time.Time, bankCode, amount, dueDate, payerDocument string) Created {
	return Created{
		base:          newBase(slipID, occurred),
		BankCode:      bankCode,
		Amount:        amount,
		DueDate:       dueDate,
		PayerDocument: payerDocument,
	}
}

// Registered fires when a slip is accepted by the bank's registration system.
type Registered struct {
	base
	RegistrationType string
	RegistrationID   string
}

// NewRegistered builds a Registered event.
func NewRegistered(slipID id.ID, occurred time.Time, registrationType, registrationID string) Registered {
	return Registered{
		base:             newBase(slipID, occurred),
		RegistrationType: registrationType,
		RegistrationID:   registrationID,
	}
}

// Paid fires when a payment is settled against a slip.
type Paid struct {
	base
	PaidAmount  string
	PaymentDate string
}

// NewPaid builds a Paid event.
func NewPaid(slipID id.ID, occurred time.Time, paidAmount, paymentDate string) Paid {
	return Paid{
		base:        newBase(slipID, occurred),
		PaidAmount:  paidAmount,
		PaymentDate: paymentDate,
	}
}

// Cancelled fires when a slip is cancelled before payment.
type Cancelled struct {
	base
	Reason string
}

// NewCancelled builds a Cancelled event.
func NewCancelled(slipID id.ID, occurred time.Time, reason string) Cancelled {
	return Cancelled{
		base:   newBase(slipID, occurred),
		Reason: reason,
	}
}

// Expired fires when a slip passes its due date without payment.
type Expired struct {
	base
}

// NewExpired builds an Expired event.
func NewExpired(slipID id.ID, occurred time.Time) Expired {
	return Expired{base: newBase(slipID, occurred)}
}

// RegistrationFailed fires when the bank rejects a slip registration.
type RegistrationFailed struct {
	base
	ErrorMessage string
	ErrorCode    string
}

// NewRegistrationFailed builds a RegistrationFailed event.
func NewRegistrationFailed(slipID id.ID, occurred time.Time, errorMessage, errorCode string) RegistrationFailed {
	return RegistrationFailed{
		base:         newBase(slipID, occurred),
		ErrorMessage: errorMessage,
		ErrorCode:    errorCode,
	}
}

// WebhookEventType maps a domain event to its webhook event tag.
// Returns ok=false for event shapes outside the closed union; callers must
// log and drop such events rather than fan them out with a garbled tag.
func WebhookEventType(ev Event) (EventType, bool) {
	switch ev.(type) {
	case Created:
		return EventSlipCreated, true
	case Registered:
		return EventSlipRegistered, true
	case Paid:
		return EventSlipPaid, true
	case Cancelled:
		return EventSlipCancelled, true
	case Expired:
		return EventSlipExpired, true
	case RegistrationFailed:
		return EventSlipRegistrationFailed, true
	default:
		return "", false
	}
}
