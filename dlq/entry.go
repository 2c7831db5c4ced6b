// Package dlq implements the dead letter queue for deliveries that
// exhausted their attempt ceiling.
package dlq

import (
	"time"

	"github.com/Mister-Storm/slipnotify/id"
	"github.com/Mister-Storm/slipnotify/internal/entity"
	"github.com/Mister-Storm/slipnotify/slip"
)

// EntityTypeWebhookDelivery tags entries escalated from the delivery ledger.
// The queue is generic over entity types so other subsystems can park
// poisoned work here too.
const EntityTypeWebhookDelivery = "WEBHOOK_DELIVERY"

// Status is the lifecycle state of a DLQ entry.
type Status string

const (
	// StatusPending means the entry awaits operator attention.
	StatusPending Status = "pending"

	// StatusResolved means an operator has dealt with the entry.
	StatusResolved Status = "resolved"
)

// Entry represents a permanently failed piece of work parked for operators.
type Entry struct {
	entity.Entity

	// ID is the unique TypeID for this DLQ entry.
	ID id.ID `json:"id"`

	// EntityType names the kind of work that failed.
	EntityType string `json:"entity_type"`

	// EntityID references the failed record, e.g. the delivery attempt.
	EntityID id.ID `json:"entity_id"`

	// SubscriberID references the target subscriber, when applicable.
	SubscriberID id.ID `json:"subscriber_id,omitempty"`

	// EventType is the slip event type for filtering.
	EventType slip.EventType `json:"event_type,omitempty"`

	// Payload is the data that failed to process.
	Payload []byte `json:"payload"`

	// Error is the error message from the final attempt.
	Error string `json:"error"`

	// AttemptCount is the total number of attempts made before escalation.
	AttemptCount int `json:"attempt_count"`

	// LastStatusCode is the HTTP status code from the final attempt.
	LastStatusCode int `json:"last_status_code,omitempty"`

	// Status is pending until an operator resolves the entry.
	Status Status `json:"status"`

	// FailedAt is when the work permanently failed.
	FailedAt time.Time `json:"failed_at"`

	// ResolvedAt is set when the entry is marked resolved.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	// ResolvedBy names the operator that resolved the entry.
	ResolvedBy string `json:"resolved_by,omitempty"`
}

// ListOpts configures filtering and pagination for DLQ listing.
type ListOpts struct {
	Offset     int
	Limit      int
	Status     *Status
	EntityType string
	From       *time.Time
	To         *time.Time
}

// Stats summarizes the queue for the operations dashboard.
type Stats struct {
	Total        int64            `json:"total"`
	Pending      int64            `json:"pending"`
	Resolved     int64            `json:"resolved"`
	ByEntityType map[string]int64 `json:"by_entity_type"`
}
