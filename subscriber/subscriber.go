package subscriber

import (
	"github.com/Mister-Storm/slipnotify/id"
	"github.com/Mister-Storm/slipnotify/internal/entity"
	"github.com/Mister-Storm/slipnotify/slip"
)

// Subscriber represents a webhook delivery target registered by an API client.
type Subscriber struct {
	entity.Entity

	// ID is the unique TypeID for this subscriber.
	ID id.ID `json:"id"`

	// ClientID is an opaque reference to the owning API client.
	ClientID string `json:"client_id,omitempty"`

	// URL is the webhook delivery URL.
	URL string `json:"url"`

	// Description is a human-readable description of this subscriber.
	Description string `json:"description,omitempty"`

	// Secret is the HMAC signing secret for this subscriber. Never serialized.
	Secret string `json:"-"`

	// Events are the slip event types this subscriber receives.
	Events []slip.EventType `json:"events"`

	// MaxRetries is the number of in-call delivery attempts. 0 uses the
	// configured default.
	MaxRetries int `json:"max_retries"`

	// RetryDelayMs is the base backoff between in-call attempts, in
	// milliseconds. Attempt n waits n*RetryDelayMs. 0 uses the configured
	// default.
	RetryDelayMs int `json:"retry_delay_ms"`

	// Active indicates whether the subscriber receives deliveries.
	// Deletion is a soft deactivation so the delivery ledger stays intact.
	Active bool `json:"active"`
}

// Subscribed reports whether the subscriber receives the given event type.
func (s *Subscriber) Subscribed(et slip.EventType) bool {
	for _, ev := range s.Events {
		if ev == et {
			return true
		}
	}
	return false
}
