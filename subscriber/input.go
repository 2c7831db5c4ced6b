package subscriber

import "github.com/Mister-Storm/slipnotify/slip"

// Input is the creation payload for subscribers.
type Input struct {
	// ClientID is an opaque reference to the owning API client.
	ClientID string `json:"client_id"`

	// URL is the webhook delivery URL.
	URL string `json:"url"`

	// Description is a human-readable description.
	Description string `json:"description"`

	// Secret is the HMAC signing secret. Auto-generated if empty on create.
	Secret string `json:"secret"`

	// Events are the slip event types to subscribe to.
	Events []slip.EventType `json:"events"`

	// MaxRetries is the number of in-call delivery attempts. 0 uses the default.
	MaxRetries int `json:"max_retries"`

	// RetryDelayMs is the base backoff between attempts, in milliseconds.
	// 0 uses the default.
	RetryDelayMs int `json:"retry_delay_ms"`
}

// ListOpts configures filtering and pagination for subscriber listing.
type ListOpts struct {
	Offset int
	Limit  int
	Active *bool
}
