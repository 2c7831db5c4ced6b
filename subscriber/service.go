package subscriber

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/Mister-Storm/slipnotify/id"
	"github.com/Mister-Storm/slipnotify/internal/entity"
	"github.com/Mister-Storm/slipnotify/signature"
	"github.com/Mister-Storm/slipnotify/slip"
)

// Service provides subscriber management operations.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new subscriber service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Create registers a new webhook subscriber.
func (svc *Service) Create(ctx context.Context, in Input) (*Subscriber, error) {
	u, err := url.ParseRequestURI(in.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &ValidationError{Field: "url", Message: "must be a valid http(s) URL"}
	}

	if len(in.Events) == 0 {
		return nil, &ValidationError{Field: "events", Message: "at least one event type required"}
	}
	for _, et := range in.Events {
		if !slip.ValidEventType(et) {
			return nil, &ValidationError{Field: "events", Message: "unknown event type " + string(et)}
		}
	}

	if in.MaxRetries < 0 {
		return nil, &ValidationError{Field: "max_retries", Message: "must not be negative"}
	}
	if in.RetryDelayMs < 0 {
		return nil, &ValidationError{Field: "retry_delay_ms", Message: "must not be negative"}
	}

	secret := in.Secret
	if secret == "" {
		secret = signature.GenerateSecret()
	}

	sub := &Subscriber{
		Entity:       entity.New(),
		ID:           id.NewSubscriberID(),
		ClientID:     in.ClientID,
		URL:          in.URL,
		Description:  in.Description,
		Secret:       secret,
		Events:       in.Events,
		MaxRetries:   in.MaxRetries,
		RetryDelayMs: in.RetryDelayMs,
		Active:       true,
	}

	if err := svc.store.CreateSubscriber(ctx, sub); err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "subscriber registered",
		slog.String("subscriber_id", sub.ID.String()),
		slog.String("url", sub.URL),
		slog.Int("events", len(sub.Events)))

	return sub, nil
}

// Get returns a subscriber by ID.
func (svc *Service) Get(ctx context.Context, subID id.ID) (*Subscriber, error) {
	return svc.store.GetSubscriber(ctx, subID)
}

// List returns subscribers matching the given options.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Subscriber, error) {
	return svc.store.ListSubscribers(ctx, opts)
}

// ListActiveByEvent finds all active subscribers registered for an event type.
func (svc *Service) ListActiveByEvent(ctx context.Context, et slip.EventType) ([]*Subscriber, error) {
	return svc.store.ListActiveByEvent(ctx, et)
}

// Delete deactivates a subscriber. The row and its delivery history are
// retained; only fan-out stops.
func (svc *Service) Delete(ctx context.Context, subID id.ID) error {
	if err := svc.store.DeactivateSubscriber(ctx, subID); err != nil {
		return err
	}
	svc.logger.InfoContext(ctx, "subscriber deactivated",
		slog.String("subscriber_id", subID.String()))
	return nil
}

// RotateSecret generates a new signing secret for a subscriber.
func (svc *Service) RotateSecret(ctx context.Context, subID id.ID) (string, error) {
	sub, err := svc.store.GetSubscriber(ctx, subID)
	if err != nil {
		return "", err
	}

	newSecret := signature.GenerateSecret()

	sub.Secret = newSecret
	if err := svc.store.UpdateSubscriber(ctx, sub); err != nil {
		return "", err
	}

	return newSecret, nil
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "subscriber validation: " + e.Field + ": " + e.Message
}
