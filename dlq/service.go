package dlq

import (
	"context"
	"log/slog"
	"time"

	"github.com/Mister-Storm/slipnotify/delivery"
	"github.com/Mister-Storm/slipnotify/id"
	"github.com/Mister-Storm/slipnotify/internal/entity"
)

// Service manages the dead letter queue.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new DLQ service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Escalate creates a pending entry from a delivery attempt that exhausted
// its ceiling.
func (svc *Service) Escalate(ctx context.Context, att *delivery.Attempt) (*Entry, error) {
	entry := &Entry{
		Entity:         entity.New(),
		ID:             id.NewDLQID(),
		EntityType:     EntityTypeWebhookDelivery,
		EntityID:       att.ID,
		SubscriberID:   att.SubscriberID,
		EventType:      att.EventType,
		Payload:        att.Payload,
		Error:          att.LastError,
		AttemptCount:   att.AttemptNumber,
		LastStatusCode: att.LastStatusCode,
		Status:         StatusPending,
		FailedAt:       time.Now().UTC(),
	}

	if err := svc.store.PushDLQ(ctx, entry); err != nil {
		return nil, err
	}

	svc.logger.WarnContext(ctx, "delivery escalated to dead letter queue",
		slog.String("dlq_id", entry.ID.String()),
		slog.String("attempt_id", att.ID.String()),
		slog.String("subscriber_id", att.SubscriberID.String()),
		slog.Int("attempts", att.AttemptNumber),
		slog.String("error", att.LastError))

	return entry, nil
}

// Add parks an arbitrary failed piece of work in the queue.
func (svc *Service) Add(ctx context.Context, entityType string, entityID id.ID, payload []byte, errMsg string) (*Entry, error) {
	entry := &Entry{
		Entity:     entity.New(),
		ID:         id.NewDLQID(),
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
		Error:      errMsg,
		Status:     StatusPending,
		FailedAt:   time.Now().UTC(),
	}

	if err := svc.store.PushDLQ(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Get returns an entry by ID.
func (svc *Service) Get(ctx context.Context, dlqID id.ID) (*Entry, error) {
	return svc.store.GetDLQ(ctx, dlqID)
}

// FindPending returns unresolved entries, newest first.
func (svc *Service) FindPending(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	pending := StatusPending
	opts.Status = &pending
	return svc.store.ListDLQ(ctx, opts)
}

// FindByEntityType returns entries of one entity type, newest first.
func (svc *Service) FindByEntityType(ctx context.Context, entityType string, opts ListOpts) ([]*Entry, error) {
	opts.EntityType = entityType
	return svc.store.ListDLQ(ctx, opts)
}

// MarkResolved records that an operator has dealt with an entry. Resolving
// an already resolved entry is a no-op and keeps the original resolution.
func (svc *Service) MarkResolved(ctx context.Context, dlqID id.ID, resolvedBy string) (*Entry, error) {
	entry, err := svc.store.GetDLQ(ctx, dlqID)
	if err != nil {
		return nil, err
	}

	if entry.Status == StatusResolved {
		return entry, nil
	}

	now := time.Now().UTC()
	entry.Status = StatusResolved
	entry.ResolvedAt = &now
	entry.ResolvedBy = resolvedBy

	if err := svc.store.UpdateDLQ(ctx, entry); err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "dead letter entry resolved",
		slog.String("dlq_id", entry.ID.String()),
		slog.String("resolved_by", resolvedBy))

	return entry, nil
}

// Statistics summarizes the queue.
func (svc *Service) Statistics(ctx context.Context) (Stats, error) {
	return svc.store.DLQStats(ctx)
}

// PurgeResolved removes resolved entries that failed before the cutoff.
func (svc *Service) PurgeResolved(ctx context.Context, before time.Time) (int64, error) {
	n, err := svc.store.PurgeResolvedDLQ(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		svc.logger.InfoContext(ctx, "purged resolved dead letter entries",
			slog.Int64("count", n),
			slog.Time("before", before))
	}
	return n, nil
}
