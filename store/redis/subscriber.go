package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Mister-Storm/slipnotify"
	"github.com/Mister-Storm/slipnotify/id"
	"github.com/Mister-Storm/slipnotify/internal/entity"
	"github.com/Mister-Storm/slipnotify/slip"
	"github.com/Mister-Storm/slipnotify/subscriber"
)

// subscriberModel is the JSON representation stored in Redis. Unlike the
// domain type it serializes the secret; these keys never leave the store.
type subscriberModel struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	Secret      string    `json:"secret"`
	Events      []string  `json:"events"`
	MaxRetries  int       `json:"max_retries"`
	RetryDelay  int       `json:"retry_delay_ms"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toSubscriberModel(sub *subscriber.Subscriber) *subscriberModel {
	events := make([]string, len(sub.Events))
	for i, et := range sub.Events {
		events[i] = string(et)
	}
	return &subscriberModel{
		ID:          sub.ID.String(),
		ClientID:    sub.ClientID,
		URL:         sub.URL,
		Description: sub.Description,
		Secret:      sub.Secret,
		Events:      events,
		MaxRetries:  sub.MaxRetries,
		RetryDelay:  sub.RetryDelayMs,
		Active:      sub.Active,
		CreatedAt:   sub.CreatedAt,
		UpdatedAt:   sub.UpdatedAt,
	}
}

func fromSubscriberModel(m *subscriberModel) (*subscriber.Subscriber, error) {
	subID, err := id.ParseSubscriberID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse subscriber ID %q: %w", m.ID, err)
	}
	events := make([]slip.EventType, len(m.Events))
	for i, et := range m.Events {
		events[i] = slip.EventType(et)
	}
	return &subscriber.Subscriber{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           subID,
		ClientID:     m.ClientID,
		URL:          m.URL,
		Description:  m.Description,
		Secret:       m.Secret,
		Events:       events,
		MaxRetries:   m.MaxRetries,
		RetryDelayMs: m.RetryDelay,
		Active:       m.Active,
	}, nil
}

// CreateSubscriber persists a new subscriber and indexes it.
func (s *Store) CreateSubscriber(ctx context.Context, sub *subscriber.Subscriber) error {
	m := toSubscriberModel(sub)
	if err := s.setEntity(ctx, entityKey(prefixSubscriber, m.ID), m); err != nil {
		return fmt.Errorf("slipnotify/redis: create subscriber: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zSubscriberAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	if m.Active {
		for _, et := range m.Events {
			pipe.SAdd(ctx, eventSetKey(et), m.ID)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("slipnotify/redis: create subscriber indexes: %w", err)
	}
	return nil
}

// GetSubscriber returns a subscriber by ID.
func (s *Store) GetSubscriber(ctx context.Context, subID id.ID) (*subscriber.Subscriber, error) {
	var m subscriberModel
	if err := s.getEntity(ctx, entityKey(prefixSubscriber, subID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, slipnotify.ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("slipnotify/redis: get subscriber: %w", err)
	}
	return fromSubscriberModel(&m)
}

// UpdateSubscriber modifies an existing subscriber and rebuilds its event
// set membership.
func (s *Store) UpdateSubscriber(ctx context.Context, sub *subscriber.Subscriber) error {
	key := entityKey(prefixSubscriber, sub.ID.String())
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("slipnotify/redis: update subscriber: %w", err)
	}
	if exists == 0 {
		return slipnotify.ErrSubscriberNotFound
	}

	sub.UpdatedAt = now()
	m := toSubscriberModel(sub)
	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("slipnotify/redis: update subscriber: %w", err)
	}

	pipe := s.rdb.Pipeline()
	for _, et := range slip.AllEventTypes {
		pipe.SRem(ctx, eventSetKey(string(et)), m.ID)
	}
	if m.Active {
		for _, et := range m.Events {
			pipe.SAdd(ctx, eventSetKey(et), m.ID)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("slipnotify/redis: update subscriber indexes: %w", err)
	}
	return nil
}

// ListSubscribers returns subscribers ordered by creation time.
func (s *Store) ListSubscribers(ctx context.Context, opts subscriber.ListOpts) ([]*subscriber.Subscriber, error) {
	ids, err := s.rdb.ZRange(ctx, zSubscriberAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("slipnotify/redis: list subscribers: %w", err)
	}

	result := make([]*subscriber.Subscriber, 0, len(ids))
	for _, subID := range ids {
		var m subscriberModel
		if err := s.getEntity(ctx, entityKey(prefixSubscriber, subID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.Active != nil && m.Active != *opts.Active {
			continue
		}
		sub, err := fromSubscriberModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ListActiveByEvent finds all active subscribers registered for an event type.
func (s *Store) ListActiveByEvent(ctx context.Context, et slip.EventType) ([]*subscriber.Subscriber, error) {
	ids, err := s.rdb.SMembers(ctx, eventSetKey(string(et))).Result()
	if err != nil {
		return nil, fmt.Errorf("slipnotify/redis: resolve subscribers: %w", err)
	}

	result := make([]*subscriber.Subscriber, 0, len(ids))
	for _, subID := range ids {
		var m subscriberModel
		if err := s.getEntity(ctx, entityKey(prefixSubscriber, subID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		// The set is an index, not the source of truth.
		if !m.Active {
			continue
		}
		sub, err := fromSubscriberModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}

	return result, nil
}

// DeactivateSubscriber soft-deletes a subscriber and drops it from the
// per-event indexes.
func (s *Store) DeactivateSubscriber(ctx context.Context, subID id.ID) error {
	sub, err := s.GetSubscriber(ctx, subID)
	if err != nil {
		return err
	}
	if !sub.Active {
		return nil
	}

	sub.Active = false
	return s.UpdateSubscriber(ctx, sub)
}
