package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Mister-Storm/slipnotify"
	"github.com/Mister-Storm/slipnotify/delivery"
	"github.com/Mister-Storm/slipnotify/id"
	"github.com/Mister-Storm/slipnotify/internal/entity"
	"github.com/Mister-Storm/slipnotify/slip"
)

// attemptModel is the JSON representation stored in Redis.
type attemptModel struct {
	ID             string     `json:"id"`
	SubscriberID   string     `json:"subscriber_id"`
	SlipID         string     `json:"slip_id,omitempty"`
	EventType      string     `json:"event_type"`
	URL            string     `json:"url"`
	Payload        []byte     `json:"payload"`
	State          string     `json:"state"`
	AttemptNumber  int        `json:"attempt_number"`
	MaxAttempts    int        `json:"max_attempts"`
	LastStatusCode int        `json:"last_status_code"`
	LastError      string     `json:"last_error"`
	LastResponse   string     `json:"last_response"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toAttemptModel(att *delivery.Attempt) *attemptModel {
	m := &attemptModel{
		ID:             att.ID.String(),
		SubscriberID:   att.SubscriberID.String(),
		EventType:      string(att.EventType),
		URL:            att.URL,
		Payload:        att.Payload,
		State:          string(att.State),
		AttemptNumber:  att.AttemptNumber,
		MaxAttempts:    att.MaxAttempts,
		LastStatusCode: att.LastStatusCode,
		LastError:      att.LastError,
		LastResponse:   att.LastResponse,
		DeliveredAt:    att.DeliveredAt,
		CreatedAt:      att.CreatedAt,
		UpdatedAt:      att.UpdatedAt,
	}
	if !att.SlipID.IsNil() {
		m.SlipID = att.SlipID.String()
	}
	return m
}

func fromAttemptModel(m *attemptModel) (*delivery.Attempt, error) {
	attID, err := id.ParseAttemptID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse attempt ID %q: %w", m.ID, err)
	}
	subID, err := id.ParseSubscriberID(m.SubscriberID)
	if err != nil {
		return nil, fmt.Errorf("parse subscriber ID %q: %w", m.SubscriberID, err)
	}
	var slipID id.ID
	if m.SlipID != "" {
		slipID, err = id.ParseAny(m.SlipID)
		if err != nil {
			return nil, fmt.Errorf("parse slip ID %q: %w", m.SlipID, err)
		}
	}
	return &delivery.Attempt{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             attID,
		SubscriberID:   subID,
		SlipID:         slipID,
		EventType:      slip.EventType(m.EventType),
		URL:            m.URL,
		Payload:        m.Payload,
		State:          delivery.State(m.State),
		AttemptNumber:  m.AttemptNumber,
		MaxAttempts:    m.MaxAttempts,
		LastStatusCode: m.LastStatusCode,
		LastError:      m.LastError,
		LastResponse:   m.LastResponse,
		DeliveredAt:    m.DeliveredAt,
	}, nil
}

// CreateAttempt persists a new delivery record and indexes it.
func (s *Store) CreateAttempt(ctx context.Context, att *delivery.Attempt) error {
	m := toAttemptModel(att)
	if err := s.setEntity(ctx, entityKey(prefixAttempt, m.ID), m); err != nil {
		return fmt.Errorf("slipnotify/redis: create attempt: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zAttemptAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	pipe.ZAdd(ctx, zAttemptSub+m.SubscriberID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	if m.State == string(delivery.StatePending) {
		pipe.ZAdd(ctx, zAttemptPend, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("slipnotify/redis: create attempt indexes: %w", err)
	}
	return nil
}

// GetAttempt returns a delivery record by ID.
func (s *Store) GetAttempt(ctx context.Context, attID id.ID) (*delivery.Attempt, error) {
	var m attemptModel
	if err := s.getEntity(ctx, entityKey(prefixAttempt, attID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, slipnotify.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("slipnotify/redis: get attempt: %w", err)
	}
	return fromAttemptModel(&m)
}

// UpdateAttempt persists the advanced state of a delivery record and keeps
// the pending index in step.
func (s *Store) UpdateAttempt(ctx context.Context, att *delivery.Attempt) error {
	key := entityKey(prefixAttempt, att.ID.String())
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("slipnotify/redis: update attempt: %w", err)
	}
	if exists == 0 {
		return slipnotify.ErrAttemptNotFound
	}

	att.UpdatedAt = now()
	m := toAttemptModel(att)
	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("slipnotify/redis: update attempt: %w", err)
	}

	if att.State == delivery.StatePending {
		return s.rdb.ZAdd(ctx, zAttemptPend, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID}).Err()
	}
	return s.rdb.ZRem(ctx, zAttemptPend, m.ID).Err()
}

// ListAttempts returns delivery records, newest first.
func (s *Store) ListAttempts(ctx context.Context, opts delivery.ListOpts) ([]*delivery.Attempt, error) {
	indexKey := zAttemptAll
	if opts.SubscriberID != nil {
		indexKey = zAttemptSub + opts.SubscriberID.String()
	}

	ids, err := s.rdb.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("slipnotify/redis: list attempts: %w", err)
	}

	result := make([]*delivery.Attempt, 0, len(ids))
	for _, attID := range ids {
		var m attemptModel
		if err := s.getEntity(ctx, entityKey(prefixAttempt, attID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.State != nil && delivery.State(m.State) != *opts.State {
			continue
		}
		if opts.SlipID != nil && m.SlipID != opts.SlipID.String() {
			continue
		}
		att, err := fromAttemptModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, att)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ListPendingAttempts returns pending records oldest first, up to limit.
func (s *Store) ListPendingAttempts(ctx context.Context, limit int) ([]*delivery.Attempt, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.rdb.ZRange(ctx, zAttemptPend, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("slipnotify/redis: list pending attempts: %w", err)
	}

	result := make([]*delivery.Attempt, 0, len(ids))
	for _, attID := range ids {
		var m attemptModel
		if err := s.getEntity(ctx, entityKey(prefixAttempt, attID), &m); err != nil {
			if isRedisNil(err) {
				// Stale index entry.
				s.rdb.ZRem(ctx, zAttemptPend, attID)
				continue
			}
			return nil, err
		}
		att, err := fromAttemptModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, att)
	}

	return result, nil
}
