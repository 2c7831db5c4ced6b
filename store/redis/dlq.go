package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Mister-Storm/slipnotify"
	"github.com/Mister-Storm/slipnotify/dlq"
	"github.com/Mister-Storm/slipnotify/id"
	"github.com/Mister-Storm/slipnotify/internal/entity"
	"github.com/Mister-Storm/slipnotify/slip"
)

// dlqModel is the JSON representation stored in Redis.
type dlqModel struct {
	ID             string     `json:"id"`
	EntityType     string     `json:"entity_type"`
	EntityID       string     `json:"entity_id"`
	SubscriberID   string     `json:"subscriber_id,omitempty"`
	EventType      string     `json:"event_type,omitempty"`
	Payload        []byte     `json:"payload"`
	Error          string     `json:"error"`
	AttemptCount   int        `json:"attempt_count"`
	LastStatusCode int        `json:"last_status_code"`
	Status         string     `json:"status"`
	FailedAt       time.Time  `json:"failed_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toDLQModel(e *dlq.Entry) *dlqModel {
	m := &dlqModel{
		ID:             e.ID.String(),
		EntityType:     e.EntityType,
		EntityID:       e.EntityID.String(),
		EventType:      string(e.EventType),
		Payload:        e.Payload,
		Error:          e.Error,
		AttemptCount:   e.AttemptCount,
		LastStatusCode: e.LastStatusCode,
		Status:         string(e.Status),
		FailedAt:       e.FailedAt,
		ResolvedAt:     e.ResolvedAt,
		ResolvedBy:     e.ResolvedBy,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
	if !e.SubscriberID.IsNil() {
		m.SubscriberID = e.SubscriberID.String()
	}
	return m
}

func fromDLQModel(m *dlqModel) (*dlq.Entry, error) {
	dlqID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse dlq ID %q: %w", m.ID, err)
	}
	entityID, err := id.ParseAny(m.EntityID)
	if err != nil {
		return nil, fmt.Errorf("parse entity ID %q: %w", m.EntityID, err)
	}
	e := &dlq.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             dlqID,
		EntityType:     m.EntityType,
		EntityID:       entityID,
		EventType:      slip.EventType(m.EventType),
		Payload:        m.Payload,
		Error:          m.Error,
		AttemptCount:   m.AttemptCount,
		LastStatusCode: m.LastStatusCode,
		Status:         dlq.Status(m.Status),
		FailedAt:       m.FailedAt,
		ResolvedAt:     m.ResolvedAt,
		ResolvedBy:     m.ResolvedBy,
	}
	if m.SubscriberID != "" {
		subID, err := id.ParseSubscriberID(m.SubscriberID)
		if err != nil {
			return nil, fmt.Errorf("parse subscriber ID %q: %w", m.SubscriberID, err)
		}
		e.SubscriberID = subID
	}
	return e, nil
}

// PushDLQ persists a new dead letter entry and indexes it by failure time.
func (s *Store) PushDLQ(ctx context.Context, e *dlq.Entry) error {
	m := toDLQModel(e)
	if err := s.setEntity(ctx, entityKey(prefixDLQ, m.ID), m); err != nil {
		return fmt.Errorf("slipnotify/redis: push dlq: %w", err)
	}
	if err := s.rdb.ZAdd(ctx, zDLQAll, goredis.Z{Score: scoreFromTime(m.FailedAt), Member: m.ID}).Err(); err != nil {
		return fmt.Errorf("slipnotify/redis: push dlq index: %w", err)
	}
	return nil
}

// GetDLQ returns a dead letter entry by ID.
func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	var m dlqModel
	if err := s.getEntity(ctx, entityKey(prefixDLQ, dlqID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, slipnotify.ErrDLQNotFound
		}
		return nil, fmt.Errorf("slipnotify/redis: get dlq: %w", err)
	}
	return fromDLQModel(&m)
}

// UpdateDLQ persists a modified dead letter entry.
func (s *Store) UpdateDLQ(ctx context.Context, e *dlq.Entry) error {
	key := entityKey(prefixDLQ, e.ID.String())
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("slipnotify/redis: update dlq: %w", err)
	}
	if exists == 0 {
		return slipnotify.ErrDLQNotFound
	}

	e.UpdatedAt = now()
	if err := s.setEntity(ctx, key, toDLQModel(e)); err != nil {
		return fmt.Errorf("slipnotify/redis: update dlq: %w", err)
	}
	return nil
}

// ListDLQ returns dead letter entries, newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	ids, err := s.rdb.ZRevRange(ctx, zDLQAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("slipnotify/redis: list dlq: %w", err)
	}

	result := make([]*dlq.Entry, 0, len(ids))
	for _, dlqID := range ids {
		var m dlqModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, dlqID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.Status != nil && dlq.Status(m.Status) != *opts.Status {
			continue
		}
		if opts.EntityType != "" && m.EntityType != opts.EntityType {
			continue
		}
		if opts.From != nil && m.FailedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && m.FailedAt.After(*opts.To) {
			continue
		}
		e, err := fromDLQModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// PurgeResolvedDLQ removes resolved entries that failed before the cutoff.
func (s *Store) PurgeResolvedDLQ(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, zDLQAll, &goredis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", scoreFromTime(before)),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("slipnotify/redis: purge dlq scan: %w", err)
	}

	var count int64
	for _, dlqID := range ids {
		var m dlqModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, dlqID), &m); err != nil {
			if isRedisNil(err) {
				s.rdb.ZRem(ctx, zDLQAll, dlqID)
				continue
			}
			return count, err
		}
		if dlq.Status(m.Status) != dlq.StatusResolved {
			continue
		}

		pipe := s.rdb.Pipeline()
		pipe.Del(ctx, entityKey(prefixDLQ, dlqID))
		pipe.ZRem(ctx, zDLQAll, dlqID)
		if _, err := pipe.Exec(ctx); err != nil {
			return count, fmt.Errorf("slipnotify/redis: purge dlq: %w", err)
		}
		count++
	}
	return count, nil
}

// DLQStats summarizes the queue.
func (s *Store) DLQStats(ctx context.Context) (dlq.Stats, error) {
	stats := dlq.Stats{ByEntityType: make(map[string]int64)}

	ids, err := s.rdb.ZRange(ctx, zDLQAll, 0, -1).Result()
	if err != nil {
		return stats, fmt.Errorf("slipnotify/redis: dlq stats: %w", err)
	}

	for _, dlqID := range ids {
		var m dlqModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, dlqID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return stats, err
		}
		stats.Total++
		if dlq.Status(m.Status) == dlq.StatusResolved {
			stats.Resolved++
		} else {
			stats.Pending++
		}
		stats.ByEntityType[m.EntityType]++
	}
	return stats, nil
}
