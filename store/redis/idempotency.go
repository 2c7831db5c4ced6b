package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Mister-Storm/slipnotify/idempotency"
	"github.com/Mister-Storm/slipnotify/internal/entity"
)

// idemModel is the JSON representation stored in Redis. The record TTL is
// carried by the Redis key itself.
type idemModel struct {
	Key         string    `json:"key"`
	Endpoint    string    `json:"endpoint"`
	Fingerprint string    `json:"fingerprint"`
	StatusCode  int       `json:"status_code"`
	Body        []byte    `json:"body"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// PutIdempotency stores a cached response with SET NX, so the first writer
// wins and Redis expires the key at the record TTL.
func (s *Store) PutIdempotency(ctx context.Context, rec *idempotency.Record) error {
	m := &idemModel{
		Key:         rec.Key,
		Endpoint:    rec.Endpoint,
		Fingerprint: rec.Fingerprint,
		StatusCode:  rec.StatusCode,
		Body:        rec.Body,
		ExpiresAt:   rec.ExpiresAt,
		CreatedAt:   rec.CreatedAt,
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("slipnotify/redis: marshal idempotency record: %w", err)
	}

	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	ok, err := s.rdb.SetNX(ctx, entityKey(prefixIdem, rec.Key), raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("slipnotify/redis: put idempotency: %w", err)
	}
	if !ok {
		return idempotency.ErrDuplicateKey
	}
	return nil
}

// GetIdempotency returns the live record for a key.
func (s *Store) GetIdempotency(ctx context.Context, key string) (*idempotency.Record, error) {
	var m idemModel
	if err := s.getEntity(ctx, entityKey(prefixIdem, key), &m); err != nil {
		if isRedisNil(err) {
			return nil, idempotency.ErrNotFound
		}
		return nil, fmt.Errorf("slipnotify/redis: get idempotency: %w", err)
	}
	return &idempotency.Record{
		Entity:      entity.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.CreatedAt},
		Key:         m.Key,
		Endpoint:    m.Endpoint,
		Fingerprint: m.Fingerprint,
		StatusCode:  m.StatusCode,
		Body:        m.Body,
		ExpiresAt:   m.ExpiresAt,
	}, nil
}

// PurgeExpiredIdempotency is a no-op: Redis evicts expired keys itself.
func (s *Store) PurgeExpiredIdempotency(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}
