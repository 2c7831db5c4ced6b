package idempotency

import (
	"context"
	"time"
)

// Store defines the persistence contract for the idempotency cache.
type Store interface {
	// PutIdempotency persists a record. Returns the duplicate key error
	// when a live record for the same key already exists; the first
	// writer wins.
	PutIdempotency(ctx context.Context, rec *Record) error

	// GetIdempotency returns the live record for a key. Expired records
	// behave as not found.
	GetIdempotency(ctx context.Context, key string) (*Record, error)

	// PurgeExpiredIdempotency removes records past their TTL and returns
	// how many were removed.
	PurgeExpiredIdempotency(ctx context.Context, now time.Time) (int64, error)
}
