package dlq

import (
	"context"
	"time"

	"github.com/Mister-Storm/slipnotify/id"
)

// Store defines the persistence contract for the dead letter queue.
type Store interface {
	// PushDLQ persists a new entry.
	PushDLQ(ctx context.Context, entry *Entry) error

	// GetDLQ returns an entry by ID.
	GetDLQ(ctx context.Context, dlqID id.ID) (*Entry, error)

	// UpdateDLQ persists a modified entry.
	UpdateDLQ(ctx context.Context, entry *Entry) error

	// ListDLQ returns entries matching the given options, newest first.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// PurgeResolvedDLQ removes resolved entries that failed before the cutoff
	// and returns how many were removed.
	PurgeResolvedDLQ(ctx context.Context, before time.Time) (int64, error)

	// DLQStats summarizes the queue.
	DLQStats(ctx context.Context) (Stats, error)
}
