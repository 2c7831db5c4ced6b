// Package memory provides an in-memory Store implementation for unit
// testing and single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Mister-Storm/slipnotify"
	"github.com/Mister-Storm/slipnotify/delivery"
	"github.com/Mister-Storm/slipnotify/dlq"
	"github.com/Mister-Storm/slipnotify/id"
	"github.com/Mister-Storm/slipnotify/idempotency"
	"github.com/Mister-Storm/slipnotify/slip"
	snstore "github.com/Mister-Storm/slipnotify/store"
	"github.com/Mister-Storm/slipnotify/subscriber"
)

// compile-time interface check.
var _ snstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	subscribers map[string]*subscriber.Subscriber // keyed by ID string
	attempts    map[string]*delivery.Attempt      // keyed by ID string
	dlqEntries  map[string]*dlq.Entry             // keyed by ID string
	idemRecords map[string]*idempotency.Record    // keyed by idempotency key

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		subscribers: make(map[string]*subscriber.Subscriber),
		attempts:    make(map[string]*delivery.Attempt),
		dlqEntries:  make(map[string]*dlq.Entry),
		idemRecords: make(map[string]*idempotency.Record),
	}
}

// Ping reports whether the store is usable.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return slipnotify.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// subscriber.Store
// ──────────────────────────────────────────────────

// copySubscriber returns a copy of the subscriber. The stored instance is
// never handed out: callers mutate their copy (rotate, deactivate) while
// fan-out goroutines read theirs, so no field access crosses goroutines.
func copySubscriber(sub *subscriber.Subscriber) *subscriber.Subscriber {
	cp := *sub
	cp.Events = append([]slip.EventType(nil), sub.Events...)
	return &cp
}

// CreateSubscriber persists a new subscriber.
func (s *Store) CreateSubscriber(_ context.Context, sub *subscriber.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers[sub.ID.String()] = copySubscriber(sub)
	return nil
}

// GetSubscriber returns a copy of the subscriber by ID.
func (s *Store) GetSubscriber(_ context.Context, subID id.ID) (*subscriber.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscribers[subID.String()]
	if !ok {
		return nil, slipnotify.ErrSubscriberNotFound
	}
	return copySubscriber(sub), nil
}

// UpdateSubscriber modifies an existing subscriber.
func (s *Store) UpdateSubscriber(_ context.Context, sub *subscriber.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscribers[sub.ID.String()]; !ok {
		return slipnotify.ErrSubscriberNotFound
	}
	sub.UpdatedAt = time.Now().UTC()
	s.subscribers[sub.ID.String()] = copySubscriber(sub)
	return nil
}

// ListSubscribers returns subscribers, optionally filtered.
func (s *Store) ListSubscribers(_ context.Context, opts subscriber.ListOpts) ([]*subscriber.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscriber.Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		if opts.Active != nil && sub.Active != *opts.Active {
			continue
		}
		result = append(result, copySubscriber(sub))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ListActiveByEvent finds all active subscribers registered for an event type.
func (s *Store) ListActiveByEvent(_ context.Context, et slip.EventType) ([]*subscriber.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*subscriber.Subscriber
	for _, sub := range s.subscribers {
		if !sub.Active {
			continue
		}
		if sub.Subscribed(et) {
			result = append(result, copySubscriber(sub))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// DeactivateSubscriber soft-deletes a subscriber. Already inactive
// subscribers are left as is.
func (s *Store) DeactivateSubscriber(_ context.Context, subID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscribers[subID.String()]
	if !ok {
		return slipnotify.ErrSubscriberNotFound
	}
	if sub.Active {
		sub.Active = false
		sub.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// copyAttempt returns a shallow copy of the attempt.
func copyAttempt(att *delivery.Attempt) *delivery.Attempt {
	cp := *att
	return &cp
}

// CreateAttempt persists a new delivery record.
func (s *Store) CreateAttempt(_ context.Context, att *delivery.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[att.ID.String()] = copyAttempt(att)
	return nil
}

// GetAttempt returns a copy of the delivery record by ID.
func (s *Store) GetAttempt(_ context.Context, attID id.ID) (*delivery.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	att, ok := s.attempts[attID.String()]
	if !ok {
		return nil, slipnotify.ErrAttemptNotFound
	}
	return copyAttempt(att), nil
}

// UpdateAttempt persists the advanced state of a delivery record.
func (s *Store) UpdateAttempt(_ context.Context, att *delivery.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[att.ID.String()]; !ok {
		return slipnotify.ErrAttemptNotFound
	}
	att.UpdatedAt = time.Now().UTC()
	s.attempts[att.ID.String()] = copyAttempt(att)
	return nil
}

// ListAttempts returns delivery records, optionally filtered.
func (s *Store) ListAttempts(_ context.Context, opts delivery.ListOpts) ([]*delivery.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.Attempt, 0, len(s.attempts))
	for _, att := range s.attempts {
		if opts.State != nil && att.State != *opts.State {
			continue
		}
		if opts.SubscriberID != nil && att.SubscriberID.String() != opts.SubscriberID.String() {
			continue
		}
		if opts.SlipID != nil && att.SlipID.String() != opts.SlipID.String() {
			continue
		}
		result = append(result, copyAttempt(att))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ListPendingAttempts returns records awaiting delivery, oldest first.
func (s *Store) ListPendingAttempts(_ context.Context, limit int) ([]*delivery.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.Attempt, 0, len(s.attempts))
	for _, att := range s.attempts {
		if att.State != delivery.StatePending {
			continue
		}
		result = append(result, copyAttempt(att))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

// copyEntry returns a shallow copy of the dead letter entry.
func copyEntry(e *dlq.Entry) *dlq.Entry {
	cp := *e
	return &cp
}

// PushDLQ persists a new dead letter entry.
func (s *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dlqEntries[entry.ID.String()] = copyEntry(entry)
	return nil
}

// GetDLQ returns a copy of the dead letter entry by ID.
func (s *Store) GetDLQ(_ context.Context, dlqID id.ID) (*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.dlqEntries[dlqID.String()]
	if !ok {
		return nil, slipnotify.ErrDLQNotFound
	}
	return copyEntry(e), nil
}

// UpdateDLQ persists a modified dead letter entry.
func (s *Store) UpdateDLQ(_ context.Context, entry *dlq.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dlqEntries[entry.ID.String()]; !ok {
		return slipnotify.ErrDLQNotFound
	}
	entry.UpdatedAt = time.Now().UTC()
	s.dlqEntries[entry.ID.String()] = copyEntry(entry)
	return nil
}

// ListDLQ returns dead letter entries, newest first.
func (s *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(s.dlqEntries))
	for _, e := range s.dlqEntries {
		if opts.Status != nil && e.Status != *opts.Status {
			continue
		}
		if opts.EntityType != "" && e.EntityType != opts.EntityType {
			continue
		}
		if opts.From != nil && e.FailedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && e.FailedAt.After(*opts.To) {
			continue
		}
		result = append(result, copyEntry(e))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FailedAt.After(result[j].FailedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// PurgeResolvedDLQ removes resolved entries that failed before the cutoff.
func (s *Store) PurgeResolvedDLQ(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for k, e := range s.dlqEntries {
		if e.Status == dlq.StatusResolved && e.FailedAt.Before(before) {
			delete(s.dlqEntries, k)
			count++
		}
	}
	return count, nil
}

// DLQStats summarizes the queue.
func (s *Store) DLQStats(_ context.Context) (dlq.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := dlq.Stats{ByEntityType: make(map[string]int64)}
	for _, e := range s.dlqEntries {
		stats.Total++
		if e.Status == dlq.StatusResolved {
			stats.Resolved++
		} else {
			stats.Pending++
		}
		stats.ByEntityType[e.EntityType]++
	}
	return stats, nil
}

// ──────────────────────────────────────────────────
// idempotency.Store
// ──────────────────────────────────────────────────

// PutIdempotency persists a cached response; the first writer wins.
func (s *Store) PutIdempotency(_ context.Context, rec *idempotency.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.idemRecords[rec.Key]; ok && !existing.Expired(now) {
		return idempotency.ErrDuplicateKey
	}
	s.idemRecords[rec.Key] = rec
	return nil
}

// GetIdempotency returns the live record for a key.
func (s *Store) GetIdempotency(_ context.Context, key string) (*idempotency.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.idemRecords[key]
	if !ok || rec.Expired(time.Now().UTC()) {
		return nil, idempotency.ErrNotFound
	}
	return rec, nil
}

// PurgeExpiredIdempotency removes records past their TTL.
func (s *Store) PurgeExpiredIdempotency(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for k, rec := range s.idemRecords {
		if rec.Expired(now) {
			delete(s.idemRecords, k)
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset >= len(items) && offset > 0 {
		return nil
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
