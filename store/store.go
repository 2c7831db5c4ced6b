// Package store defines the composite Store interface for all slipnotify
// persistence.
//
// Each subsystem defines its own store interface and the aggregate Store
// composes them all, so backends implement one type and callers depend only
// on the slice they use.
package store

import (
	"context"

	"github.com/Mister-Storm/slipnotify/delivery"
	"github.com/Mister-Storm/slipnotify/dlq"
	"github.com/Mister-Storm/slipnotify/idempotency"
	"github.com/Mister-Storm/slipnotify/subscriber"
)

// Store is the aggregate persistence interface.
type Store interface {
	subscriber.Store
	delivery.Store
	dlq.Store
	idempotency.Store

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
