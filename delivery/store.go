package delivery

import (
	"context"

	"github.com/Mister-Storm/slipnotify/id"
)

// Store defines the persistence contract for the delivery ledger.
type Store interface {
	// CreateAttempt persists a new delivery record.
	CreateAttempt(ctx context.Context, att *Attempt) error

	// GetAttempt returns a delivery record by ID.
	GetAttempt(ctx context.Context, attID id.ID) (*Attempt, error)

	// UpdateAttempt persists the advanced state of a delivery record.
	UpdateAttempt(ctx context.Context, att *Attempt) error

	// ListAttempts returns delivery records, optionally filtered.
	ListAttempts(ctx context.Context, opts ListOpts) ([]*Attempt, error)

	// ListPendingAttempts returns records still awaiting delivery, oldest
	// first, up to limit. The retry sweep feeds on this.
	ListPendingAttempts(ctx context.Context, limit int) ([]*Attempt, error)
}
