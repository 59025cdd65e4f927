package dispatch

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a delivery does not exist
var ErrNotFound = errors.New("delivery not found")

// ErrNotClaimable is returned when a claim matches no row, either because
// another worker holds it or because the row is in a terminal state
var ErrNotClaimable = errors.New("delivery not claimable")

// ErrNotRetryable is returned when a manual retry reset targets a row that
// is not retrying or abandoned. Delivered rows stay delivered.
var ErrNotRetryable = errors.New("delivery is not in a retryable state")

// Repository provides storage access to delivery rows. Claim methods move
// matched rows to in_progress in the same storage operation so concurrent
// workers never pick up the same delivery twice.
type Repository interface {
	// EnqueuePending creates a fresh pending delivery for the fan-out
	EnqueuePending(ctx context.Context, subscriptionID, eventID, eventType string) error

	FindByID(ctx context.Context, id string) (*Delivery, error)
	Update(ctx context.Context, d *Delivery) error

	// ClaimPending atomically claims up to limit pending rows, oldest first
	ClaimPending(ctx context.Context, limit int) ([]*Delivery, error)

	// ClaimDueRetries atomically claims up to limit retrying rows whose
	// NextRetryAt is at or before now, oldest due first
	ClaimDueRetries(ctx context.Context, now time.Time, limit int) ([]*Delivery, error)

	// ClaimByID claims one specific pending or retrying row; returns
	// ErrNotClaimable when the row is missing, terminal, or already held
	ClaimByID(ctx context.Context, id string) (*Delivery, error)

	// ResetForRetry moves a retrying or abandoned delivery back to pending
	// with a fresh attempt budget, clearing the recorded error and retry
	// schedule. Rows in any other state return ErrNotRetryable.
	ResetForRetry(ctx context.Context, id string) error

	// CountDeliveredSince counts delivered rows for the subscription with
	// DeliveredAt at or after since. Backs the rolling rate windows.
	CountDeliveredSince(ctx context.Context, subscriptionID string, since time.Time) (int64, error)

	// ListBySubscriptionSince returns the subscription's rows created at or
	// after since, for analytics aggregation and retry candidate selection
	ListBySubscriptionSince(ctx context.Context, subscriptionID string, since time.Time) ([]*Delivery, error)

	// DeleteBySubscription removes every row for a subscription
	DeleteBySubscription(ctx context.Context, subscriptionID string) (int64, error)

	// SweepDeadLetters abandons pending/retrying rows created before cutoff
	SweepDeadLetters(ctx context.Context, cutoff time.Time, reason string) (int64, error)

	// PurgeDelivered removes delivered rows older than cutoff
	PurgeDelivered(ctx context.Context, cutoff time.Time) (int64, error)

	// RecoverStale moves in_progress rows not updated since cutoff back to
	// pending so a restarted or healthy instance can pick them up
	RecoverStale(ctx context.Context, cutoff time.Time) (int64, error)
}
