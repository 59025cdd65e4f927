package publisher

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an event does not exist
var ErrNotFound = errors.New("event not found")

// Repository provides storage access to published events
type Repository interface {
	Insert(ctx context.Context, event *Event) error
	FindByID(ctx context.Context, id string) (*Event, error)
}

// DeliverySink accepts newly fanned-out deliveries. Implemented by the
// dispatch repository; declared here to keep the dependency one-way.
// The event type is denormalized onto the delivery row for analytics.
type DeliverySink interface {
	EnqueuePending(ctx context.Context, subscriptionID, eventID, eventType string) error
}
