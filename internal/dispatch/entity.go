// Package dispatch owns delivery rows and the worker pool that drives them
// to their target URLs with retries, backoff, and dead-lettering.
package dispatch

import (
	"time"
)

// Status is the delivery lifecycle state
type Status string

const (
	// StatusPending means the delivery waits for its first attempt
	StatusPending Status = "pending"

	// StatusInProgress means a worker has claimed the row. Stale rows in
	// this state are recovered on restart and by the cleanup loop.
	StatusInProgress Status = "in_progress"

	// StatusRetrying means a failed attempt waits for NextRetryAt
	StatusRetrying Status = "retrying"

	// StatusDelivered is terminal success
	StatusDelivered Status = "delivered"

	// StatusAbandoned is terminal failure; only a manual retry revives it
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether the status never transitions again
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusAbandoned
}

// Delivery is one attempt stream of one event to one subscription.
// Collection: webhook_deliveries
type Delivery struct {
	ID             string `bson:"_id" json:"id"`
	SubscriptionID string `bson:"subscriptionId" json:"subscriptionId"`
	EventID        string `bson:"eventId" json:"eventId"`

	// EventType is denormalized from the event for analytics breakdowns
	EventType string `bson:"eventType" json:"eventType"`

	Status   Status `bson:"status" json:"status"`
	Attempts int    `bson:"attempts" json:"attempts"`

	NextRetryAt *time.Time `bson:"nextRetryAt,omitempty" json:"nextRetryAt,omitempty"`

	LastStatusCode     int    `bson:"lastStatusCode,omitempty" json:"lastStatusCode,omitempty"`
	LastError          string `bson:"lastError,omitempty" json:"lastError,omitempty"`
	ResponseTimeMillis int64  `bson:"responseTimeMillis,omitempty" json:"responseTimeMillis,omitempty"`

	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt" json:"updatedAt"`
	DeliveredAt *time.Time `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
}
