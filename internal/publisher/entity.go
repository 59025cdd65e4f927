// Package publisher accepts domain events and fans them out into pending
// deliveries for every matching active subscription.
package publisher

import (
	"time"
)

// Event is an immutable domain event accepted by the publisher.
// Collection: webhook_events
type Event struct {
	ID   string `bson:"_id" json:"id"`
	Type string `bson:"type" json:"type"`

	// UserID is the actor that caused the event, ResourceID the entity it
	// concerns. Both optional.
	UserID     string `bson:"userId,omitempty" json:"userId,omitempty"`
	ResourceID string `bson:"resourceId,omitempty" json:"resourceId,omitempty"`

	Payload  map[string]any `bson:"payload" json:"payload"`
	Metadata map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// MarkTest flags the event as synthetic so receivers can filter it out
func (e *Event) MarkTest() {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata["test"] = true
}

// IsTest reports whether the event carries the test metadata flag
func (e *Event) IsTest() bool {
	v, ok := e.Metadata["test"].(bool)
	return ok && v
}
