package registry

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a subscription does not exist
var ErrNotFound = errors.New("subscription not found")

// Sort directions accepted by ListOptions
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListOptions controls pagination, sorting, and equality filtering for List
type ListOptions struct {
	Page     int
	PageSize int

	// SortField is a subscription field name ("createdAt", "name", ...);
	// empty sorts by creation time
	SortField string
	SortDir   string

	// Equality filters
	OwnerID   string
	EventType string
	Active    *bool
}

// Normalize clamps paging values to sane bounds
func (o *ListOptions) Normalize() {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize < 1 {
		o.PageSize = 20
	}
	if o.PageSize > 100 {
		o.PageSize = 100
	}
	if o.SortField == "" {
		o.SortField = "createdAt"
	}
	if o.SortDir != SortAsc && o.SortDir != SortDesc {
		o.SortDir = SortDesc
	}
}

// Repository provides storage access to subscriptions
type Repository interface {
	Insert(ctx context.Context, sub *Subscription) error
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*Subscription, error)
	List(ctx context.Context, opts ListOptions) ([]*Subscription, int64, error)

	// FindActiveByEventType returns active subscriptions whose event-type
	// filter contains eventType. Payload predicates are evaluated by the
	// caller.
	FindActiveByEventType(ctx context.Context, eventType string) ([]*Subscription, error)
}
