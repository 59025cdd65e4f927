package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"go.hookrelay.dev/internal/common/metrics"
	"go.hookrelay.dev/internal/platform/common"
	"go.hookrelay.dev/internal/registry"
	"go.hookrelay.dev/internal/security"
)

// PublishResult reports what a publish produced
type PublishResult struct {
	EventID string `json:"eventId"`

	// Deliveries is the number of pending deliveries fanned out
	Deliveries int `json:"deliveries"`
}

// Publisher validates, sanitizes, and persists events, then fans them out
// into one pending delivery per matching active subscription.
type Publisher struct {
	events    Repository
	subs      registry.Repository
	sink      DeliverySink
	validator *security.Validator

	// wake nudges the dispatch pool after fan-out; must be non-blocking.
	// Nil means nobody to wake.
	wake func()
}

// NewPublisher creates a new event publisher
func NewPublisher(events Repository, subs registry.Repository, sink DeliverySink, validator *security.Validator) *Publisher {
	return &Publisher{
		events:    events,
		subs:      subs,
		sink:      sink,
		validator: validator,
	}
}

// SetWake registers the dispatch pool wake signal. The function must not
// block; the pool's Wake does a non-blocking channel send.
func (p *Publisher) SetWake(wake func()) {
	p.wake = wake
}

// Publish validates and persists the event, then creates one pending
// delivery per matching subscription. Failing to enqueue one delivery does
// not roll back the others; the event itself is already durable.
func (p *Publisher) Publish(ctx context.Context, event *Event) common.Result[*PublishResult] {
	if event == nil {
		return common.Failure[*PublishResult](
			common.ValidationError(common.ErrCodeRequired, "Event is required", nil),
		)
	}
	if event.Type == "" {
		return common.Failure[*PublishResult](
			common.ValidationError("MISSING_EVENT_TYPE", "Event type is required", nil),
		)
	}
	if event.Payload == nil {
		return common.Failure[*PublishResult](
			common.ValidationError("MISSING_PAYLOAD", "Event payload is required", nil),
		)
	}

	raw, err := json.Marshal(event.Payload)
	if err != nil {
		return common.Failure[*PublishResult](
			common.ValidationError(common.ErrCodeInvalidFormat, "Event payload is not serializable",
				map[string]any{"error": err.Error()}),
		)
	}
	if result := p.validator.ValidatePayloadSize(int64(len(raw))); !result.Valid {
		return common.Failure[*PublishResult](
			common.ValidationError("PAYLOAD_TOO_LARGE", result.Reason, result.Details),
		)
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.Payload = security.SanitizePayload(event.Payload).(map[string]any)

	if err := p.events.Insert(ctx, event); err != nil {
		return common.Failure[*PublishResult](
			common.InternalError(common.ErrCodeDBError, "Failed to store event",
				map[string]any{"error": err.Error()}),
		)
	}
	metrics.EventsPublished.WithLabelValues(event.Type).Inc()

	subs, err := p.subs.FindActiveByEventType(ctx, event.Type)
	if err != nil {
		return common.Failure[*PublishResult](
			common.InternalError(common.ErrCodeDBError, "Failed to resolve subscriptions",
				map[string]any{"error": err.Error()}),
		)
	}

	enqueued := 0
	for _, sub := range subs {
		if !sub.MatchesFilter(event.Payload) {
			continue
		}
		if err := p.sink.EnqueuePending(ctx, sub.ID, event.ID, event.Type); err != nil {
			slog.Error("Failed to enqueue delivery",
				"eventId", event.ID,
				"subscriptionId", sub.ID,
				"error", err)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		metrics.DeliveriesEnqueued.WithLabelValues(event.Type).Add(float64(enqueued))
		if p.wake != nil {
			p.wake()
		}
	}

	slog.Info("Event published",
		"eventId", event.ID,
		"eventType", event.Type,
		"deliveries", enqueued)

	return common.Success(&PublishResult{EventID: event.ID, Deliveries: enqueued})
}

// PublishTest persists a synthetic test event and enqueues it for exactly
// one subscription, bypassing fan-out so other subscribers of the same
// event type never see it
func (p *Publisher) PublishTest(ctx context.Context, sub *registry.Subscription) common.Result[*PublishResult] {
	eventType := "test.ping"
	if len(sub.EventTypes) > 0 {
		eventType = sub.EventTypes[0]
	}

	event := &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   map[string]any{"message": "Test delivery from HookRelay"},
		CreatedAt: time.Now().UTC(),
	}
	event.MarkTest()

	if err := p.events.Insert(ctx, event); err != nil {
		return common.Failure[*PublishResult](
			common.InternalError(common.ErrCodeDBError, "Failed to store test event",
				map[string]any{"error": err.Error()}),
		)
	}
	if err := p.sink.EnqueuePending(ctx, sub.ID, event.ID, event.Type); err != nil {
		return common.Failure[*PublishResult](
			common.InternalError(common.ErrCodeDBError, "Failed to enqueue test delivery",
				map[string]any{"error": err.Error()}),
		)
	}

	metrics.EventsPublished.WithLabelValues(event.Type).Inc()
	metrics.DeliveriesEnqueued.WithLabelValues(event.Type).Inc()
	if p.wake != nil {
		p.wake()
	}

	slog.Info("Test event published", "eventId", event.ID, "subscriptionId", sub.ID)
	return common.Success(&PublishResult{EventID: event.ID, Deliveries: 1})
}
