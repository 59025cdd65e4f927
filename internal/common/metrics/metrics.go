// Package metrics defines the Prometheus instrumentation for the delivery
// subsystem. All collectors are registered at init via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Publisher metrics

	// EventsPublished tracks events accepted by the publisher
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hookrelay",
			Subsystem: "publisher",
			Name:      "events_published_total",
			Help:      "Total events accepted by the publisher",
		},
		[]string{"event_type"},
	)

	// DeliveriesEnqueued tracks deliveries fanned out per event type
	DeliveriesEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hookrelay",
			Subsystem: "publisher",
			Name:      "deliveries_enqueued_total",
			Help:      "Total pending deliveries created by event fan-out",
		},
		[]string{"event_type"},
	)

	// PublishBufferSize tracks the async publish buffer occupancy
	PublishBufferSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hookrelay",
			Subsystem: "publisher",
			Name:      "buffer_size",
			Help:      "Events waiting in the async publish buffer",
		},
	)

	// PublishFailures tracks events dropped after exhausting enqueue retries
	PublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hookrelay",
			Subsystem: "publisher",
			Name:      "publish_failures_total",
			Help:      "Events permanently failed after exhausting enqueue retries",
		},
	)

	// Dispatch pool metrics

	// DeliveriesProcessed tracks delivery attempts by outcome
	DeliveriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hookrelay",
			Subsystem: "dispatch",
			Name:      "deliveries_processed_total",
			Help:      "Total delivery attempts by outcome",
		},
		[]string{"outcome"}, // delivered, retrying, abandoned, deferred
	)

	// DeliveryDuration tracks end-to-end attempt duration
	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hookrelay",
			Subsystem: "dispatch",
			Name:      "delivery_duration_seconds",
			Help:      "Time to execute one delivery attempt",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// PoolActiveWorkers tracks busy delivery workers
	PoolActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hookrelay",
			Subsystem: "dispatch",
			Name:      "active_workers",
			Help:      "Number of busy workers in the dispatch pool",
		},
	)

	// PoolClaimedDeliveries tracks rows claimed per poll cycle
	PoolClaimedDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hookrelay",
			Subsystem: "dispatch",
			Name:      "claimed_total",
			Help:      "Deliveries claimed from storage",
		},
		[]string{"cycle"}, // poll, retry, manual
	)

	// RateLimitDeferrals tracks deliveries deferred by subscription caps
	RateLimitDeferrals = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hookrelay",
			Subsystem: "dispatch",
			Name:      "rate_limit_deferrals_total",
			Help:      "Deliveries deferred because the subscription was at its rolling cap",
		},
	)

	// DeadLettered tracks deliveries abandoned by the age sweep
	DeadLettered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hookrelay",
			Subsystem: "dispatch",
			Name:      "dead_lettered_total",
			Help:      "Deliveries forced to abandoned by the age threshold sweep",
		},
	)

	// RecoveredDeliveries tracks stale in-progress rows reset on startup
	RecoveredDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hookrelay",
			Subsystem: "dispatch",
			Name:      "recovered_total",
			Help:      "Stale in-progress deliveries reset during recovery",
		},
	)

	// LeaderElectionState reports leadership (1 leader, 0 follower)
	LeaderElectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hookrelay",
			Subsystem: "dispatch",
			Name:      "leader_election_state",
			Help:      "Leader election state (1=leader, 0=follower)",
		},
	)

	// Outbound HTTP metrics

	// OutboundRequests tracks webhook POSTs by status class
	OutboundRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hookrelay",
			Subsystem: "http",
			Name:      "outbound_requests_total",
			Help:      "Outbound webhook requests by status",
		},
		[]string{"status"},
	)

	// OutboundDuration tracks webhook POST latency
	OutboundDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hookrelay",
			Subsystem: "http",
			Name:      "outbound_duration_seconds",
			Help:      "Outbound webhook request latency",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// CircuitBreakerState reports the executor breaker state
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hookrelay",
			Subsystem: "http",
			Name:      "circuit_breaker_state",
			Help:      "Outbound circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)

	// Security metrics

	// SecurityRejections tracks validator rejections by check
	SecurityRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hookrelay",
			Subsystem: "security",
			Name:      "rejections_total",
			Help:      "Validator rejections by check",
		},
		[]string{"check"}, // target_url, headers, payload_size, signature, rate_limits
	)
)

// Circuit breaker state values for CircuitBreakerState
const (
	CircuitBreakerClosed   = 0
	CircuitBreakerOpen     = 1
	CircuitBreakerHalfOpen = 2
)
