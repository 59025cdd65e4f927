package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.hookrelay.dev/internal/common/metrics"
)

// BatcherConfig holds configuration for the async publish batcher
type BatcherConfig struct {
	// BatchSize triggers a flush when the buffer reaches it
	BatchSize int

	// FlushInterval flushes whatever is buffered, full batch or not
	FlushInterval time.Duration

	// MaxEnqueueRetries is how many times a failed entry is re-queued
	// before it is dropped. Distinct from delivery retries; this budget
	// covers getting the event into the pipeline at all.
	MaxEnqueueRetries int

	// BufferSize caps the in-process queue; PublishAsync rejects when full
	BufferSize int
}

// DefaultBatcherConfig returns sensible defaults
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		BatchSize:         10,
		FlushInterval:     5 * time.Second,
		MaxEnqueueRetries: 3,
		BufferSize:        1000,
	}
}

// batchEntry is one buffered event plus its enqueue attempt count
type batchEntry struct {
	event    *Event
	attempts int
}

// Batcher buffers events for asynchronous publishing. Entries flush when a
// full batch accumulates or on the flush ticker, whichever comes first.
// Each entry is published in isolation so one failure never blocks its
// siblings.
type Batcher struct {
	config    BatcherConfig
	publisher *Publisher

	buffer  chan batchEntry
	done    chan struct{}
	wg      sync.WaitGroup
	started sync.Once
	stopped sync.Once
}

// NewBatcher creates a new async publish batcher
func NewBatcher(publisher *Publisher, config BatcherConfig) *Batcher {
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 5 * time.Second
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	return &Batcher{
		config:    config,
		publisher: publisher,
		buffer:    make(chan batchEntry, config.BufferSize),
		done:      make(chan struct{}),
	}
}

// PublishAsync queues the event for background publishing. Returns false
// when the buffer is full; the caller can fall back to Publish.
func (b *Batcher) PublishAsync(event *Event) bool {
	select {
	case b.buffer <- batchEntry{event: event}:
		metrics.PublishBufferSize.Set(float64(len(b.buffer)))
		return true
	default:
		slog.Warn("Publish buffer full, rejecting event", "eventType", event.Type)
		return false
	}
}

// Start launches the flush loop
func (b *Batcher) Start() {
	b.started.Do(func() {
		b.wg.Add(1)
		go b.run()
		slog.Info("Publish batcher started",
			"batchSize", b.config.BatchSize,
			"flushInterval", b.config.FlushInterval)
	})
}

// Stop drains the buffer with a final flush and waits for the loop to exit
func (b *Batcher) Stop() {
	b.stopped.Do(func() {
		close(b.done)
		b.wg.Wait()
		slog.Info("Publish batcher stopped")
	})
}

func (b *Batcher) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]batchEntry, 0, b.config.BatchSize)

	for {
		select {
		case entry := <-b.buffer:
			batch = append(batch, entry)
			if len(batch) >= b.config.BatchSize {
				batch = b.flush(batch)
			}
		case <-ticker.C:
			batch = b.flush(batch)
		case <-b.done:
			// Final drain: take whatever is still buffered, then flush
			for {
				select {
				case entry := <-b.buffer:
					batch = append(batch, entry)
				default:
					b.flush(batch)
					return
				}
			}
		}
	}
}

// flush publishes each entry in isolation, re-queuing failures until their
// enqueue budget runs out. Returns the reset batch slice.
func (b *Batcher) flush(batch []batchEntry) []batchEntry {
	if len(batch) == 0 {
		return batch
	}

	ctx := context.Background()
	for _, entry := range batch {
		result := b.publisher.Publish(ctx, entry.event)
		if result.IsSuccess() {
			continue
		}

		entry.attempts++
		if entry.attempts <= b.config.MaxEnqueueRetries {
			select {
			case b.buffer <- entry:
			default:
				b.dropEntry(entry)
			}
			continue
		}
		b.dropEntry(entry)
	}

	metrics.PublishBufferSize.Set(float64(len(b.buffer)))
	return batch[:0]
}

func (b *Batcher) dropEntry(entry batchEntry) {
	metrics.PublishFailures.Inc()
	slog.Error("Event permanently failed to publish",
		"eventId", entry.event.ID,
		"eventType", entry.event.Type,
		"enqueueAttempts", entry.attempts)
}
