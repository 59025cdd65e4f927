package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"go.hookrelay.dev/internal/common/leader"
	"go.hookrelay.dev/internal/common/metrics"
	"go.hookrelay.dev/internal/publisher"
	"go.hookrelay.dev/internal/registry"
)

// staleInProgressAge is how long a claimed row may sit untouched before the
// cleanup loop assumes its worker died and resets it to pending
const staleInProgressAge = 10 * time.Minute

// deadLetterReason is recorded on rows abandoned by the age sweep
const deadLetterReason = "exceeded maximum delivery age"

// PoolConfig holds configuration for the delivery worker pool
type PoolConfig struct {
	// Concurrency is the number of delivery workers
	Concurrency int

	// BatchSize is the maximum deliveries claimed per cycle
	BatchSize int

	// PollInterval is how often to poll for pending deliveries
	PollInterval time.Duration

	// RetryInterval is how often to poll for due retries
	RetryInterval time.Duration

	// CleanupInterval is how often recovery, dead-lettering, and retention
	// purging run
	CleanupInterval time.Duration

	// DeadLetterAge forces non-terminal rows older than this to abandoned
	DeadLetterAge time.Duration

	// Retention is how long delivered rows are kept before purging
	Retention time.Duration

	// ShutdownTimeout bounds the wait for busy workers on Stop
	ShutdownTimeout time.Duration

	// EnableCleanup toggles the cleanup loop
	EnableCleanup bool

	// EnableHealthCheck toggles the periodic health snapshot log
	EnableHealthCheck bool

	// RatePerMinute optionally caps dispatches per minute across the pool;
	// zero disables the limiter
	RatePerMinute int

	// LeaderElection settings, applied by WithLeaderElection
	LeaderLockName        string
	LeaderTTL             time.Duration
	LeaderRefreshInterval time.Duration
}

// DefaultPoolConfig returns sensible defaults
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Concurrency:       5,
		BatchSize:         10,
		PollInterval:      5 * time.Second,
		RetryInterval:     30 * time.Second,
		CleanupInterval:   time.Hour,
		DeadLetterAge:     24 * time.Hour,
		Retention:         7 * 24 * time.Hour,
		ShutdownTimeout:   30 * time.Second,
		EnableCleanup:     true,
		EnableHealthCheck: true,
	}
}

// Health is a point-in-time snapshot of the pool
type Health struct {
	Running     bool      `json:"running"`
	BusyWorkers int       `json:"busyWorkers"`
	IdleWorkers int       `json:"idleWorkers"`
	IsPrimary   bool      `json:"isPrimary"`
	LastPollAt  time.Time `json:"lastPollAt,omitempty"`
}

// Pool drives deliveries to their targets. One poll loop claims pending
// rows, one retry loop claims due retries, and a semaphore bounds the
// workers dispatching them. All claims go through the repository's atomic
// claim so multiple instances can run the same loops safely.
type Pool struct {
	config   *PoolConfig
	repo     Repository
	subs     registry.Repository
	events   publisher.Repository
	executor *Executor

	semaphore chan struct{}
	busy      atomic.Int32
	limiter   *rate.Limiter

	elector   *leader.Elector
	isPrimary atomic.Bool

	// wake lets the publisher nudge the poll loop after fan-out instead of
	// waiting out the interval
	wake chan struct{}

	lastPoll atomic.Value // time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// workerCtx outlives ctx so Stop never cancels an in-flight HTTP call;
	// it is cancelled only once the shutdown wait is over
	workerCtx    context.Context
	workerCancel context.CancelFunc

	wg        sync.WaitGroup // loops
	workerWg  sync.WaitGroup // in-flight deliveries
	running   bool
	runningMu sync.Mutex
}

// NewPool creates a new delivery worker pool
func NewPool(repo Repository, subs registry.Repository, events publisher.Repository, executor *Executor, config *PoolConfig) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 5
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	workerCtx, workerCancel := context.WithCancel(context.Background())

	p := &Pool{
		config:       config,
		repo:         repo,
		subs:         subs,
		events:       events,
		executor:     executor,
		semaphore:    make(chan struct{}, config.Concurrency),
		wake:         make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		workerCtx:    workerCtx,
		workerCancel: workerCancel,
	}

	if config.RatePerMinute > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(float64(config.RatePerMinute)/60.0), config.Concurrency)
	}

	// Primary by default; leader election demotes until the lock is won
	p.isPrimary.Store(true)
	return p
}

// WithLeaderElection enables the Redis leader lock so only one instance
// runs the claim loops at a time
func (p *Pool) WithLeaderElection(client *redis.Client) *Pool {
	if client == nil {
		return p
	}

	lockName := p.config.LeaderLockName
	if lockName == "" {
		lockName = "hookrelay-dispatch-leader"
	}
	cfg := leader.DefaultElectorConfig(lockName)
	if p.config.LeaderTTL > 0 {
		cfg.TTL = p.config.LeaderTTL
	}
	if p.config.LeaderRefreshInterval > 0 {
		cfg.RefreshInterval = p.config.LeaderRefreshInterval
	}

	p.elector = leader.NewElector(client, cfg)
	p.elector.OnBecomeLeader(func() {
		p.isPrimary.Store(true)
		metrics.LeaderElectionState.Set(1)
		slog.Info("Dispatch pool became primary")
	})
	p.elector.OnLoseLeadership(func() {
		p.isPrimary.Store(false)
		metrics.LeaderElectionState.Set(0)
		slog.Warn("Dispatch pool lost primary status")
	})

	p.isPrimary.Store(false)
	return p
}

// Wake nudges the poll loop without blocking the caller
func (p *Pool) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Start recovers stale claims from a previous run, then launches the loops
func (p *Pool) Start() {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if p.running {
		return
	}
	p.running = true

	p.recoverOnStart()

	if p.elector != nil {
		p.elector.Start()
	}

	p.wg.Add(1)
	go p.runPollLoop()

	p.wg.Add(1)
	go p.runRetryLoop()

	if p.config.EnableCleanup {
		p.wg.Add(1)
		go p.runCleanupLoop()
	}

	if p.config.EnableHealthCheck {
		p.wg.Add(1)
		go p.runHealthLoop()
	}

	slog.Info("Dispatch pool started",
		"concurrency", p.config.Concurrency,
		"batchSize", p.config.BatchSize,
		"pollInterval", p.config.PollInterval,
		"isPrimary", p.isPrimary.Load())
}

// Stop halts the loops immediately and waits up to ShutdownTimeout for busy
// workers. Deliveries still running after the deadline stay in_progress and
// are recovered on the next start.
func (p *Pool) Stop() {
	p.runningMu.Lock()
	if !p.running {
		p.runningMu.Unlock()
		return
	}
	p.running = false
	p.runningMu.Unlock()

	p.cancel()
	p.wg.Wait()

	workersDone := make(chan struct{})
	go func() {
		p.workerWg.Wait()
		close(workersDone)
	}()

	select {
	case <-workersDone:
		// No in-flight calls left; release the worker context
		p.workerCancel()
		slog.Info("Dispatch pool stopped")
	case <-time.After(p.config.ShutdownTimeout):
		// Never cancel a mid-flight call; stragglers run to their own
		// timeout and their rows are recovered on the next start
		slog.Warn("Dispatch pool shutdown timed out; in-flight deliveries left for restart recovery",
			"busyWorkers", p.busy.Load())
	}

	if p.elector != nil {
		p.elector.Stop()
	}
}

// Health returns a snapshot of the pool state
func (p *Pool) Health() Health {
	p.runningMu.Lock()
	running := p.running
	p.runningMu.Unlock()

	busy := int(p.busy.Load())
	h := Health{
		Running:     running,
		BusyWorkers: busy,
		IdleWorkers: p.config.Concurrency - busy,
		IsPrimary:   p.isPrimary.Load(),
	}
	if t, ok := p.lastPoll.Load().(time.Time); ok {
		h.LastPollAt = t
	}
	return h
}

// RetryDelivery claims one specific delivery and executes it synchronously.
// This is the manual retry path; callers reset the row to pending first.
func (p *Pool) RetryDelivery(ctx context.Context, id string) (*Delivery, error) {
	d, err := p.repo.ClaimByID(ctx, id)
	if err != nil {
		return nil, err
	}
	metrics.PoolClaimedDeliveries.WithLabelValues("manual").Inc()

	p.deliver(ctx, d)
	return p.repo.FindByID(ctx, id)
}

func (p *Pool) recoverOnStart() {
	ctx, cancel := context.WithTimeout(p.ctx, 30*time.Second)
	defer cancel()

	// Single-instance runs can safely reclaim every in_progress row; with
	// leader election a peer may legitimately hold some, so only rows past
	// the stale age are taken
	cutoff := time.Now().UTC()
	if p.elector != nil {
		cutoff = cutoff.Add(-staleInProgressAge)
	}

	recovered, err := p.repo.RecoverStale(ctx, cutoff)
	if err != nil {
		slog.Error("Startup recovery failed", "error", err)
		return
	}
	if recovered > 0 {
		metrics.RecoveredDeliveries.Add(float64(recovered))
		slog.Info("Recovered stale deliveries", "count", recovered)
	}
}

func (p *Pool) runPollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.pollCycle()
		case <-p.wake:
			p.pollCycle()
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) runRetryLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.retryCycle()
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) runCleanupLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.cleanupCycle()
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) runHealthLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h := p.Health()
			slog.Debug("Dispatch pool health",
				"busyWorkers", h.BusyWorkers,
				"idleWorkers", h.IdleWorkers,
				"isPrimary", h.IsPrimary)
		case <-p.ctx.Done():
			return
		}
	}
}

// claimBudget is how many rows a cycle may claim: never more than the
// configured batch, never more than there are idle workers
func (p *Pool) claimBudget() int {
	idle := p.config.Concurrency - int(p.busy.Load())
	if idle <= 0 {
		return 0
	}
	if idle > p.config.BatchSize {
		return p.config.BatchSize
	}
	return idle
}

func (p *Pool) pollCycle() {
	p.lastPoll.Store(time.Now().UTC())

	if !p.isPrimary.Load() {
		return
	}
	budget := p.claimBudget()
	if budget == 0 {
		return
	}

	claimed, err := p.repo.ClaimPending(p.ctx, budget)
	if err != nil {
		slog.Error("Failed to claim pending deliveries", "error", err)
		return
	}
	if len(claimed) == 0 {
		return
	}
	metrics.PoolClaimedDeliveries.WithLabelValues("poll").Add(float64(len(claimed)))

	for _, d := range claimed {
		p.dispatchAsync(d)
	}
}

func (p *Pool) retryCycle() {
	if !p.isPrimary.Load() {
		return
	}
	budget := p.claimBudget()
	if budget == 0 {
		return
	}

	claimed, err := p.repo.ClaimDueRetries(p.ctx, time.Now().UTC(), budget)
	if err != nil {
		slog.Error("Failed to claim due retries", "error", err)
		return
	}
	if len(claimed) == 0 {
		return
	}
	metrics.PoolClaimedDeliveries.WithLabelValues("retry").Add(float64(len(claimed)))

	for _, d := range claimed {
		p.dispatchAsync(d)
	}
}

func (p *Pool) cleanupCycle() {
	if !p.isPrimary.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(p.ctx, time.Minute)
	defer cancel()

	now := time.Now().UTC()

	if recovered, err := p.repo.RecoverStale(ctx, now.Add(-staleInProgressAge)); err != nil {
		slog.Error("Stale delivery recovery failed", "error", err)
	} else if recovered > 0 {
		metrics.RecoveredDeliveries.Add(float64(recovered))
		slog.Info("Recovered stale deliveries", "count", recovered)
	}

	if swept, err := p.repo.SweepDeadLetters(ctx, now.Add(-p.config.DeadLetterAge), deadLetterReason); err != nil {
		slog.Error("Dead letter sweep failed", "error", err)
	} else if swept > 0 {
		metrics.DeadLettered.Add(float64(swept))
		slog.Warn("Dead-lettered overdue deliveries", "count", swept)
	}

	if purged, err := p.repo.PurgeDelivered(ctx, now.Add(-p.config.Retention)); err != nil {
		slog.Error("Retention purge failed", "error", err)
	} else if purged > 0 {
		slog.Info("Purged delivered rows past retention", "count", purged)
	}
}

func (p *Pool) dispatchAsync(d *Delivery) {
	select {
	case p.semaphore <- struct{}{}:
	case <-p.ctx.Done():
		return
	}

	p.workerWg.Add(1)
	p.busy.Add(1)
	metrics.PoolActiveWorkers.Set(float64(p.busy.Load()))

	go func() {
		defer func() {
			<-p.semaphore
			p.busy.Add(-1)
			metrics.PoolActiveWorkers.Set(float64(p.busy.Load()))
			p.workerWg.Done()
		}()

		if p.limiter != nil {
			if err := p.limiter.Wait(p.ctx); err != nil {
				// Shutting down; leave the row in_progress for recovery
				return
			}
		}
		p.deliver(p.workerCtx, d)
	}()
}

// deliver executes one claimed delivery and records the outcome
func (p *Pool) deliver(ctx context.Context, d *Delivery) {
	sub, err := p.subs.FindByID(ctx, d.SubscriptionID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			p.abandon(ctx, d, "subscription no longer exists")
			return
		}
		slog.Error("Failed to load subscription for delivery", "deliveryId", d.ID, "error", err)
		p.release(ctx, d)
		return
	}
	if !sub.Active {
		p.abandon(ctx, d, "subscription is disabled")
		return
	}

	// Retries honor the subscription's rolling delivered-count windows; a
	// capped delivery is deferred, not failed
	if d.Attempts > 0 {
		capped, err := p.atRateCap(ctx, sub)
		if err != nil {
			slog.Error("Rate window check failed", "deliveryId", d.ID, "error", err)
			p.release(ctx, d)
			return
		}
		if capped {
			p.defer1h(ctx, d)
			return
		}
	}

	event, err := p.events.FindByID(ctx, d.EventID)
	if err != nil {
		if errors.Is(err, publisher.ErrNotFound) {
			p.abandon(ctx, d, "event no longer exists")
			return
		}
		slog.Error("Failed to load event for delivery", "deliveryId", d.ID, "error", err)
		p.release(ctx, d)
		return
	}

	outcome := p.executor.Execute(ctx, sub, event)
	metrics.DeliveryDuration.Observe(outcome.Duration.Seconds())
	now := time.Now().UTC()

	if outcome.Delivered {
		d.Status = StatusDelivered
		d.Attempts++
		d.LastStatusCode = outcome.StatusCode
		d.LastError = ""
		d.ResponseTimeMillis = outcome.Duration.Milliseconds()
		d.NextRetryAt = nil
		d.DeliveredAt = &now

		if err := p.repo.Update(ctx, d); err != nil {
			slog.Error("Failed to record delivered state", "deliveryId", d.ID, "error", err)
			return
		}
		metrics.DeliveriesProcessed.WithLabelValues("delivered").Inc()
		slog.Info("Delivery succeeded",
			"deliveryId", d.ID,
			"subscriptionId", sub.ID,
			"attempts", d.Attempts,
			"statusCode", outcome.StatusCode)
		return
	}

	d.Attempts++
	d.LastStatusCode = outcome.StatusCode
	d.LastError = outcome.Error
	d.ResponseTimeMillis = outcome.Duration.Milliseconds()

	maxAttempts := sub.Policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = registry.DefaultMaxAttempts
	}

	if d.Attempts >= maxAttempts {
		d.Status = StatusAbandoned
		d.NextRetryAt = nil
		if err := p.repo.Update(ctx, d); err != nil {
			slog.Error("Failed to record abandoned state", "deliveryId", d.ID, "error", err)
			return
		}
		metrics.DeliveriesProcessed.WithLabelValues("abandoned").Inc()
		slog.Warn("Delivery abandoned",
			"deliveryId", d.ID,
			"subscriptionId", sub.ID,
			"attempts", d.Attempts,
			"lastError", d.LastError)
		return
	}

	next := now.Add(backoffDelay(sub.Policy, d.Attempts))
	d.Status = StatusRetrying
	d.NextRetryAt = &next
	if err := p.repo.Update(ctx, d); err != nil {
		slog.Error("Failed to record retrying state", "deliveryId", d.ID, "error", err)
		return
	}
	metrics.DeliveriesProcessed.WithLabelValues("retrying").Inc()
	slog.Info("Delivery scheduled for retry",
		"deliveryId", d.ID,
		"subscriptionId", sub.ID,
		"attempts", d.Attempts,
		"nextRetryAt", next)
}

// atRateCap checks the subscription's rolling hour and day delivered counts
func (p *Pool) atRateCap(ctx context.Context, sub *registry.Subscription) (bool, error) {
	now := time.Now().UTC()

	if sub.RateLimitPerHour > 0 {
		n, err := p.repo.CountDeliveredSince(ctx, sub.ID, now.Add(-time.Hour))
		if err != nil {
			return false, err
		}
		if n >= int64(sub.RateLimitPerHour) {
			return true, nil
		}
	}
	if sub.RateLimitPerDay > 0 {
		n, err := p.repo.CountDeliveredSince(ctx, sub.ID, now.Add(-24*time.Hour))
		if err != nil {
			return false, err
		}
		if n >= int64(sub.RateLimitPerDay) {
			return true, nil
		}
	}
	return false, nil
}

// defer1h pushes the delivery one hour out without touching its attempt
// count; a deferral is not a failure
func (p *Pool) defer1h(ctx context.Context, d *Delivery) {
	next := time.Now().UTC().Add(time.Hour)
	d.Status = StatusRetrying
	d.NextRetryAt = &next
	if err := p.repo.Update(ctx, d); err != nil {
		slog.Error("Failed to defer delivery", "deliveryId", d.ID, "error", err)
		return
	}
	metrics.RateLimitDeferrals.Inc()
	metrics.DeliveriesProcessed.WithLabelValues("deferred").Inc()
	slog.Info("Delivery deferred by rate cap", "deliveryId", d.ID, "nextRetryAt", next)
}

// release puts a claimed row back to its waiting state after a transient
// infrastructure error, keeping its attempt count untouched
func (p *Pool) release(ctx context.Context, d *Delivery) {
	if d.Attempts == 0 {
		d.Status = StatusPending
	} else {
		d.Status = StatusRetrying
		if d.NextRetryAt == nil {
			next := time.Now().UTC().Add(time.Minute)
			d.NextRetryAt = &next
		}
	}
	if err := p.repo.Update(ctx, d); err != nil {
		slog.Error("Failed to release delivery", "deliveryId", d.ID, "error", err)
	}
}

// abandon terminates the delivery for a structural reason
func (p *Pool) abandon(ctx context.Context, d *Delivery, reason string) {
	d.Status = StatusAbandoned
	d.LastError = reason
	d.NextRetryAt = nil
	if err := p.repo.Update(ctx, d); err != nil {
		slog.Error("Failed to abandon delivery", "deliveryId", d.ID, "error", err)
		return
	}
	metrics.DeliveriesProcessed.WithLabelValues("abandoned").Inc()
	slog.Warn("Delivery abandoned", "deliveryId", d.ID, "reason", reason)
}
