package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"go.hookrelay.dev/internal/common/metrics"
	"go.hookrelay.dev/internal/publisher"
	"go.hookrelay.dev/internal/registry"
	"go.hookrelay.dev/internal/security"
)

const userAgent = "HookRelay/1.0"

// ExecutorConfig configures the outbound HTTP executor
type ExecutorConfig struct {
	// CircuitBreaker settings; disabled entirely when Enabled is false
	CircuitBreakerEnabled     bool
	CircuitBreakerInterval    time.Duration
	CircuitBreakerTimeout     time.Duration
	CircuitBreakerRatio       float64
	CircuitBreakerMinRequests uint32
}

// DefaultExecutorConfig returns sensible defaults
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		CircuitBreakerEnabled:     true,
		CircuitBreakerInterval:    60 * time.Second,
		CircuitBreakerTimeout:     30 * time.Second,
		CircuitBreakerRatio:       0.5,
		CircuitBreakerMinRequests: 10,
	}
}

// Outcome is the result of one delivery attempt
type Outcome struct {
	Delivered  bool
	StatusCode int
	Error      string
	Duration   time.Duration
}

// Executor performs one webhook POST per call: envelope build, signing,
// per-mode auth headers, and status classification. A shared circuit
// breaker sheds load when targets fail broadly.
type Executor struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	signer  *security.Signer
}

// NewExecutor creates a new outbound executor. The transport re-checks
// resolved addresses at dial time so a DNS answer that changes after
// registration cannot reach an internal address.
func NewExecutor(cfg *ExecutorConfig, signer *security.Signer) *Executor {
	if cfg == nil {
		cfg = DefaultExecutorConfig()
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			if ip := net.ParseIP(host); ip != nil && security.IsBlockedIP(ip) {
				return nil, fmt.Errorf("dial %s: address is not routable for webhooks", host)
			}
			return dialer.DialContext(ctx, network, addr)
		},
	}

	e := &Executor{
		// Per-request deadlines come from the subscription timeout via
		// context; no client-level timeout on top
		client: &http.Client{Transport: transport},
		signer: signer,
	}

	if cfg.CircuitBreakerEnabled {
		e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "webhook-executor",
			Interval: cfg.CircuitBreakerInterval,
			Timeout:  cfg.CircuitBreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.CircuitBreakerMinRequests {
					return false
				}
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRatio >= cfg.CircuitBreakerRatio
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Info("Circuit breaker state changed",
					"name", name,
					"from", from.String(),
					"to", to.String())

				switch to {
				case gobreaker.StateClosed:
					metrics.CircuitBreakerState.Set(metrics.CircuitBreakerClosed)
				case gobreaker.StateOpen:
					metrics.CircuitBreakerState.Set(metrics.CircuitBreakerOpen)
				case gobreaker.StateHalfOpen:
					metrics.CircuitBreakerState.Set(metrics.CircuitBreakerHalfOpen)
				}
			},
		})
	}

	return e
}

// Execute performs one delivery attempt and classifies the result
func (e *Executor) Execute(ctx context.Context, sub *registry.Subscription, event *publisher.Event) Outcome {
	if e.breaker == nil {
		return e.executeOnce(ctx, sub, event)
	}

	result, err := e.breaker.Execute(func() (interface{}, error) {
		outcome := e.executeOnce(ctx, sub, event)
		if !outcome.Delivered {
			return outcome, errors.New(outcome.Error)
		}
		return outcome, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Outcome{Error: "circuit breaker open"}
	}
	return result.(Outcome)
}

func (e *Executor) executeOnce(ctx context.Context, sub *registry.Subscription, event *publisher.Event) Outcome {
	now := time.Now().UTC()

	body, err := json.Marshal(map[string]any{
		"event": event.Type,
		"webhook": map[string]any{
			"id":        sub.ID,
			"eventId":   event.ID,
			"timestamp": now.Format(time.RFC3339),
		},
		"data": event.Payload,
	})
	if err != nil {
		return Outcome{Error: fmt.Sprintf("marshal envelope: %v", err)}
	}

	timeout := time.Duration(sub.Policy.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(registry.DefaultTimeoutSeconds) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.TargetURL, bytes.NewReader(body))
	if err != nil {
		return Outcome{Error: fmt.Sprintf("build request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Webhook-ID", sub.ID)
	req.Header.Set("X-Event-Type", event.Type)

	for name, value := range sub.Policy.CustomHeaders {
		req.Header.Set(name, security.SanitizeString(value))
	}

	switch sub.Auth.Mode {
	case registry.AuthModeAPIKey:
		req.Header.Set("X-API-Key", sub.Auth.APIKey)
	case registry.AuthModeBearerToken:
		req.Header.Set("Authorization", "Bearer "+sub.Auth.BearerToken)
	case registry.AuthModeOAuth2:
		req.Header.Set("Authorization", "Bearer "+sub.Auth.AccessToken)
	case registry.AuthModeHMACSHA256:
		req.Header.Set(security.SignatureHeader, e.signer.Sign(body, sub.Auth.Secret, now))
		req.Header.Set(security.TimestampHeader, strconv.FormatInt(now.Unix(), 10))
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	elapsed := time.Since(start)
	metrics.OutboundDuration.Observe(elapsed.Seconds())

	if err != nil {
		metrics.OutboundRequests.WithLabelValues("error").Inc()
		return Outcome{Error: err.Error(), Duration: elapsed}
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	metrics.OutboundRequests.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Outcome{Delivered: true, StatusCode: resp.StatusCode, Duration: elapsed}
	}
	return Outcome{
		StatusCode: resp.StatusCode,
		Error:      fmt.Sprintf("target responded %d", resp.StatusCode),
		Duration:   elapsed,
	}
}
