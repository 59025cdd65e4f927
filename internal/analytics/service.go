// Package analytics aggregates delivery history per subscription and
// drives manual retries of failed deliveries.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.hookrelay.dev/internal/dispatch"
	"go.hookrelay.dev/internal/platform/common"
	"go.hookrelay.dev/internal/registry"
)

// retryBatchSize is how many manual retries run concurrently; the service
// waits for each batch before starting the next
const retryBatchSize = 5

// maxReportedErrors caps the error list in a retry result
const maxReportedErrors = 10

// Retrier re-executes one delivery synchronously. Implemented by the
// dispatch pool.
type Retrier interface {
	RetryDelivery(ctx context.Context, id string) (*dispatch.Delivery, error)
}

// Report is the aggregated delivery history for one subscription
type Report struct {
	SubscriptionID string `json:"subscriptionId"`
	Period         string `json:"period"`

	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Pending   int64 `json:"pending"`

	ByEventType map[string]int64 `json:"byEventType"`
	ByStatus    map[string]int64 `json:"byStatus"`

	SuccessRate float64 `json:"successRate"`

	// AvgResponseMillis averages recorded response times; best effort, rows
	// without a recorded time are skipped
	AvgResponseMillis float64 `json:"avgResponseMillis"`
}

// RetryRequest selects deliveries to retry: either explicit IDs or a
// webhook plus status/age filter, never both
type RetryRequest struct {
	DeliveryIDs []string `json:"deliveryIds,omitempty"`

	WebhookID string `json:"webhookId,omitempty"`
	Status    string `json:"status,omitempty"`

	// MaxAge bounds how far back the webhook filter reaches, in hours;
	// clamped to [1, 168], default 24. MaxAgeHours is an accepted alias.
	MaxAge      int `json:"maxAge,omitempty"`
	MaxAgeHours int `json:"maxAgeHours,omitempty"`
}

// maxAgeHours resolves the age bound from either field
func (r RetryRequest) maxAgeHours() int {
	if r.MaxAge > 0 {
		return r.MaxAge
	}
	return r.MaxAgeHours
}

// RetryResult reports the outcome of a manual retry run
type RetryResult struct {
	Total   int      `json:"total"`
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Service serves analytics reports and manual retries
type Service struct {
	subs       registry.Repository
	deliveries dispatch.Repository
	retrier    Retrier
}

// NewService creates a new analytics service
func NewService(subs registry.Repository, deliveries dispatch.Repository, retrier Retrier) *Service {
	return &Service{
		subs:       subs,
		deliveries: deliveries,
		retrier:    retrier,
	}
}

// parsePeriod maps the API period parameter to a lookback duration
func parsePeriod(period string) (string, time.Duration, bool) {
	switch period {
	case "", "24h":
		return "24h", 24 * time.Hour, true
	case "1h":
		return "1h", time.Hour, true
	case "7d":
		return "7d", 7 * 24 * time.Hour, true
	case "30d":
		return "30d", 30 * 24 * time.Hour, true
	default:
		return "", 0, false
	}
}

// Analytics aggregates the subscription's deliveries over the period
func (s *Service) Analytics(
	ctx context.Context,
	subscriptionID, period string,
	principal *common.Principal,
) common.Result[*Report] {
	sub, ucErr := s.loadOwned(ctx, subscriptionID, principal)
	if ucErr != nil {
		return common.Failure[*Report](ucErr)
	}

	label, lookback, ok := parsePeriod(period)
	if !ok {
		return common.Failure[*Report](
			common.ValidationError(common.ErrCodeInvalidValue, "Unknown analytics period",
				map[string]any{"period": period, "allowed": []string{"1h", "24h", "7d", "30d"}}),
		)
	}

	rows, err := s.deliveries.ListBySubscriptionSince(ctx, sub.ID, time.Now().UTC().Add(-lookback))
	if err != nil {
		return common.Failure[*Report](
			common.InternalError(common.ErrCodeDBError, "Failed to load deliveries",
				map[string]any{"error": err.Error()}),
		)
	}

	report := &Report{
		SubscriptionID: sub.ID,
		Period:         label,
		ByEventType:    make(map[string]int64),
		ByStatus:       make(map[string]int64),
	}

	var responseTotal int64
	var responseCount int64
	for _, d := range rows {
		report.Total++
		report.ByStatus[string(d.Status)]++
		if d.EventType != "" {
			report.ByEventType[d.EventType]++
		}

		switch d.Status {
		case dispatch.StatusDelivered:
			report.Succeeded++
		case dispatch.StatusAbandoned:
			report.Failed++
		default:
			report.Pending++
		}

		if d.ResponseTimeMillis > 0 {
			responseTotal += d.ResponseTimeMillis
			responseCount++
		}
	}

	if report.Total > 0 {
		report.SuccessRate = float64(report.Succeeded) / float64(report.Total)
	}
	if responseCount > 0 {
		report.AvgResponseMillis = float64(responseTotal) / float64(responseCount)
	}

	return common.Success(report)
}

// ManualRetry resets the selected deliveries to pending and re-executes
// them through the dispatch pool, batch by batch
func (s *Service) ManualRetry(
	ctx context.Context,
	req RetryRequest,
	principal *common.Principal,
) common.Result[*RetryResult] {
	if principal == nil {
		return common.Failure[*RetryResult](
			common.UnauthenticatedError("NO_PRINCIPAL", "Authentication is required", nil),
		)
	}

	if len(req.DeliveryIDs) > 0 && req.WebhookID != "" {
		return common.Failure[*RetryResult](
			common.ValidationError(common.ErrCodeInvalidValue,
				"Provide either deliveryIds or webhookId, not both", nil),
		)
	}

	var ids []string
	var ucErr *common.UseCaseError
	switch {
	case len(req.DeliveryIDs) > 0:
		ids, ucErr = s.selectByIDs(ctx, req.DeliveryIDs, principal)
	case req.WebhookID != "":
		ids, ucErr = s.selectByWebhook(ctx, req, principal)
	default:
		return common.Failure[*RetryResult](
			common.ValidationError(common.ErrCodeRequired,
				"Either deliveryIds or webhookId is required", nil),
		)
	}
	if ucErr != nil {
		return common.Failure[*RetryResult](ucErr)
	}

	result := s.retryAll(ctx, ids)
	slog.Info("Manual retry finished",
		"total", result.Total,
		"success", result.Success,
		"failed", result.Failed)
	return common.Success(result)
}

// selectByIDs resolves explicit delivery IDs, enforcing ownership of the
// subscription behind every row
func (s *Service) selectByIDs(
	ctx context.Context,
	deliveryIDs []string,
	principal *common.Principal,
) ([]string, *common.UseCaseError) {
	ids := make([]string, 0, len(deliveryIDs))
	for _, id := range deliveryIDs {
		d, err := s.deliveries.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, dispatch.ErrNotFound) {
				return nil, common.NotFoundError(common.ErrCodeEntityNotFound, "Delivery not found",
					map[string]any{"deliveryId": id})
			}
			return nil, common.InternalError(common.ErrCodeDBError, "Failed to load delivery",
				map[string]any{"error": err.Error()})
		}

		if _, ucErr := s.loadOwned(ctx, d.SubscriptionID, principal); ucErr != nil {
			return nil, ucErr
		}
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// selectByWebhook resolves retry candidates by subscription and status
// filter. "failed" selects rows awaiting retry, "abandoned" dead-lettered
// ones.
func (s *Service) selectByWebhook(
	ctx context.Context,
	req RetryRequest,
	principal *common.Principal,
) ([]string, *common.UseCaseError) {
	sub, ucErr := s.loadOwned(ctx, req.WebhookID, principal)
	if ucErr != nil {
		return nil, ucErr
	}

	var wantStatus dispatch.Status
	switch req.Status {
	case "", "failed":
		wantStatus = dispatch.StatusRetrying
	case "abandoned":
		wantStatus = dispatch.StatusAbandoned
	default:
		return nil, common.ValidationError(common.ErrCodeInvalidValue,
			"Retry status filter must be failed or abandoned",
			map[string]any{"status": req.Status})
	}

	maxAge := req.maxAgeHours()
	if maxAge <= 0 {
		maxAge = 24
	}
	if maxAge > 168 {
		maxAge = 168
	}

	rows, err := s.deliveries.ListBySubscriptionSince(ctx, sub.ID,
		time.Now().UTC().Add(-time.Duration(maxAge)*time.Hour))
	if err != nil {
		return nil, common.InternalError(common.ErrCodeDBError, "Failed to load deliveries",
			map[string]any{"error": err.Error()})
	}

	var ids []string
	for _, d := range rows {
		if d.Status == wantStatus {
			ids = append(ids, d.ID)
		}
	}
	return ids, nil
}

// retryAll resets and re-executes deliveries in fixed-size batches; every
// entry lands in either Success or Failed
func (s *Service) retryAll(ctx context.Context, ids []string) *RetryResult {
	result := &RetryResult{Total: len(ids)}

	var mu sync.Mutex
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			result.Success++
			return
		}
		result.Failed++
		if len(result.Errors) < maxReportedErrors {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	for start := 0; start < len(ids); start += retryBatchSize {
		end := start + retryBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		var wg sync.WaitGroup
		for _, id := range ids[start:end] {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				record(s.retryOne(ctx, id))
			}(id)
		}
		wg.Wait()
	}
	return result
}

func (s *Service) retryOne(ctx context.Context, id string) error {
	if err := s.deliveries.ResetForRetry(ctx, id); err != nil {
		return fmt.Errorf("%s: reset failed: %w", id, err)
	}
	d, err := s.retrier.RetryDelivery(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}
	if d.Status != dispatch.StatusDelivered {
		return fmt.Errorf("%s: ended %s: %s", id, d.Status, d.LastError)
	}
	return nil
}

func (s *Service) loadOwned(
	ctx context.Context,
	subscriptionID string,
	principal *common.Principal,
) (*registry.Subscription, *common.UseCaseError) {
	if principal == nil {
		return nil, common.UnauthenticatedError("NO_PRINCIPAL", "Authentication is required", nil)
	}
	if subscriptionID == "" {
		return nil, common.ValidationError("MISSING_ID", "Webhook id is required", nil)
	}

	sub, err := s.subs.FindByID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, common.NotFoundError(common.ErrCodeEntityNotFound, "Webhook not found",
				map[string]any{"id": subscriptionID})
		}
		return nil, common.InternalError(common.ErrCodeDBError, "Failed to load webhook",
			map[string]any{"error": err.Error()})
	}
	if !principal.Owns(sub.OwnerID) {
		return nil, common.UnauthorizedError("NOT_OWNER", "Webhook belongs to another owner",
			map[string]any{"id": subscriptionID})
	}
	return sub, nil
}
