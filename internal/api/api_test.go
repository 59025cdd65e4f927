package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"go.hookrelay.dev/internal/analytics"
	"go.hookrelay.dev/internal/dispatch"
	"go.hookrelay.dev/internal/publisher"
	"go.hookrelay.dev/internal/registry"
	"go.hookrelay.dev/internal/security"
)

// memSubs is an in-memory registry.Repository for handler tests
type memSubs struct {
	mu   sync.Mutex
	subs map[string]*registry.Subscription
}

func newMemSubs() *memSubs {
	return &memSubs{subs: make(map[string]*registry.Subscription)}
}

func (m *memSubs) Insert(_ context.Context, sub *registry.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	return nil
}

func (m *memSubs) Update(_ context.Context, sub *registry.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub.ID]; !ok {
		return registry.ErrNotFound
	}
	m.subs[sub.ID] = sub
	return nil
}

func (m *memSubs) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return registry.ErrNotFound
	}
	delete(m.subs, id)
	return nil
}

func (m *memSubs) FindByID(_ context.Context, id string) (*registry.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return nil, registry.ErrNotFound
	}
	return sub, nil
}

func (m *memSubs) List(_ context.Context, opts registry.ListOptions) ([]*registry.Subscription, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*registry.Subscription
	for _, sub := range m.subs {
		if opts.OwnerID != "" && sub.OwnerID != opts.OwnerID {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (m *memSubs) FindActiveByEventType(_ context.Context, eventType string) ([]*registry.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*registry.Subscription
	for _, sub := range m.subs {
		if sub.Active && sub.MatchesEventType(eventType) {
			out = append(out, sub)
		}
	}
	return out, nil
}

// memEvents is an in-memory publisher.Repository
type memEvents struct {
	mu     sync.Mutex
	events map[string]*publisher.Event
}

func newMemEvents() *memEvents {
	return &memEvents{events: make(map[string]*publisher.Event)}
}

func (m *memEvents) Insert(_ context.Context, event *publisher.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ID] = event
	return nil
}

func (m *memEvents) FindByID(_ context.Context, id string) (*publisher.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok {
		return nil, publisher.ErrNotFound
	}
	return event, nil
}

// memDeliveries implements the slice of dispatch.Repository the API layer
// reaches: enqueue, lookup, analytics listing, reset, and purge.
type memDeliveries struct {
	mu   sync.Mutex
	rows map[string]*dispatch.Delivery
}

func newMemDeliveries() *memDeliveries {
	return &memDeliveries{rows: make(map[string]*dispatch.Delivery)}
}

func (m *memDeliveries) EnqueuePending(_ context.Context, subscriptionID, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	id := uuid.NewString()
	m.rows[id] = &dispatch.Delivery{
		ID:             id,
		SubscriptionID: subscriptionID,
		EventID:        eventID,
		EventType:      eventType,
		Status:         dispatch.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return nil
}

func (m *memDeliveries) FindByID(_ context.Context, id string) (*dispatch.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok {
		return nil, dispatch.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDeliveries) Update(_ context.Context, d *dispatch.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.rows[d.ID] = &cp
	return nil
}

func (m *memDeliveries) ClaimPending(_ context.Context, _ int) ([]*dispatch.Delivery, error) {
	return nil, nil
}

func (m *memDeliveries) ClaimDueRetries(_ context.Context, _ time.Time, _ int) ([]*dispatch.Delivery, error) {
	return nil, nil
}

func (m *memDeliveries) ClaimByID(_ context.Context, id string) (*dispatch.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok || (d.Status != dispatch.StatusPending && d.Status != dispatch.StatusRetrying) {
		return nil, dispatch.ErrNotClaimable
	}
	d.Status = dispatch.StatusInProgress
	cp := *d
	return &cp, nil
}

func (m *memDeliveries) ResetForRetry(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok || (d.Status != dispatch.StatusRetrying && d.Status != dispatch.StatusAbandoned) {
		return dispatch.ErrNotRetryable
	}
	d.Status = dispatch.StatusPending
	d.Attempts = 0
	d.NextRetryAt = nil
	d.LastError = ""
	return nil
}

func (m *memDeliveries) CountDeliveredSince(_ context.Context, subscriptionID string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.rows {
		if d.SubscriptionID == subscriptionID && d.Status == dispatch.StatusDelivered &&
			d.DeliveredAt != nil && !d.DeliveredAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memDeliveries) ListBySubscriptionSince(_ context.Context, subscriptionID string, since time.Time) ([]*dispatch.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*dispatch.Delivery
	for _, d := range m.rows {
		if d.SubscriptionID == subscriptionID && !d.CreatedAt.Before(since) {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memDeliveries) DeleteBySubscription(_ context.Context, subscriptionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, d := range m.rows {
		if d.SubscriptionID == subscriptionID {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memDeliveries) SweepDeadLetters(_ context.Context, _ time.Time, _ string) (int64, error) {
	return 0, nil
}

func (m *memDeliveries) PurgeDelivered(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (m *memDeliveries) RecoverStale(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

// markDeliveredRetrier completes any claimed delivery successfully
type markDeliveredRetrier struct {
	deliveries *memDeliveries
}

func (r *markDeliveredRetrier) RetryDelivery(ctx context.Context, id string) (*dispatch.Delivery, error) {
	d, err := r.deliveries.ClaimByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	d.Status = dispatch.StatusDelivered
	d.Attempts++
	d.LastStatusCode = http.StatusOK
	d.DeliveredAt = &now
	if err := r.deliveries.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

type testServer struct {
	server     *httptest.Server
	auth       *AuthMiddleware
	subs       *memSubs
	events     *memEvents
	deliveries *memDeliveries
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	subs := newMemSubs()
	events := newMemEvents()
	deliveries := newMemDeliveries()

	validator := security.NewValidator(1 << 20)
	pub := publisher.NewPublisher(events, subs, deliveries, validator)
	batcher := publisher.NewBatcher(pub, publisher.DefaultBatcherConfig())

	svc := analytics.NewService(subs, deliveries, &markDeliveredRetrier{deliveries: deliveries})

	auth := NewAuthMiddleware("api-test-secret", "hookrelay-test")
	webhooks := NewWebhookHandler(subs, validator, deliveries, svc, pub)
	eventHandler := NewEventHandler(pub, batcher)
	health := NewHealthHandler(nil, func(context.Context) error { return nil })

	router := NewRouter(RouterConfig{CORSOrigins: []string{"*"}}, auth, webhooks, eventHandler, health)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{
		server:     server,
		auth:       auth,
		subs:       subs,
		events:     events,
		deliveries: deliveries,
	}
}

func (ts *testServer) token(t *testing.T, subject string) string {
	t.Helper()
	token, err := ts.auth.IssueToken(subject, "Test User", false, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (ts *testServer) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func validCreateBody(name string) map[string]any {
	return map[string]any{
		"name":       name,
		"targetUrl":  "https://example.com/hooks",
		"eventTypes": []string{"order.created"},
	}
}

func TestRequireAuthRejectsMissingAndBadTokens(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/api/v1/webhooks", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", resp.StatusCode)
	}

	resp = ts.request(t, http.MethodGet, "/api/v1/webhooks", "not-a-jwt", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token: status = %d, want 401", resp.StatusCode)
	}

	other := NewAuthMiddleware("different-secret", "hookrelay-test")
	forged, err := other.IssueToken("owner-1", "Mallory", false, time.Hour)
	if err != nil {
		t.Fatalf("issue forged token: %v", err)
	}
	resp = ts.request(t, http.MethodGet, "/api/v1/webhooks", forged, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong secret: status = %d, want 401", resp.StatusCode)
	}
}

func TestIssueTokenRoundTrip(t *testing.T) {
	auth := NewAuthMiddleware("roundtrip-secret", "hookrelay-test")
	token, err := auth.IssueToken("owner-9", "Ada", true, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	principal, err := auth.validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if principal.Subject != "owner-9" || principal.Name != "Ada" || !principal.Admin {
		t.Errorf("principal = %+v, want owner-9/Ada/admin", principal)
	}
}

func TestWebhookCRUDFlow(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, "owner-1")

	resp := ts.request(t, http.MethodPost, "/api/v1/webhooks", token, validCreateBody("orders hook"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status = %d, want 201", resp.StatusCode)
	}
	var created registry.Subscription
	decodeBody(t, resp, &created)
	if created.ID == "" {
		t.Fatal("create: response has no id")
	}
	if created.OwnerID != "owner-1" {
		t.Errorf("create: ownerId = %q, want owner-1", created.OwnerID)
	}

	resp = ts.request(t, http.MethodGet, "/api/v1/webhooks/"+created.ID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: status = %d, want 200", resp.StatusCode)
	}
	var fetched registry.Subscription
	decodeBody(t, resp, &fetched)
	if fetched.Name != "orders hook" {
		t.Errorf("get: name = %q", fetched.Name)
	}

	resp = ts.request(t, http.MethodGet, "/api/v1/webhooks", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status = %d, want 200", resp.StatusCode)
	}
	var page PagedResponse[*registry.Subscription]
	decodeBody(t, resp, &page)
	if page.TotalItems != 1 || len(page.Data) != 1 {
		t.Errorf("list: total = %d, items = %d, want 1", page.TotalItems, len(page.Data))
	}

	resp = ts.request(t, http.MethodPut, "/api/v1/webhooks/"+created.ID, token, map[string]any{
		"name": "renamed hook",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: status = %d, want 200", resp.StatusCode)
	}
	var updated registry.Subscription
	decodeBody(t, resp, &updated)
	if updated.Name != "renamed hook" {
		t.Errorf("update: name = %q", updated.Name)
	}

	resp = ts.request(t, http.MethodDelete, "/api/v1/webhooks/"+created.ID, token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: status = %d, want 200", resp.StatusCode)
	}

	resp = ts.request(t, http.MethodGet, "/api/v1/webhooks/"+created.ID, token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: status = %d, want 404", resp.StatusCode)
	}
}

func TestCreateWebhookRejectsUnsafeTarget(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, "owner-1")

	body := validCreateBody("bad hook")
	body["targetUrl"] = "http://169.254.169.254/latest/meta-data"

	resp := ts.request(t, http.MethodPost, "/api/v1/webhooks", token, body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var errResp ErrorResponse
	decodeBody(t, resp, &errResp)
	if errResp.Error == "" {
		t.Error("expected an error message in the body")
	}
}

func TestGetWebhookOfAnotherOwnerForbidden(t *testing.T) {
	ts := newTestServer(t)
	ownerToken := ts.token(t, "owner-1")
	otherToken := ts.token(t, "owner-2")

	resp := ts.request(t, http.MethodPost, "/api/v1/webhooks", ownerToken, validCreateBody("private hook"))
	var created registry.Subscription
	decodeBody(t, resp, &created)

	resp = ts.request(t, http.MethodGet, "/api/v1/webhooks/"+created.ID, otherToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestPublishEventFansOut(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, "owner-1")

	resp := ts.request(t, http.MethodPost, "/api/v1/webhooks", token, validCreateBody("orders hook"))
	var created registry.Subscription
	decodeBody(t, resp, &created)

	resp = ts.request(t, http.MethodPost, "/api/v1/events", token, map[string]any{
		"type":    "order.created",
		"payload": map[string]any{"orderId": "o-1"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var result publisher.PublishResult
	decodeBody(t, resp, &result)
	if result.EventID == "" {
		t.Error("expected an event id")
	}
	if result.Deliveries != 1 {
		t.Errorf("deliveries = %d, want 1", result.Deliveries)
	}

	rows, err := ts.deliveries.ListBySubscriptionSince(context.Background(), created.ID, time.Time{})
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != dispatch.StatusPending {
		t.Fatalf("rows = %+v, want one pending delivery", rows)
	}
}

func TestPublishEventRejectsMissingType(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, "owner-1")

	resp := ts.request(t, http.MethodPost, "/api/v1/events", token, map[string]any{
		"payload": map[string]any{"orderId": "o-1"},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestTestDeliveryEndpoint(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, "owner-1")

	resp := ts.request(t, http.MethodPost, "/api/v1/webhooks", token, validCreateBody("orders hook"))
	var created registry.Subscription
	decodeBody(t, resp, &created)

	resp = ts.request(t, http.MethodPost, "/api/v1/webhooks/"+created.ID+"/test", token, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	resp.Body.Close()

	rows, err := ts.deliveries.ListBySubscriptionSince(context.Background(), created.ID, time.Time{})
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1 test delivery", len(rows))
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, "owner-1")

	resp := ts.request(t, http.MethodPost, "/api/v1/webhooks", token, validCreateBody("orders hook"))
	var created registry.Subscription
	decodeBody(t, resp, &created)

	ctx := context.Background()
	now := time.Now().UTC()
	for i, status := range []dispatch.Status{dispatch.StatusDelivered, dispatch.StatusDelivered, dispatch.StatusAbandoned, dispatch.StatusPending} {
		d := &dispatch.Delivery{
			ID:             fmt.Sprintf("d-%d", i),
			SubscriptionID: created.ID,
			EventID:        "evt-1",
			EventType:      "order.created",
			Status:         status,
			CreatedAt:      now.Add(-time.Hour),
			UpdatedAt:      now,
		}
		if status == dispatch.StatusDelivered {
			d.DeliveredAt = &now
			d.ResponseTimeMillis = 120
		}
		if err := ts.deliveries.Update(ctx, d); err != nil {
			t.Fatalf("seed delivery: %v", err)
		}
	}

	resp = ts.request(t, http.MethodGet, "/api/v1/webhooks/"+created.ID+"/analytics?period=24h", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var report analytics.Report
	decodeBody(t, resp, &report)
	if report.Total != 4 || report.Succeeded != 2 || report.Failed != 1 || report.Pending != 1 {
		t.Errorf("report = %+v, want total 4 succeeded 2 failed 1 pending 1", report)
	}
	if report.SuccessRate != 0.5 {
		t.Errorf("successRate = %v, want 0.5", report.SuccessRate)
	}
}

func TestRetryEndpointStatuses(t *testing.T) {
	ts := newTestServer(t)
	ownerToken := ts.token(t, "owner-1")
	otherToken := ts.token(t, "owner-2")

	resp := ts.request(t, http.MethodPost, "/api/v1/webhooks", ownerToken, validCreateBody("orders hook"))
	var created registry.Subscription
	decodeBody(t, resp, &created)

	ctx := context.Background()
	now := time.Now().UTC()
	row := &dispatch.Delivery{
		ID:             "d-retry",
		SubscriptionID: created.ID,
		EventID:        "evt-1",
		EventType:      "order.created",
		Status:         dispatch.StatusAbandoned,
		Attempts:       5,
		CreatedAt:      now.Add(-time.Hour),
		UpdatedAt:      now,
	}
	if err := ts.deliveries.Update(ctx, row); err != nil {
		t.Fatalf("seed delivery: %v", err)
	}

	t.Run("unauthenticated", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost, "/api/v1/webhooks/retry", "", map[string]any{
			"deliveryIds": []string{"d-retry"},
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost, "/api/v1/webhooks/retry", ownerToken, map[string]any{})
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("unknown webhook", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost, "/api/v1/webhooks/retry", ownerToken, map[string]any{
			"webhookId": "nope",
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("not the owner", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost, "/api/v1/webhooks/retry", otherToken, map[string]any{
			"webhookId": created.ID,
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", resp.StatusCode)
		}
	})

	t.Run("retry by ids", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost, "/api/v1/webhooks/retry", ownerToken, map[string]any{
			"deliveryIds": []string{"d-retry"},
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var body struct {
			Message string                `json:"message"`
			Results analytics.RetryResult `json:"results"`
		}
		decodeBody(t, resp, &body)
		if body.Message == "" {
			t.Error("expected a message")
		}
		if body.Results.Total != 1 || body.Results.Success != 1 {
			t.Errorf("results = %+v, want total 1 success 1", body.Results)
		}

		got, err := ts.deliveries.FindByID(ctx, "d-retry")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.Status != dispatch.StatusDelivered {
			t.Errorf("status = %q, want delivered", got.Status)
		}
	})

	t.Run("maxAge wire field accepted", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost, "/api/v1/webhooks/retry", ownerToken, map[string]any{
			"webhookId": created.ID,
			"status":    "abandoned",
			"maxAge":    24,
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var body struct {
			Results analytics.RetryResult `json:"results"`
		}
		decodeBody(t, resp, &body)
		if body.Results.Total != 0 {
			t.Errorf("results.total = %d, want 0 abandoned rows left", body.Results.Total)
		}
	})
}

func TestRetryCompatibilityRoute(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, "owner-1")

	resp := ts.request(t, http.MethodPost, "/webhooks/retry", token, map[string]any{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 through the compat route", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.server.Client().Get(ts.server.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["status"] != "UP" {
		t.Errorf("status = %v, want UP", body["status"])
	}
}
