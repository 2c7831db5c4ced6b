package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Mister-Storm/slipnotify"
	"github.com/Mister-Storm/slipnotify/api"
	"github.com/Mister-Storm/slipnotify/ratelimit"
	"github.com/Mister-Storm/slipnotify/store/memory"
)

// testServer builds a handler over a memory-backed notifier.
func testServer(t *testing.T, opts api.Options) *httptest.Server {
	t.Helper()

	n, err := slipnotify.New(
		slipnotify.WithStore(memory.New()),
		slipnotify.WithRetryDelay(time.Millisecond),
		slipnotify.WithMaxRetries(1),
	)
	if err != nil {
		t.Fatal(err)
	}
	return httptest.NewServer(api.NewHandler(n, opts))
}

func doJSON(t *testing.T, method, url string, body any, headers ...string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func createSubscriber(t *testing.T, baseURL, targetURL string) map[string]any {
	t.Helper()
	resp := doJSON(t, "POST", baseURL+"/api/webhooks", map[string]any{
		"url":    targetURL,
		"events": []string{"SLIP_PAID"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	var sub map[string]any
	decodeBody(t, resp, &sub)
	return sub
}

// --- Webhooks ---

func TestWebhooks_CRUD(t *testing.T) {
	srv := testServer(t, api.Options{})
	defer srv.Close()

	sub := createSubscriber(t, srv.URL, "https://example.com/hook")
	subID, ok := sub["id"].(string)
	if !ok || subID == "" {
		t.Fatal("expected non-empty subscriber ID")
	}
	secret, _ := sub["secret"].(string)
	if secret == "" {
		t.Fatal("expected the secret in the create response")
	}

	// Get never serializes the secret.
	resp := doJSON(t, "GET", srv.URL+"/api/webhooks/"+subID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	var fetched map[string]any
	decodeBody(t, resp, &fetched)
	if _, leaked := fetched["secret"]; leaked {
		t.Fatal("secret must not appear outside the create response")
	}

	// List
	resp = doJSON(t, "GET", srv.URL+"/api/webhooks", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	var subs []map[string]any
	decodeBody(t, resp, &subs)
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", len(subs))
	}

	// Rotate secret
	resp = doJSON(t, "POST", srv.URL+"/api/webhooks/"+subID+"/rotate-secret", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rotate: expected 200, got %d", resp.StatusCode)
	}
	var rotated map[string]string
	decodeBody(t, resp, &rotated)
	if rotated["secret"] == "" || rotated["secret"] == secret {
		t.Fatal("expected a fresh secret")
	}

	// Soft delete
	resp = doJSON(t, "DELETE", srv.URL+"/api/webhooks/"+subID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Row survives for audit, flagged inactive.
	resp = doJSON(t, "GET", srv.URL+"/api/webhooks/"+subID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get after delete: expected 200, got %d", resp.StatusCode)
	}
	var deleted map[string]any
	decodeBody(t, resp, &deleted)
	if deleted["active"] != false {
		t.Fatalf("expected active=false, got %v", deleted["active"])
	}
}

func TestWebhooks_CreateValidation(t *testing.T) {
	srv := testServer(t, api.Options{})
	defer srv.Close()

	resp := doJSON(t, "POST", srv.URL+"/api/webhooks", map[string]any{
		"url":    "ftp://example.com/hook",
		"events": []string{"SLIP_PAID"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad scheme: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "POST", srv.URL+"/api/webhooks", map[string]any{
		"url": "https://example.com/hook",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("no events: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestWebhooks_InvalidID(t *testing.T) {
	srv := testServer(t, api.Options{})
	defer srv.Close()

	resp := doJSON(t, "GET", srv.URL+"/api/webhooks/not-a-valid-id", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestWebhooks_TestDelivery(t *testing.T) {
	received := make(chan string, 1)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get("X-Webhook-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	srv := testServer(t, api.Options{})
	defer srv.Close()

	sub := createSubscriber(t, srv.URL, target.URL)
	subID := sub["id"].(string)

	resp := doJSON(t, "POST", srv.URL+"/api/webhooks/"+subID+"/test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("test: expected 200, got %d", resp.StatusCode)
	}
	var outcome map[string]any
	decodeBody(t, resp, &outcome)
	if outcome["delivered"] != true {
		t.Fatalf("expected delivered=true, got %v", outcome)
	}
	if <-received != "TEST" {
		t.Fatal("expected a TEST event header on the probe")
	}
}

func TestWebhooks_TestDeliveryFailure(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer target.Close()

	srv := testServer(t, api.Options{})
	defer srv.Close()

	sub := createSubscriber(t, srv.URL, target.URL)
	subID := sub["id"].(string)

	resp := doJSON(t, "POST", srv.URL+"/api/webhooks/"+subID+"/test", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("test: expected 502, got %d", resp.StatusCode)
	}
	var outcome map[string]any
	decodeBody(t, resp, &outcome)
	if outcome["delivered"] != false {
		t.Fatalf("expected delivered=false, got %v", outcome)
	}
}

func TestDeliveries_ListEmpty(t *testing.T) {
	srv := testServer(t, api.Options{})
	defer srv.Close()

	sub := createSubscriber(t, srv.URL, "https://example.com/hook")
	subID := sub["id"].(string)

	resp := doJSON(t, "GET", srv.URL+"/api/webhooks/"+subID+"/deliveries", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list deliveries: expected 200, got %d", resp.StatusCode)
	}
	var attempts []map[string]any
	decodeBody(t, resp, &attempts)
	if len(attempts) != 0 {
		t.Fatalf("expected 0 attempts, got %d", len(attempts))
	}
}

// --- DLQ ---

func TestDLQ_ListEmptyAndStats(t *testing.T) {
	srv := testServer(t, api.Options{})
	defer srv.Close()

	resp := doJSON(t, "GET", srv.URL+"/api/dlq", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list dlq: expected 200, got %d", resp.StatusCode)
	}
	var entries []map[string]any
	decodeBody(t, resp, &entries)
	if len(entries) != 0 {
		t.Fatalf("expected 0 entries, got %d", len(entries))
	}

	resp = doJSON(t, "GET", srv.URL+"/api/dlq/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", resp.StatusCode)
	}
	var stats map[string]any
	decodeBody(t, resp, &stats)
	if _, ok := stats["pending"]; !ok {
		t.Fatal("expected pending count in stats")
	}
}

func TestDLQ_ResolveInvalidID(t *testing.T) {
	srv := testServer(t, api.Options{})
	defer srv.Close()

	resp := doJSON(t, "POST", srv.URL+"/api/dlq/not-a-valid-id/resolve", map[string]any{
		"resolved_by": "ops",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid id: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDLQ_Purge(t *testing.T) {
	srv := testServer(t, api.Options{})
	defer srv.Close()

	resp := doJSON(t, "POST", srv.URL+"/api/dlq/purge", map[string]any{
		"older_than_days": 7,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("purge: expected 200, got %d", resp.StatusCode)
	}
	var purged map[string]int64
	decodeBody(t, resp, &purged)
	if purged["purged"] != 0 {
		t.Fatalf("expected 0 purged, got %d", purged["purged"])
	}
}

// --- Admin ---

func TestAdmin_TriggerSweep(t *testing.T) {
	srv := testServer(t, api.Options{})
	defer srv.Close()

	resp := doJSON(t, "POST", srv.URL+"/api/admin/sweep", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sweep: expected 200, got %d", resp.StatusCode)
	}
	var counters map[string]any
	decodeBody(t, resp, &counters)
	if _, ok := counters["scanned"]; !ok {
		t.Fatal("expected scanned counter in response")
	}
}

// --- Cross-cutting middleware ---

func TestHealth(t *testing.T) {
	srv := testServer(t, api.Options{})
	defer srv.Close()

	resp := doJSON(t, "GET", srv.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %q", body["status"])
	}
}

func TestIdempotentCreateReplays(t *testing.T) {
	srv := testServer(t, api.Options{})
	defer srv.Close()

	body := map[string]any{
		"url":    "https://example.com/hook",
		"events": []string{"SLIP_PAID"},
	}

	resp := doJSON(t, "POST", srv.URL+"/api/webhooks", body, "Idempotency-Key", "key-1")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first: expected 201, got %d", resp.StatusCode)
	}
	var first map[string]any
	decodeBody(t, resp, &first)

	resp = doJSON(t, "POST", srv.URL+"/api/webhooks", body, "Idempotency-Key", "key-1")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("replay: expected cached 201, got %d", resp.StatusCode)
	}
	var second map[string]any
	decodeBody(t, resp, &second)

	if first["id"] != second["id"] {
		t.Fatalf("replay created a new subscriber: %v vs %v", first["id"], second["id"])
	}

	// Only one row should exist.
	resp = doJSON(t, "GET", srv.URL+"/api/webhooks", nil)
	var subs []map[string]any
	decodeBody(t, resp, &subs)
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", len(subs))
	}
}

func TestIdempotencyKeyReuseConflicts(t *testing.T) {
	srv := testServer(t, api.Options{})
	defer srv.Close()

	resp := doJSON(t, "POST", srv.URL+"/api/webhooks", map[string]any{
		"url":    "https://example.com/hook",
		"events": []string{"SLIP_PAID"},
	}, "Idempotency-Key", "key-1")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Same key, different route shape.
	resp = doJSON(t, "POST", srv.URL+"/api/dlq/purge", nil, "Idempotency-Key", "key-1")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("reuse: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRateLimitRejects(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{Limit: 2, Window: time.Hour})
	srv := testServer(t, api.Options{Limiter: limiter})
	defer srv.Close()

	for i := 0; i < 2; i++ {
		resp := doJSON(t, "GET", srv.URL+"/health", nil, "X-API-Key", "client-a")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := doJSON(t, "GET", srv.URL+"/health", nil, "X-API-Key", "client-a")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("expected a Retry-After header")
	}
	resp.Body.Close()

	// Other clients keep their own budget.
	resp = doJSON(t, "GET", srv.URL+"/health", nil, "X-API-Key", "client-b")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("isolated client: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
