package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Mister-Storm/slipnotify/ratelimit"
)

func TestAllowExhaustsBudget(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{Limit: 3, Window: time.Hour})

	for i := 0; i < 3; i++ {
		d := l.Allow("client-a")
		if !d.Allowed {
			t.Fatalf("request %d rejected within budget", i+1)
		}
	}

	d := l.Allow("client-a")
	if d.Allowed {
		t.Fatal("request allowed beyond budget")
	}
	if d.RetryAfter <= 0 {
		t.Error("expected positive RetryAfter when rejected")
	}
}

func TestAllowRemainingCountsDown(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{Limit: 3, Window: time.Hour})

	want := []int{2, 1, 0}
	for i, w := range want {
		d := l.Allow("client-a")
		if d.Remaining != w {
			t.Errorf("request %d: remaining = %d, want %d", i+1, d.Remaining, w)
		}
	}
}

func TestAllowIsolatesClients(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{Limit: 1, Window: time.Hour})

	if d := l.Allow("client-a"); !d.Allowed {
		t.Fatal("first request for client-a rejected")
	}
	if d := l.Allow("client-a"); d.Allowed {
		t.Fatal("client-a not limited")
	}
	if d := l.Allow("client-b"); !d.Allowed {
		t.Fatal("client-b throttled by client-a's bucket")
	}
}

func TestAllowRefills(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{Limit: 10, Window: 100 * time.Millisecond})

	for i := 0; i < 10; i++ {
		l.Allow("client-a")
	}
	if d := l.Allow("client-a"); d.Allowed {
		t.Fatal("expected empty bucket")
	}

	time.Sleep(120 * time.Millisecond)
	if d := l.Allow("client-a"); !d.Allowed {
		t.Fatal("expected refill after window")
	}
}

func TestAllowConcurrentClients(t *testing.T) {
	const limit = 8
	l := ratelimit.New(ratelimit.Config{Limit: limit, Window: time.Hour})

	keys := []string{"client-a", "client-b", "client-c", "client-d"}
	allowed := make([]atomic.Int32, len(keys))

	var wg sync.WaitGroup
	for i, key := range keys {
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(i int, key string) {
				defer wg.Done()
				for r := 0; r < limit; r++ {
					if l.Allow(key).Allowed {
						allowed[i].Add(1)
					}
				}
			}(i, key)
		}
	}
	wg.Wait()

	for i, key := range keys {
		if got := allowed[i].Load(); got != limit {
			t.Errorf("%s: allowed = %d, want %d", key, got, limit)
		}
	}
}

func TestReset(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{Limit: 1, Window: time.Hour})

	l.Allow("client-a")
	if d := l.Allow("client-a"); d.Allowed {
		t.Fatal("not limited")
	}

	l.Reset("client-a")
	if d := l.Allow("client-a"); !d.Allowed {
		t.Fatal("expected fresh bucket after reset")
	}
}

func TestClientKeyPrecedence(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:4321"

	if got := ratelimit.ClientKey(r); got != "ip:10.0.0.1" {
		t.Errorf("key = %q, want ip:10.0.0.1", got)
	}

	r.Header.Set("X-Real-IP", "203.0.113.9")
	if got := ratelimit.ClientKey(r); got != "ip:203.0.113.9" {
		t.Errorf("key = %q, want ip:203.0.113.9", got)
	}

	r.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.2")
	if got := ratelimit.ClientKey(r); got != "ip:198.51.100.4" {
		t.Errorf("key = %q, want first forwarded hop", got)
	}

	r.Header.Set("X-Client-Id", "tenant-7")
	if got := ratelimit.ClientKey(r); got != "client:tenant-7" {
		t.Errorf("key = %q, want client:tenant-7", got)
	}

	r.Header.Set("X-API-Key", "sk-123")
	if got := ratelimit.ClientKey(r); got != "api:sk-123" {
		t.Errorf("key = %q, want api:sk-123", got)
	}
}

func TestMiddleware(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{Limit: 2, Window: time.Hour})
	handler := ratelimit.Middleware(l, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", "sk-1")
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "sk-1")
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("remaining header = %q, want 0", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestJanitorEvictsIdleBuckets(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{
		Limit:        10,
		Window:       time.Hour,
		IdleEviction: 20 * time.Millisecond,
	})
	l.Start(t.Context())
	defer l.Stop(t.Context())

	l.Allow("client-a")
	if l.Len() != 1 {
		t.Fatalf("buckets = %d, want 1", l.Len())
	}

	deadline := time.Now().Add(time.Second)
	for l.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if l.Len() != 0 {
		t.Error("idle bucket not evicted")
	}
}
