package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *clock) {
	t.Helper()
	return newTestLimiterConfig(t, Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour})
}

func newTestLimiterConfig(t *testing.T, cfg Config) (*Limiter, *clock) {
	t.Helper()
	rl := NewLimiter(cfg)
	t.Cleanup(rl.Stop)
	c := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl.now = c.now
	return rl, c
}

func TestLimiter_Allow(t *testing.T) {
	rl, c := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Fatalf("fourth request should be limited")
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatalf("other clients are limited separately")
	}

	c.t = c.t.Add(30 * time.Second)
	if rl.Allow("1.2.3.4") {
		t.Fatalf("window has not expired yet")
	}
	if got := rl.RetryAfter("1.2.3.4"); got != 30*time.Second {
		t.Fatalf("RetryAfter = %v, want 30s", got)
	}

	c.t = c.t.Add(31 * time.Second)
	if !rl.Allow("1.2.3.4") {
		t.Fatalf("new window should allow requests")
	}

	if m := rl.GetMetrics(); m.TotalHits != 2 || m.ClientCount != 2 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestLimiter_CleanupStaleEntries(t *testing.T) {
	rl, c := newTestLimiter(t, 3)
	rl.Allow("a")
	c.t = c.t.Add(11 * time.Minute)
	rl.Allow("b")

	if removed := rl.cleanupStaleEntries(); removed != 1 {
		t.Fatalf("expected 1 stale entry removed, got %d", removed)
	}
	if rl.ActiveClients() != 1 {
		t.Fatalf("expected 1 active client, got %d", rl.ActiveClients())
	}
}

func TestLimiter_Middleware(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	h := rl.Middleware(func(*http.Request) string { return "ip" }, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/exports", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first request: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/exports", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "61" {
		t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
}

func TestLimiter_GlobalBucket(t *testing.T) {
	rl, c := newTestLimiterConfig(t, Config{
		RequestsPerMinute: 100,
		CleanupInterval:   time.Hour,
		GlobalPerSecond:   1,
		GlobalBurst:       2,
	})
	h := rl.Middleware(func(r *http.Request) string { return r.RemoteAddr }, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for _, addr := range []string{"a", "b", "c"} {
		req := httptest.NewRequest(http.MethodPost, "/exports", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("request %d: status %d, want %d", i+1, codes[i], want[i])
		}
	}

	c.t = c.t.Add(time.Second)
	if !rl.AllowGlobal() {
		t.Fatalf("bucket should refill after a second")
	}
	if m := rl.GetMetrics(); m.GlobalHits != 1 {
		t.Fatalf("GlobalHits = %d, want 1", m.GlobalHits)
	}
}

func TestLimiter_NoGlobalBucket(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	for i := 0; i < 100; i++ {
		if !rl.AllowGlobal() {
			t.Fatalf("global bucket disabled, request %d limited", i+1)
		}
	}
}
