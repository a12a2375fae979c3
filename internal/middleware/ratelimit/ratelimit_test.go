package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLimiter(t *testing.T, perMinute int) *Limiter {
	t.Helper()
	l := NewLimiter(Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour})
	t.Cleanup(l.Stop)
	return l
}

func TestAllowEnforcesPerMinuteLimit(t *testing.T) {
	l := testLimiter(t, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d unexpectedly limited", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("request over the limit was allowed")
	}
}

func TestAllowTracksClientsIndependently(t *testing.T) {
	l := testLimiter(t, 1)

	if !l.Allow("10.0.0.1") {
		t.Fatal("first client limited on first request")
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("first client not limited on second request")
	}
	if !l.Allow("10.0.0.2") {
		t.Fatal("second client affected by first client's requests")
	}
	if got := l.ActiveClients(); got != 2 {
		t.Fatalf("ActiveClients() = %d, want 2", got)
	}
}

func TestWrapLimitsWritesOnly(t *testing.T) {
	l := testLimiter(t, 1)

	handler := l.Wrap(
		func(*http.Request) string { return "10.0.0.1" },
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
	)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	post := func() int {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
		return rr.Code
	}
	if code := post(); code != http.StatusOK {
		t.Fatalf("first write: status=%d", code)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second write: expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("missing Retry-After header")
	}

	// Reads pass even with the write budget spent.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("read: expected 200, got %d", rr.Code)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	l := NewLimiter(DefaultConfig())
	l.Stop()
	l.Stop()
}
