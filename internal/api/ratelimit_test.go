package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenBucketTake(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bucket := newTokenBucket(5, 1, start)

	for i := 0; i < 5; i++ {
		if ok, _, _ := bucket.take(start); !ok {
			t.Fatalf("request %d should be allowed (burst)", i+1)
		}
	}
	ok, remaining, full := bucket.take(start)
	if ok {
		t.Error("6th request should be denied")
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
	if want := start.Add(5 * time.Second); !full.Equal(want) {
		t.Errorf("full at %v, want %v", full, want)
	}

	later := start.Add(1100 * time.Millisecond)
	if ok, _, _ := bucket.take(later); !ok {
		t.Error("request after refill should be allowed")
	}
	if ok, _, _ := bucket.take(later); ok {
		t.Error("request should be denied after using the refilled token")
	}
}

func TestTokenBucketCapsAtCapacity(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bucket := newTokenBucket(3, 10, start)

	_, remaining, _ := bucket.take(start.Add(time.Hour))
	if remaining != 2 {
		t.Errorf("remaining = %d, want 2", remaining)
	}
}

func newTestLimiter(t *testing.T, cfg RateLimiterConfig, now *time.Time) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(cfg)
	rl.now = func() time.Time { return *now }
	t.Cleanup(rl.Close)
	return rl
}

func TestRateLimiterPerIP(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newTestLimiter(t, RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 2}, &now)

	for i := 0; i < 2; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("third request should be denied")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("a different IP has its own bucket")
	}
}

func TestRateLimiterDefaultBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60})
	defer rl.Close()
	if rl.config.BurstSize != 10 {
		t.Errorf("BurstSize = %d, want default 10", rl.config.BurstSize)
	}
}

func TestRateLimiterSweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newTestLimiter(t, RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 2}, &now)

	rl.Allow("10.0.0.1")
	now = now.Add(2 * time.Minute)
	rl.Allow("10.0.0.2")

	now = now.Add(4 * time.Minute)
	if n := rl.sweep(); n != 1 {
		t.Errorf("sweep removed %d buckets, want 1", n)
	}
	rl.mu.Lock()
	_, kept := rl.buckets["10.0.0.2"]
	rl.mu.Unlock()
	if !kept {
		t.Error("recently used bucket should survive the sweep")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newTestLimiter(t, RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 1}, &now)
	handler := rl.Middleware(okHandler())

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	first := send()
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d", first.Code)
	}
	if first.Header().Get("X-RateLimit-Limit") != "60" {
		t.Errorf("X-RateLimit-Limit = %q", first.Header().Get("X-RateLimit-Limit"))
	}

	second := send()
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("Retry-After should be set")
	}
	if resp := decodeResponse(t, second); resp.Error == nil || resp.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("unexpected body %+v", resp)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name     string
		xff      string
		realIP   string
		remote   string
		expected string
	}{
		{"remote addr", "", "", "192.0.2.1:1234", "192.0.2.1"},
		{"forwarded", "203.0.113.5, 10.0.0.1", "", "10.0.0.1:80", "203.0.113.5"},
		{"invalid forwarded", "not-an-ip", "198.51.100.7", "10.0.0.1:80", "198.51.100.7"},
		{"ipv6", "", "", "[2001:db8::1]:443", "2001:db8::1"},
		{"garbage", "", "", "garbage", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := getClientIP(req); got != tt.expected {
				t.Errorf("getClientIP() = %q, want %q", got, tt.expected)
			}
		})
	}
}
