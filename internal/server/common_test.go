package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSMiddlewareEmptyConfig(t *testing.T) {
	handler := CORSMiddlewareWithConfig(CORSConfig{}, okHandler())

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("empty config should allow all origins")
	}
	if resp.Header.Get("Access-Control-Allow-Credentials") != "" {
		t.Error("should not set credentials with wildcard origin")
	}
	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "PUT") {
		t.Errorf("methods = %q, want PUT allowed", resp.Header.Get("Access-Control-Allow-Methods"))
	}
	if !strings.Contains(resp.Header.Get("Access-Control-Expose-Headers"), "ETag") {
		t.Error("ETag should be exposed to browsers")
	}
}

func TestCORSMiddlewareWithConfigRestrictedOrigins(t *testing.T) {
	cfg := CORSConfig{
		AllowedOrigins: []string{"https://example.com", "*.psalms.test"},
	}
	handler := CORSMiddlewareWithConfig(cfg, okHandler())

	tests := []struct {
		name              string
		origin            string
		expectAllowOrigin string
		expectCredentials bool
	}{
		{"allowed origin", "https://example.com", "https://example.com", true},
		{"wildcard subdomain", "https://app.psalms.test", "https://app.psalms.test", true},
		{"disallowed origin", "https://evil.com", "", false},
		{"suffix without dot", "https://evilpsalms.test", "", false},
		{"no origin header", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			resp := w.Result()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected status 200, got %d", resp.StatusCode)
			}
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.expectAllowOrigin {
				t.Errorf("expected Allow-Origin %q, got %q", tt.expectAllowOrigin, got)
			}
			if got := resp.Header.Get("Access-Control-Allow-Credentials") == "true"; got != tt.expectCredentials {
				t.Errorf("expected credentials %v, got %v", tt.expectCredentials, got)
			}
		})
	}
}

func TestCORSMiddlewareOptionsRequest(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"https://example.com"}}
	handler := CORSMiddlewareWithConfig(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for OPTIONS request")
	}))

	tests := []struct {
		origin string
		want   int
	}{
		{"https://example.com", http.StatusNoContent},
		{"https://evil.com", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/sessions", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestAbsPath(t *testing.T) {
	for _, path := range []string{"lectio.db", "./data/lectio.db", "../lectio.db", "/tmp/lectio.db"} {
		got := AbsPath(path)
		if !filepath.IsAbs(got) {
			t.Errorf("AbsPath(%q) = %q, want absolute", path, got)
		}
	}
}

func TestTimingMiddleware(t *testing.T) {
	handler := TimingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("unexpected response %d %q", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(w.Header().Get("Server-Timing"), "app;dur=") {
		t.Errorf("Server-Timing = %q", w.Header().Get("Server-Timing"))
	}
}

func TestTimingMiddlewareExplicitStatus(t *testing.T) {
	handler := TimingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d", w.Code)
	}
	if w.Header().Get("Server-Timing") == "" {
		t.Error("Server-Timing should be set before an explicit status")
	}
}
