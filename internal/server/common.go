// Package server provides shared middleware for the HTTP surface.
package server

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/FocuswithJustin/SacredPsalms/internal/logging"
)

// SlowRequestThreshold is the duration above which a request is logged as slow.
const SlowRequestThreshold = 250 * time.Millisecond

// AbsPath returns the absolute path of a file, or the original path if it fails.
func AbsPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// CORSConfig holds CORS middleware configuration.
type CORSConfig struct {
	AllowedOrigins []string // empty allows all (*)
}

// Permissive reports whether every origin is allowed.
func (c CORSConfig) Permissive() bool {
	return len(c.AllowedOrigins) == 0
}

// Allows reports whether origin may call the API. Entries of the form
// "*.example.com" match any subdomain.
func (c CORSConfig) Allows(origin string) bool {
	if c.Permissive() {
		return true
	}
	if origin == "" {
		return false
	}
	for _, allowed := range c.AllowedOrigins {
		switch {
		case allowed == "*", allowed == origin:
			return true
		case strings.HasPrefix(allowed, "*."):
			if strings.HasSuffix(origin, allowed[1:]) {
				return true
			}
		}
	}
	return false
}

// CORSMiddlewareWithConfig adds CORS headers to responses. Requests from an
// origin outside the allowed list get no CORS headers, so browsers block
// them; their preflights are refused with 403.
func CORSMiddlewareWithConfig(cfg CORSConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowedOrigin := "*"
		if !cfg.Permissive() {
			if !cfg.Allows(origin) {
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			allowedOrigin = origin
			w.Header().Add("Vary", "Origin")
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", allowedOrigin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, If-None-Match")
		h.Set("Access-Control-Expose-Headers", "ETag, X-Request-ID, Server-Timing")
		if allowedOrigin != "*" {
			h.Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// timingWriter stamps the Server-Timing header just before the status line
// is written.
type timingWriter struct {
	http.ResponseWriter
	start   time.Time
	written bool
}

func (tw *timingWriter) WriteHeader(code int) {
	if !tw.written {
		tw.written = true
		ms := float64(time.Since(tw.start).Microseconds()) / 1000
		tw.Header().Set("Server-Timing", fmt.Sprintf("app;dur=%.2f", ms))
	}
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timingWriter) Write(b []byte) (int, error) {
	if !tw.written {
		tw.WriteHeader(http.StatusOK)
	}
	return tw.ResponseWriter.Write(b)
}

func (tw *timingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := tw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	tw.written = true
	return h.Hijack()
}

func (tw *timingWriter) Unwrap() http.ResponseWriter { return tw.ResponseWriter }

// TimingMiddleware reports handler time in a Server-Timing header and logs
// slow requests.
func TimingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(&timingWriter{ResponseWriter: w, start: start}, r)

		if d := time.Since(start); d > SlowRequestThreshold {
			logging.WarnContext(r.Context(), "slow request",
				"method", r.Method,
				"path", r.URL.Path,
				"duration_ms", d.Milliseconds())
		}
	})
}
