package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// captureJSON points the global logger at a buffer for the duration of f
// and returns every record written.
func captureJSON(t *testing.T, level Level, f func()) []map[string]any {
	t.Helper()
	var buf bytes.Buffer
	InitLoggerWithWriter(&buf, level, FormatJSON)
	defer InitLogger(LevelInfo, FormatJSON)

	f()

	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		records = append(records, rec)
	}
	return records
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(text) = %v, %v", f, err)
	}
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestInitLoggerLevelFilters(t *testing.T) {
	records := captureJSON(t, LevelWarn, func() {
		Info("hidden")
		Warn("shown")
	})
	if len(records) != 1 || records[0]["msg"] != "shown" {
		t.Fatalf("records = %v", records)
	}
}

func TestTimestampFormat(t *testing.T) {
	records := captureJSON(t, LevelInfo, func() { Info("tick") })
	ts, _ := records[0]["time"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", ts, err)
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerWithWriter(&buf, LevelInfo, FormatText)
	defer InitLogger(LevelInfo, FormatJSON)

	Info("hello", "psalm", 23)
	if !strings.Contains(buf.String(), "msg=hello") || !strings.Contains(buf.String(), "psalm=23") {
		t.Errorf("unexpected text output %q", buf.String())
	}
}

func TestLoggerFromContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithSessionID(ctx, "sess-1")

	records := captureJSON(t, LevelInfo, func() { InfoContext(ctx, "with ids") })
	if records[0]["request_id"] != "req-1" || records[0]["session_id"] != "sess-1" {
		t.Errorf("context ids missing: %v", records[0])
	}

	if GetRequestID(context.Background()) != "" || GetSessionID(context.Background()) != "" {
		t.Error("empty context should carry no ids")
	}
}

func TestDomainEvents(t *testing.T) {
	ctx := WithSessionID(context.Background(), "s")
	upstream := errors.New("503")

	records := captureJSON(t, LevelDebug, func() {
		ScriptureFetch(ctx, "esv", "ESV", 23, 120*time.Millisecond, nil)
		ScriptureFetch(ctx, "esv", "ESV", 24, time.Second, upstream)
		ScriptureFallback(ctx, 24, "ESV", "Psalm 24 (unavailable - showing Psalm 23)", upstream)
		GestureCommit(ctx, "drag", 3, 3, 1)
		SessionEvent(ctx, "reset", "highlights", 0)
		StorageError(ctx, "save_session", "s", errors.New("disk full"))
		WebSocketEvent("client_connected", 2)
		ServerStartup("api", "http", 8080)
		SecurityEvent("rate_limit_exceeded", "api", "ip", "10.0.0.1")
	})

	want := []struct {
		msg   string
		level string
	}{
		{"scripture_fetch", "INFO"},
		{"scripture_fetch", "WARN"},
		{"scripture_fallback", "WARN"},
		{"gesture_commit", "DEBUG"},
		{"session_event", "INFO"},
		{"storage_error", "ERROR"},
		{"websocket_event", "INFO"},
		{"server_startup", "INFO"},
		{"security_event", "WARN"},
	}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for i, w := range want {
		if records[i]["msg"] != w.msg || records[i]["level"] != w.level {
			t.Errorf("record %d = %v/%v, want %s/%s", i, records[i]["msg"], records[i]["level"], w.msg, w.level)
		}
	}
	if records[1]["error"] != "503" {
		t.Errorf("failed fetch should carry error, got %v", records[1])
	}
	if records[3]["kind"] != "drag" {
		t.Errorf("gesture kind missing: %v", records[3])
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if seen == "" || rec.Header().Get("X-Request-ID") != seen {
			t.Errorf("request id %q not propagated to header %q", seen, rec.Header().Get("X-Request-ID"))
		}
	})

	t.Run("forwarded", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "upstream-id")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if seen != "upstream-id" {
			t.Errorf("request id = %q, want upstream-id", seen)
		}
	})
}

func TestCombinedMiddlewareLogsStatus(t *testing.T) {
	handler := CombinedMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	records := captureJSON(t, LevelInfo, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/sessions", nil))
	})
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	rec := records[0]
	if rec["msg"] != "http_request" || rec["method"] != "POST" || rec["path"] != "/sessions" {
		t.Errorf("unexpected record %v", rec)
	}
	if rec["status_code"] != float64(http.StatusTeapot) {
		t.Errorf("status_code = %v", rec["status_code"])
	}
	if rec["request_id"] == nil {
		t.Error("request id should be attached")
	}
}

func TestResponseWriterFirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.statusCode != http.StatusCreated || rec.Code != http.StatusCreated {
		t.Errorf("status = %d/%d, want 201", rw.statusCode, rec.Code)
	}
	if rw.Unwrap() != rec {
		t.Error("Unwrap should return the wrapped writer")
	}
	if _, _, err := rw.Hijack(); err == nil {
		t.Error("recorder cannot be hijacked")
	}
}
