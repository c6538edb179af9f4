package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode/utf8"
)

func TestAPICSPConfig(t *testing.T) {
	got := APICSPConfig().BuildCSPHeader()
	want := "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"
	if got != want {
		t.Errorf("BuildCSPHeader() = %q, want %q", got, want)
	}
}

func TestBuildCSPHeader(t *testing.T) {
	tests := []struct {
		name string
		cfg  CSPConfig
		want string
	}{
		{"empty", CSPConfig{}, ""},
		{
			"websocket client",
			CSPConfig{DefaultSrc: []string{"'self'"}, ConnectSrc: []string{"'self'", "wss:"}},
			"default-src 'self'; connect-src 'self' wss:",
		},
		{
			"upgrade",
			CSPConfig{ImgSrc: []string{"data:"}, UpgradeInsecureRequests: true},
			"img-src data:; upgrade-insecure-requests",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.BuildCSPHeader(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSecurityHeadersWithCSP(t *testing.T) {
	handler := SecurityHeadersWithCSP(APICSPConfig(), okHandler())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
		"Content-Security-Policy": APICSPConfig().BuildCSPHeader(),
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestSanitizeUserInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Psalm 23  ", "Psalm 23"},
		{"Psalm\x00 23", "Psalm 23"},
		{"line\nbreak\ttab", "line\nbreak\ttab"},
		{"bell\a", "bell"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizeUserInput(tt.in); got != tt.want {
			t.Errorf("SanitizeUserInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLimitStringLength(t *testing.T) {
	if got := LimitStringLength("Psalm 23", 5); got != "Psalm" {
		t.Errorf("got %q", got)
	}
	if got := LimitStringLength("short", 50); got != "short" {
		t.Errorf("got %q", got)
	}
	// The curly apostrophe is three bytes and must not be split.
	got := LimitStringLength("Lord’s", 5)
	if !utf8.ValidString(got) || got != "Lord" {
		t.Errorf("got %q, want %q", got, "Lord")
	}
}

func TestValidateContentType(t *testing.T) {
	allowed := []string{"application/json"}
	tests := []struct {
		ct   string
		want bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"APPLICATION/JSON", true},
		{"text/plain", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidateContentType(tt.ct, allowed); got != tt.want {
			t.Errorf("ValidateContentType(%q) = %v, want %v", tt.ct, got, tt.want)
		}
	}
}
