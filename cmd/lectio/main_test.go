package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/FocuswithJustin/SacredPsalms/internal/storage"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	return stdout.String(), err
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "lectio version "+version) {
		t.Errorf("output = %q", out)
	}
}

func TestTokens(t *testing.T) {
	out, err := runCLI(t, "tokens", "Be still")
	if err != nil {
		t.Fatal(err)
	}
	want := "   0 * \"Be\"\n   1   \" \"\n   2 * \"still\"\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("tokens output mismatch (-want +got):\n%s", diff)
	}

	out, err = runCLI(t, "tokens", "--json", "Be still")
	if err != nil {
		t.Fatal(err)
	}
	var seq []struct {
		Text  string `json:"text"`
		Index int    `json:"index"`
	}
	if err := json.Unmarshal([]byte(out), &seq); err != nil || len(seq) != 3 {
		t.Errorf("json tokens = %q, %v", out, err)
	}
}

func TestTokensStdin(t *testing.T) {
	cmd := &TokensCmd{stdin: strings.NewReader("know")}
	var out bytes.Buffer
	if err := cmd.Run(&Globals{stdout: &out}); err != nil {
		t.Fatal(err)
	}
	if out.String() != "   0 * \"know\"\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestPsalm(t *testing.T) {
	esv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"passages":     []string{"Be still, and know that I am God."},
			"passage_meta": []map[string]int{{"verse_count": 11}},
		})
	}))
	defer esv.Close()

	out, err := runCLI(t, "psalm", "Psalm 46:10", "--esv-url", esv.URL, "--esv-key", "test-token", "--cache-ttl", "0s")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Psalm 46 (ESV)") || !strings.Contains(out, "Be still, and know") {
		t.Errorf("output = %q", out)
	}

	out, err = runCLI(t, "psalm", "46", "--json", "--tokens", "--esv-url", esv.URL, "--esv-key", "test-token")
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Reference string            `json:"reference"`
		Tokens    []json.RawMessage `json:"tokens"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.Reference != "Psalm 46:1-11" || len(got.Tokens) == 0 {
		t.Errorf("got %+v", got)
	}

	if _, err := runCLI(t, "psalm", "151"); err == nil {
		t.Error("psalm 151 should be rejected")
	}
	if _, err := runCLI(t, "psalm", "Genesis 1"); err == nil {
		t.Error("non-psalm reference should be rejected")
	}
}

func TestPsalmFallsBack(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	out, err := runCLI(t, "psalm", "121", "--esv-url", down.URL, "--cache-ttl", "0s")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Psalm 121 (unavailable") || !strings.Contains(out, "The LORD is my shepherd") {
		t.Errorf("output = %q", out)
	}
}

func TestBackupRestore(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.db")
	dst := filepath.Join(dir, "dst.db")
	backup := filepath.Join(dir, "lectio.json.xz")

	ctx := context.Background()
	store, err := storage.Open(src)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	rec := storage.Record{ID: "s1", Data: json.RawMessage(`{"id":"s1"}`), CreatedAt: now, UpdatedAt: now}
	if err := store.SaveSession(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := store.SetPreference(ctx, "s1", "translation", "KJV"); err != nil {
		t.Fatal(err)
	}
	store.Close()

	out, err := runCLI(t, "backup", "--db", src, "-o", backup)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Backed up 1 sessions and 1 preferences") {
		t.Errorf("backup output = %q", out)
	}

	out, err = runCLI(t, "restore", "--db", dst, backup)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Restored 1 sessions") {
		t.Errorf("restore output = %q", out)
	}

	restored, err := storage.Open(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer restored.Close()
	got, err := restored.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Data) != `{"id":"s1"}` {
		t.Errorf("restored data = %s", got.Data)
	}
	if v, ok, _ := restored.Preference(ctx, "s1", "translation"); !ok || v != "KJV" {
		t.Errorf("restored preference = %q, %v", v, ok)
	}
}

func TestServeConfig(t *testing.T) {
	cmd := &ServeCmd{
		Port:      9090,
		RateLimit: 30,
		RateBurst: 5,
		Shutdown:  time.Second,
		APIKey:    "a-long-enough-api-key",
		TLSCert:   "cert.pem",
		TLSKey:    "key.pem",
	}
	cfg := cmd.config()
	if cfg.Port != 9090 || cfg.RateLimitRequests != 30 || cfg.Version != version {
		t.Errorf("config = %+v", cfg)
	}
	if !cfg.Auth.Enabled || !cfg.TLS.Enabled {
		t.Errorf("auth/TLS not enabled: %+v %+v", cfg.Auth, cfg.TLS)
	}
	if cfg.WebSocket.MaxMessageRate == 0 {
		t.Error("websocket defaults lost")
	}
}

func TestInvalidLogLevel(t *testing.T) {
	if _, err := runCLI(t, "--log-level", "loud", "version"); err == nil {
		t.Error("unknown log level should fail")
	}
}
