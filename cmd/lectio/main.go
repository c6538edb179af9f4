// Command lectio serves the guided Psalm meditation API and provides
// maintenance tools for its session database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/FocuswithJustin/SacredPsalms/core/gesture"
	"github.com/FocuswithJustin/SacredPsalms/core/reference"
	"github.com/FocuswithJustin/SacredPsalms/core/text"
	"github.com/FocuswithJustin/SacredPsalms/internal/api"
	"github.com/FocuswithJustin/SacredPsalms/internal/logging"
	"github.com/FocuswithJustin/SacredPsalms/internal/scripture"
	"github.com/FocuswithJustin/SacredPsalms/internal/server"
	"github.com/FocuswithJustin/SacredPsalms/internal/session"
	"github.com/FocuswithJustin/SacredPsalms/internal/storage"
)

const version = "0.1.0"

// CLI defines the command-line interface for lectio.
type CLI struct {
	Globals `embed:""`

	Serve   ServeCmd   `cmd:"" help:"Start the meditation API server"`
	Psalm   PsalmCmd   `cmd:"" help:"Fetch and print a psalm"`
	Tokens  TokensCmd  `cmd:"" help:"Print the token sequence of a text"`
	Backup  BackupCmd  `cmd:"" help:"Export sessions and preferences to an xz backup"`
	Restore RestoreCmd `cmd:"" help:"Import a backup written by backup"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// Globals are flags shared by every command.
type Globals struct {
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)" default:"info" env:"LECTIO_LOG_LEVEL"`
	LogFormat string `name:"log-format" help:"Log format (json, text)" default:"json" env:"LECTIO_LOG_FORMAT"`

	stdout io.Writer
}

// ProviderFlags configure the scripture sources.
type ProviderFlags struct {
	ESVKey      string        `name:"esv-key" help:"ESV API token" env:"ESV_API_KEY"`
	ESVURL      string        `name:"esv-url" help:"ESV passage endpoint" env:"ESV_API_URL"`
	APIBibleKey string        `name:"api-bible-key" help:"API.Bible key" env:"API_BIBLE_KEY"`
	APIBibleURL string        `name:"api-bible-url" help:"API.Bible root URL" env:"API_BIBLE_URL"`
	CacheTTL    time.Duration `name:"cache-ttl" help:"Passage cache lifetime, 0 disables" default:"24h" env:"LECTIO_CACHE_TTL"`
}

func (p ProviderFlags) provider() scripture.Provider {
	return scripture.New(scripture.Options{
		ESVURL:      p.ESVURL,
		ESVKey:      p.ESVKey,
		APIBibleURL: p.APIBibleURL,
		APIBibleKey: p.APIBibleKey,
		CacheTTL:    p.CacheTTL,
	})
}

// ServeCmd starts the REST and WebSocket server.
type ServeCmd struct {
	ProviderFlags `embed:""`

	Port            int           `help:"HTTP server port" default:"8080" env:"LECTIO_PORT"`
	DB              string        `name:"db" help:"SQLite database path, empty keeps sessions in memory" default:"lectio.db" env:"LECTIO_DB"`
	APIKey          string        `name:"api-key" help:"Require this key in X-API-Key" env:"LECTIO_API_KEY"`
	AllowedOrigins  []string      `name:"allowed-origin" help:"Allowed CORS and WebSocket origin (repeatable)" env:"LECTIO_ALLOWED_ORIGINS"`
	RateLimit       int           `name:"rate-limit" help:"Requests per minute per client, 0 disables" default:"600" env:"LECTIO_RATE_LIMIT"`
	RateBurst       int           `name:"rate-burst" help:"Rate limit burst size" default:"60" env:"LECTIO_RATE_BURST"`
	TLSCert         string        `name:"tls-cert" help:"TLS certificate file" type:"path" env:"LECTIO_TLS_CERT"`
	TLSKey          string        `name:"tls-key" help:"TLS key file" type:"path" env:"LECTIO_TLS_KEY"`
	Shutdown        time.Duration `help:"Graceful shutdown timeout" default:"10s" env:"LECTIO_SHUTDOWN_TIMEOUT"`
	TapThreshold    float64       `name:"tap-threshold" help:"Pointer travel below which a one-token gesture is a tap" default:"15"`
	ScrollThreshold float64       `name:"scroll-threshold" help:"Vertical travel past which a gesture becomes a scroll" default:"15"`
}

func (c *ServeCmd) config() api.Config {
	cfg := api.DefaultConfig()
	cfg.Port = c.Port
	cfg.Version = version
	cfg.RateLimitRequests = c.RateLimit
	cfg.RateLimitBurst = c.RateBurst
	cfg.ShutdownTimeout = c.Shutdown
	cfg.AllowedOrigins = c.AllowedOrigins
	if c.APIKey != "" {
		cfg.Auth = api.AuthConfig{Enabled: true, APIKey: c.APIKey}
	}
	if c.TLSCert != "" || c.TLSKey != "" {
		cfg.TLS = api.TLSConfig{Enabled: true, CertFile: c.TLSCert, KeyFile: c.TLSKey}
	}
	return cfg
}

func (c *ServeCmd) Run(g *Globals) error {
	if c.ESVKey == "" {
		logging.Warn("ESV_API_KEY not set, ESV requests will fall back to Psalm 23")
	}
	if c.APIBibleKey == "" {
		logging.Warn("API_BIBLE_KEY not set, KJV requests will fall back to Psalm 23")
	}

	opts := session.Options{
		Provider: c.provider(),
		Gesture:  gesture.DefaultConfig(),
	}
	opts.Gesture.TapThreshold = c.TapThreshold
	opts.Gesture.ScrollThreshold = c.ScrollThreshold

	if c.DB != "" {
		store, err := storage.Open(c.DB)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Store = store
		logging.Info("session storage opened", "path", store.Path(), "driver", storage.DriverName())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return api.New(c.config(), session.NewManager(opts)).Start(ctx)
}

// PsalmCmd fetches one psalm through the same provider stack as the server.
type PsalmCmd struct {
	ProviderFlags `embed:""`

	Ref         string `arg:"" help:"Psalm number or reference such as 'Psalm 23:1-6'"`
	Translation string `short:"t" help:"Translation (ESV, KJV)" default:"ESV"`
	ShowTokens  bool   `name:"tokens" help:"Also print the token sequence"`
	JSON        bool   `name:"json" help:"Print JSON"`
}

func (c *PsalmCmd) Run(g *Globals) error {
	n, err := psalmNumber(c.Ref)
	if err != nil {
		return err
	}
	t, err := scripture.ParseTranslation(c.Translation)
	if err != nil {
		return err
	}

	sc, err := c.provider().FetchByNumber(context.Background(), n, t)
	if err != nil {
		return err
	}

	if c.JSON {
		out := struct {
			scripture.Scripture
			Tokens text.Sequence `json:"tokens,omitempty"`
		}{Scripture: sc}
		if c.ShowTokens {
			out.Tokens = text.Tokenize(sc.Text)
		}
		enc := json.NewEncoder(g.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(g.stdout, "%s (%s)\n", sc.DisplayReference(), sc.Translation)
	fmt.Fprintf(g.stdout, "\n%s\n", sc.Text)
	if c.ShowTokens {
		fmt.Fprintln(g.stdout)
		printTokens(g.stdout, text.Tokenize(sc.Text))
	}
	return nil
}

// psalmNumber accepts "23" or any reference the parser understands.
func psalmNumber(s string) (int, error) {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n, reference.ValidateChapter(n)
	}
	ref, err := reference.Parse(s)
	if err != nil {
		return 0, err
	}
	return ref.Chapter, nil
}

// TokensCmd shows how a text is split into selectable tokens.
type TokensCmd struct {
	Text string `arg:"" optional:"" help:"Text to tokenize, read from stdin when omitted"`
	JSON bool   `name:"json" help:"Print JSON"`

	stdin io.Reader
}

func (c *TokensCmd) Run(g *Globals) error {
	input := c.Text
	if input == "" {
		r := c.stdin
		if r == nil {
			r = os.Stdin
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		input = string(data)
	}

	seq := text.Tokenize(input)
	if c.JSON {
		return json.NewEncoder(g.stdout).Encode(seq)
	}
	printTokens(g.stdout, seq)
	return nil
}

func printTokens(w io.Writer, seq text.Sequence) {
	for _, tok := range seq {
		mark := " "
		if tok.Selectable() {
			mark = "*"
		}
		fmt.Fprintf(w, "%4d %s %q\n", tok.Index, mark, tok.Text)
	}
}

// BackupCmd writes an xz-compressed backup of the session database.
type BackupCmd struct {
	DB  string `name:"db" help:"SQLite database path" default:"lectio.db" type:"existingfile" env:"LECTIO_DB"`
	Out string `short:"o" required:"" help:"Backup file to write" type:"path"`
}

func (c *BackupCmd) Run(g *Globals) error {
	store, err := storage.Open(c.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	f, err := os.Create(c.Out)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	stats, err := store.Export(context.Background(), f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close backup file: %w", cerr)
	}
	if err != nil {
		os.Remove(c.Out)
		return err
	}

	fmt.Fprintf(g.stdout, "Backed up %d sessions and %d preferences to %s\n", stats.Sessions, stats.Preferences, c.Out)
	fmt.Fprintf(g.stdout, "  blake3: %s\n", stats.Checksum)
	return nil
}

// RestoreCmd loads a backup into the session database.
type RestoreCmd struct {
	DB string `name:"db" help:"SQLite database path" default:"lectio.db" type:"path" env:"LECTIO_DB"`
	In string `arg:"" help:"Backup file to read" type:"existingfile"`
}

func (c *RestoreCmd) Run(g *Globals) error {
	f, err := os.Open(c.In)
	if err != nil {
		return fmt.Errorf("open backup file: %w", err)
	}
	defer f.Close()

	store, err := storage.Open(c.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Import(context.Background(), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.stdout, "Restored %d sessions and %d preferences into %s\n", stats.Sessions, stats.Preferences, server.AbsPath(c.DB))
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintf(g.stdout, "lectio version %s (storage: %s)\n", version, storage.DriverName())
	return nil
}

func (g *Globals) AfterApply() error {
	level, err := logging.ParseLevel(g.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(g.LogFormat)
	if err != nil {
		return err
	}
	logging.InitLogger(level, format)
	return nil
}

// run parses args and executes the selected command.
func run(args []string, stdout, stderr io.Writer) error {
	var cli CLI
	cli.stdout = stdout

	parser, err := kong.New(&cli,
		kong.Name("lectio"),
		kong.Description("Lectio - guided Psalm meditation with gesture highlighting"),
		kong.Writers(stdout, stderr),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return ctx.Run(&cli.Globals)
}

func main() {
	// .env is optional.
	_ = godotenv.Load()

	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "lectio: %v\n", err)
		os.Exit(1)
	}
}
