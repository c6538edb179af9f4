package api

import (
	"fmt"
	"os"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port              int
	Version           string
	RateLimitRequests int           // requests per minute, 0 disables
	RateLimitBurst    int           // burst size
	ShutdownTimeout   time.Duration // grace period for in-flight requests
	Auth              AuthConfig
	TLS               TLSConfig
	WebSocket         WebSocketConfig
	AllowedOrigins    []string // CORS and WebSocket origins, empty allows all
}

// TLSConfig holds TLS/HTTPS configuration.
type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

// WebSocketConfig limits each gesture stream connection.
type WebSocketConfig struct {
	MaxMessageRate int   // messages per second
	MaxMessageSize int64 // bytes
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Port:              8080,
		Version:           "dev",
		RateLimitRequests: 600,
		RateLimitBurst:    60,
		ShutdownTimeout:   10 * time.Second,
		WebSocket: WebSocketConfig{
			// Pointer moves arrive at display refresh rate.
			MaxMessageRate: 120,
			MaxMessageSize: 4096,
		},
	}
}

// Validate checks the configuration before the server starts.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.RateLimitRequests < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.WebSocket.MaxMessageRate <= 0 || c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("websocket limits must be positive")
	}
	if err := ValidateAuthConfig(c.Auth); err != nil {
		return fmt.Errorf("invalid auth config: %w", err)
	}
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert or key file not specified")
		}
		if _, err := os.Stat(c.TLS.CertFile); err != nil {
			return fmt.Errorf("TLS cert file not found: %w", err)
		}
		if _, err := os.Stat(c.TLS.KeyFile); err != nil {
			return fmt.Errorf("TLS key file not found: %w", err)
		}
	}
	return nil
}
