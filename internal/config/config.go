package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	// TransportHTTP uploads each event with a PUT request.
	TransportHTTP = "http"

	// TransportWebSocket uploads over a long-lived websocket connection.
	TransportWebSocket = "websocket"
)

// Config holds all environment-based configuration for inspect-sync.
type Config struct {
	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Path of the bbolt database holding event records. Defaults to
	// ~/.inspect-sync/state.db.
	StatePath string `env:"STATE_PATH"`

	// Capture inbox watched for photos and audio. Each subdirectory is
	// named after the draft it belongs to. Optional.
	CaptureDir string `env:"CAPTURE_DIR"`

	// Catalog sources. Both are optional; an absent catalog resolves
	// nothing.
	AssetCatalogPath  string `env:"ASSET_CATALOG_PATH"`
	DefectCatalogPath string `env:"DEFECT_CATALOG_PATH"`

	// Remote event service.
	UploadURL            string        `env:"UPLOAD_URL"`
	UploadToken          string        `env:"UPLOAD_TOKEN"`
	UploadTransport      string        `env:"UPLOAD_TRANSPORT" envDefault:"http"`
	UploadMaxRetries     int           `env:"UPLOAD_MAX_RETRIES" envDefault:"5"`
	UploadRetryDelay     time.Duration `env:"UPLOAD_RETRY_DELAY" envDefault:"3s"`
	UploadAttemptTimeout time.Duration `env:"UPLOAD_ATTEMPT_TIMEOUT" envDefault:"30s"`

	// Reconciliation behaviour.
	ReconcileDebounce time.Duration `env:"RECONCILE_DEBOUNCE" envDefault:"500ms"`
	SyncOnClose       bool          `env:"SYNC_ON_CLOSE" envDefault:"true"`

	// MCP host surface.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8090"`
	APIKeys    string `env:"API_KEYS"`

	// Device name reported to the remote service. Defaults to system hostname.
	DeviceName string `env:"DEVICE_NAME"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DeviceName == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "inspect-sync"
		}

		cfg.DeviceName = hostname
	}

	cfg.UploadTransport = strings.ToLower(strings.TrimSpace(cfg.UploadTransport))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// The capture watcher derives draft keys from paths relative to
	// CaptureDir, which needs a stable absolute root.
	for _, p := range []*string{&cfg.StatePath, &cfg.CaptureDir, &cfg.AssetCatalogPath, &cfg.DefectCatalogPath} {
		if *p == "" {
			continue
		}

		abs, err := filepath.Abs(*p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s to absolute path: %w", *p, err)
		}

		*p = abs
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.UploadURL == "" {
		return fmt.Errorf("UPLOAD_URL is required")
	}

	u, err := url.Parse(c.UploadURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("UPLOAD_URL must be an absolute URL")
	}

	switch c.UploadTransport {
	case TransportHTTP:
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("UPLOAD_URL must use http or https with the http transport")
		}
	case TransportWebSocket:
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("UPLOAD_URL must use ws or wss with the websocket transport")
		}
	default:
		return fmt.Errorf("UPLOAD_TRANSPORT must be %q or %q, got %q", TransportHTTP, TransportWebSocket, c.UploadTransport)
	}

	if c.UploadMaxRetries < 1 {
		return fmt.Errorf("UPLOAD_MAX_RETRIES must be at least 1")
	}

	if c.UploadRetryDelay < 0 {
		return fmt.Errorf("UPLOAD_RETRY_DELAY must not be negative")
	}

	if c.UploadAttemptTimeout <= 0 {
		return fmt.Errorf("UPLOAD_ATTEMPT_TIMEOUT must be positive")
	}

	if c.ReconcileDebounce <= 0 {
		return fmt.Errorf("RECONCILE_DEBOUNCE must be positive")
	}

	return nil
}

// ResolvedStatePath returns StatePath, or the default location under the
// user's home directory when unset.
func (c *Config) ResolvedStatePath() (string, error) {
	if c.StatePath != "" {
		return c.StatePath, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".inspect-sync", "state.db"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// PlaintextUpload reports whether a production config sends events over
// an unencrypted http or ws URL.
func (c *Config) PlaintextUpload() bool {
	if !c.IsProduction() {
		return false
	}

	u, err := url.Parse(c.UploadURL)

	return err == nil && (u.Scheme == "http" || u.Scheme == "ws")
}

// MCPEnabled reports whether the MCP host surface should be served.
func (c *Config) MCPEnabled() bool {
	return strings.TrimSpace(c.APIKeys) != ""
}

// APIKeyEntry holds a user identity and the bcrypt hash of its API key,
// parsed from API_KEYS.
type APIKeyEntry struct {
	UserID string
	Hash   string
}

// ParseAPIKeys parses the API_KEYS string.
// Format: "user1:$2a$10$...,user2:$2a$10$..."
// Hashes are produced by the hash-key subcommand.
func (c *Config) ParseAPIKeys() ([]APIKeyEntry, error) {
	if c.APIKeys == "" {
		return nil, nil
	}

	seenUsers := make(map[string]struct{})

	var entries []APIKeyEntry

	for _, pair := range strings.Split(c.APIKeys, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		idx := strings.Index(pair, ":")
		if idx < 0 {
			return nil, fmt.Errorf("invalid API key entry (missing ':')")
		}

		userID := pair[:idx]

		hash := pair[idx+1:]
		if userID == "" || hash == "" {
			return nil, fmt.Errorf("empty user or hash in entry %d", len(entries)+1)
		}

		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("API key hash for %q is not a bcrypt hash in entry %d", userID, len(entries)+1)
		}

		if _, dup := seenUsers[userID]; dup {
			return nil, fmt.Errorf("duplicate user_id %q in API_KEYS", userID)
		}

		seenUsers[userID] = struct{}{}
		entries = append(entries, APIKeyEntry{UserID: userID, Hash: hash})
	}

	return entries, nil
}
