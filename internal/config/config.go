package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	StoreSQLite = "sqlite"
	StoreBolt   = "bolt"
	StoreMemory = "memory"

	DefaultEndpoint = "https://api.perplexity.ai/chat/completions"
	DefaultModel    = "sonar-pro"
)

// Environment variables read by Load
const (
	EnvAPIKey       = "PERPLEXITY_API_KEY"
	EnvLegacyAPIKey = "VITE_PERPLEXITY_API_KEY"
	EnvEndpoint     = "HEALTHASSIST_ENDPOINT"
	EnvModel        = "HEALTHASSIST_MODEL"
)

// Config holds application configuration
type Config struct {
	Endpoint     string `toml:"endpoint"`
	Model        string `toml:"model"`
	APIKey       string `toml:"api_key"`
	MaxTokens    int    `toml:"max_tokens"`
	TipMaxTokens int    `toml:"tip_max_tokens"`

	// Retry policy of the inference requests
	Retries        int     `toml:"retries"`
	InitialDelayMS int     `toml:"initial_delay_ms"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RequestsPerSec float64 `toml:"requests_per_second"` // 0 disables the limiter

	// TrueType font embedded in PDF exports; empty uses Helvetica (cp1252 only)
	PDFFont string `toml:"pdf_font"`

	Store  StoreConfig `toml:"store"`
	LogDir string      `toml:"log_dir"`
	Debug  bool        `toml:"debug"`
}

// StoreConfig selects where favorites and the water counter live
type StoreConfig struct {
	Backend string `toml:"backend"` // sqlite|bolt|memory
	Path    string `toml:"path"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Endpoint:       DefaultEndpoint,
		Model:          DefaultModel,
		MaxTokens:      4000,
		TipMaxTokens:   50,
		Retries:        3,
		InitialDelayMS: 1000,
		TimeoutSeconds: 60,
		Store: StoreConfig{
			Backend: StoreSQLite,
			Path:    "healthassist.db",
		},
		LogDir: "logs",
	}
}

// Load builds the configuration from defaults, an optional TOML file, .env
// files and the environment, in that order of increasing precedence.
// Missing .env files are ignored.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	} else if v := os.Getenv(EnvLegacyAPIKey); v != "" && c.APIKey == "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvEndpoint); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Model = v
	}
}

// Validate checks the configuration for values that cannot work
func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid endpoint %q", c.Endpoint)
	}
	if c.Model == "" {
		return errors.New("model must be set")
	}
	if c.MaxTokens <= 0 || c.TipMaxTokens <= 0 {
		return errors.New("max_tokens and tip_max_tokens must be positive")
	}
	if c.Retries < 0 {
		return errors.New("retries must not be negative")
	}
	if c.InitialDelayMS < 0 || c.TimeoutSeconds < 0 || c.RequestsPerSec < 0 {
		return errors.New("delays, timeouts and rates must not be negative")
	}
	switch c.Store.Backend {
	case StoreSQLite, StoreBolt:
		if c.Store.Path == "" {
			return fmt.Errorf("store path required for %s backend", c.Store.Backend)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}
	return nil
}

// InitialDelay returns the first backoff wait
func (c Config) InitialDelay() time.Duration {
	return time.Duration(c.InitialDelayMS) * time.Millisecond
}

// Timeout returns the per-attempt HTTP timeout
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
