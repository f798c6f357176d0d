package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
)

// EnvPrefix is the prefix for environment overrides. Nested keys use a
// double underscore: ROUTER_SESSION__TTL=45m.
const EnvPrefix = "ROUTER_"

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Server     ServerConfig             `koanf:"server"`
	Session    SessionConfig            `koanf:"session"`
	Storage    StorageConfig            `koanf:"storage"`
	Rules      RulesConfig              `koanf:"rules"`
	Retrieval  RetrievalConfig          `koanf:"retrieval"`
	Generation GenerationConfig         `koanf:"generation"`
	Providers  []ProviderConfig         `koanf:"providers"`
	Channels   map[string]ChannelConfig `koanf:"channels"`
	Audit      AuditConfig              `koanf:"audit"`
	Telemetry  TelemetryConfig          `koanf:"telemetry"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	// AdminToken guards the supervisor endpoints. Empty disables them.
	AdminToken string `koanf:"admin_token"`
}

type SessionConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	DefaultDomain string        `koanf:"default_domain"`
	MaxCASRetries int           `koanf:"max_cas_retries"`
	SweepInterval time.Duration `koanf:"sweep_interval"` // 0 disables the sweeper
	Retention     time.Duration `koanf:"retention"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type RulesConfig struct {
	Path string `koanf:"path"` // empty uses the embedded table
}

type RetrievalConfig struct {
	Type        string        `koanf:"type"` // none, http, catalog
	BaseURL     string        `koanf:"base_url"`
	APIKey      string        `koanf:"api_key"`
	CatalogPath string        `koanf:"catalog_path"`
	TopK        int           `koanf:"top_k"`
	Timeout     time.Duration `koanf:"timeout"`
	CacheSize   int           `koanf:"cache_size"` // 0 disables caching
	CacheTTL    time.Duration `koanf:"cache_ttl"`
}

type GenerationConfig struct {
	ProviderTimeout  time.Duration `koanf:"provider_timeout"`
	MaxContextTokens int           `koanf:"max_context_tokens"`
	Encoding         string        `koanf:"encoding"`
	FallbackMessage  string        `koanf:"fallback_message"`
}

type ProviderConfig struct {
	Name    string `koanf:"name"`
	Type    string `koanf:"type"` // openai, openai-compatible, anthropic, gemini, ollama, local
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"` // Custom API endpoint
	Model   string `koanf:"model"`
	// Timeout overrides generation.provider_timeout for this provider.
	Timeout       time.Duration `koanf:"timeout"`
	RatePerSecond float64       `koanf:"rate_per_second"` // 0 disables throttling
	Burst         int           `koanf:"burst"`
}

type ChannelConfig struct {
	PreferredProvider string `koanf:"preferred_provider"`
}

type AuditConfig struct {
	Type string `koanf:"type"` // file, sqlite, memory
	Path string `koanf:"path"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"server.port":                   8080,
	"server.request_timeout":        "30s",
	"session.ttl":                   "30m",
	"session.default_domain":        "BELLEZA",
	"session.max_cas_retries":       3,
	"session.sweep_interval":        "10m",
	"session.retention":             "24h",
	"storage.type":                  "memory",
	"storage.sqlite.path":           "router.db",
	"retrieval.type":                "none",
	"retrieval.top_k":               5,
	"retrieval.timeout":             "3s",
	"retrieval.cache_ttl":           "5m",
	"generation.provider_timeout":   "10s",
	"generation.max_context_tokens": 1500,
	"generation.encoding":           "cl100k_base",
	"audit.type":                    "file",
	"audit.path":                    "audit.jsonl",
	"telemetry.service_name":        "intent-router",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (DefaultPath when empty), applies ROUTER_ environment
// overrides and defaults, and validates the result. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrConfiguration(fmt.Sprintf("load %s", path)).Wrap(err)
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, domain.ErrConfiguration("load environment").Wrap(err)
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, domain.ErrConfiguration("decode config").Wrap(err)
	}

	// Substitute environment variables in secrets
	for i := range cfg.Providers {
		cfg.Providers[i].APIKey = substituteEnvVars(cfg.Providers[i].APIKey)
	}
	cfg.Server.AdminToken = substituteEnvVars(cfg.Server.AdminToken)
	cfg.Retrieval.APIKey = substituteEnvVars(cfg.Retrieval.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first configuration problem as a configuration error.
func (c *Config) Validate() error {
	if c.Session.TTL <= 0 {
		return domain.ErrConfiguration("session.ttl must be positive")
	}
	if c.Session.DefaultDomain == "" {
		return domain.ErrConfiguration("session.default_domain is required")
	}

	switch c.Storage.Type {
	case "memory":
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return domain.ErrConfiguration("storage.sqlite.path is required")
		}
	default:
		return domain.ErrConfiguration(fmt.Sprintf("unknown storage.type %q", c.Storage.Type))
	}

	switch c.Retrieval.Type {
	case "none", "":
	case "http":
		if c.Retrieval.BaseURL == "" {
			return domain.ErrConfiguration("retrieval.base_url is required for http retrieval")
		}
	case "catalog":
		if c.Retrieval.CatalogPath == "" {
			return domain.ErrConfiguration("retrieval.catalog_path is required for catalog retrieval")
		}
	default:
		return domain.ErrConfiguration(fmt.Sprintf("unknown retrieval.type %q", c.Retrieval.Type))
	}

	switch c.Audit.Type {
	case "memory":
	case "file", "sqlite":
		if c.Audit.Type == "file" && c.Audit.Path == "" {
			return domain.ErrConfiguration("audit.path is required for file audit")
		}
		if c.Audit.Type == "sqlite" && c.Storage.Type != "sqlite" {
			return domain.ErrConfiguration("audit.type sqlite requires storage.type sqlite")
		}
	default:
		return domain.ErrConfiguration(fmt.Sprintf("unknown audit.type %q", c.Audit.Type))
	}

	if len(c.Providers) == 0 {
		return domain.ErrConfiguration("provider chain is empty")
	}
	names := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return domain.ErrConfiguration(fmt.Sprintf("providers[%d] has no name", i))
		}
		if p.Type == "" {
			return domain.ErrConfiguration(fmt.Sprintf("provider %q has no type", p.Name))
		}
		if names[p.Name] {
			return domain.ErrConfiguration(fmt.Sprintf("duplicate provider %q", p.Name))
		}
		names[p.Name] = true
	}
	for ch, cc := range c.Channels {
		if cc.PreferredProvider != "" && !names[cc.PreferredProvider] {
			return domain.ErrConfiguration(fmt.Sprintf("channel %q prefers unknown provider %q", ch, cc.PreferredProvider))
		}
	}
	return nil
}

// PreferredProvider returns the configured provider for channel, or "".
func (c *Config) PreferredProvider(channel string) string {
	return c.Channels[channel].PreferredProvider
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
