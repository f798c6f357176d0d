package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
)

const sampleConfig = `
server:
  port: 9090
  admin_token: ${TEST_ADMIN_TOKEN}
session:
  ttl: 45m
  default_domain: BELLEZA
storage:
  type: sqlite
  sqlite:
    path: /tmp/router.db
retrieval:
  type: catalog
  catalog_path: catalog.yaml
  cache_size: 128
providers:
  - name: primary
    type: openai
    api_key: ${TEST_OPENAI_KEY}
    model: gpt-4o-mini
    rate_per_second: 2
    burst: 4
  - name: backup
    type: anthropic
    api_key: sk-ant
  - name: local
    type: local
channels:
  whatsapp:
    preferred_provider: backup
audit:
  type: sqlite
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	t.Setenv("TEST_ADMIN_TOKEN", "supervisor")

	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.AdminToken != "supervisor" {
		t.Errorf("admin token = %q", cfg.Server.AdminToken)
	}
	if cfg.Session.TTL != 45*time.Minute {
		t.Errorf("ttl = %v, want 45m", cfg.Session.TTL)
	}
	if cfg.Providers[0].APIKey != "sk-test" || cfg.Providers[0].RatePerSecond != 2 {
		t.Errorf("primary provider = %+v", cfg.Providers[0])
	}
	if got := cfg.PreferredProvider("whatsapp"); got != "backup" {
		t.Errorf("PreferredProvider(whatsapp) = %q", got)
	}
	if got := cfg.PreferredProvider("web"); got != "" {
		t.Errorf("PreferredProvider(web) = %q, want empty", got)
	}

	// Defaults fill what the file leaves out.
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.Timeout != 3*time.Second {
		t.Errorf("retrieval defaults = %+v", cfg.Retrieval)
	}
	if cfg.Generation.ProviderTimeout != 10*time.Second || cfg.Generation.Encoding != "cl100k_base" {
		t.Errorf("generation defaults = %+v", cfg.Generation)
	}
	if cfg.Session.Retention != 24*time.Hour || cfg.Session.MaxCASRetries != 3 {
		t.Errorf("session defaults = %+v", cfg.Session)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ROUTER_SERVER__PORT", "7000")
	t.Setenv("ROUTER_SESSION__TTL", "10m")
	t.Setenv("ROUTER_CHANNELS__WEB__PREFERRED_PROVIDER", "local")

	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Session.TTL != 10*time.Minute {
		t.Errorf("ttl = %v, want 10m", cfg.Session.TTL)
	}
	if got := cfg.PreferredProvider("web"); got != "local" {
		t.Errorf("PreferredProvider(web) = %q, want local", got)
	}
}

func TestLoad_MissingFileNeedsProviders(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !domain.IsKind(err, domain.ErrorKindConfiguration) {
		t.Errorf("Load() error = %v, want configuration error for empty chain", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Session:   SessionConfig{TTL: time.Minute, DefaultDomain: "BELLEZA"},
			Storage:   StorageConfig{Type: "memory"},
			Retrieval: RetrievalConfig{Type: "none"},
			Audit:     AuditConfig{Type: "memory"},
			Providers: []ProviderConfig{{Name: "local", Type: "local"}},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero ttl", func(c *Config) { c.Session.TTL = 0 }},
		{"no default domain", func(c *Config) { c.Session.DefaultDomain = "" }},
		{"unknown storage", func(c *Config) { c.Storage.Type = "redis" }},
		{"http retrieval without url", func(c *Config) { c.Retrieval.Type = "http" }},
		{"catalog without path", func(c *Config) { c.Retrieval.Type = "catalog" }},
		{"unknown retrieval", func(c *Config) { c.Retrieval.Type = "vector" }},
		{"sqlite audit on memory storage", func(c *Config) { c.Audit.Type = "sqlite" }},
		{"unknown audit", func(c *Config) { c.Audit.Type = "kafka" }},
		{"empty chain", func(c *Config) { c.Providers = nil }},
		{"unnamed provider", func(c *Config) { c.Providers[0].Name = "" }},
		{"untyped provider", func(c *Config) { c.Providers[0].Type = "" }},
		{"duplicate provider", func(c *Config) { c.Providers = append(c.Providers, c.Providers[0]) }},
		{"unknown preferred provider", func(c *Config) {
			c.Channels = map[string]ChannelConfig{"web": {PreferredProvider: "nope"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); !domain.IsKind(err, domain.ErrorKindConfiguration) {
				t.Errorf("Validate() error = %v, want configuration error", err)
			}
		})
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple substitution", "${TEST_VAR}", "test-value"},
		{"substitution in string", "prefix-${TEST_VAR}-suffix", "prefix-test-value-suffix"},
		{"no substitution", "plain-string", "plain-string"},
		{"undefined var", "${UNDEFINED_VAR}", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substituteEnvVars(tt.input); got != tt.want {
				t.Errorf("substituteEnvVars() = %v, want %v", got, tt.want)
			}
		})
	}
}
