package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// No config file: defaults apply
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error loading defaults, got %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("expected default port 4000, got %d", cfg.Server.Port)
	}
	if cfg.Server.Address() != "localhost:4000" {
		t.Errorf("expected address localhost:4000, got %s", cfg.Server.Address())
	}
	if cfg.Client.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %s", cfg.Client.Timeout)
	}
	if cfg.Format.Indent != 2 {
		t.Errorf("expected default indent 2, got %d", cfg.Format.Indent)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.Server.Auth.Secret != "" || cfg.Server.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("expected open writes with a 24h token ttl, got %+v", cfg.Server.Auth)
	}

	loc, err := cfg.Location()
	if err != nil || loc != nil {
		t.Errorf("expected no location by default, got %v, %v", loc, err)
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	configContent := `
schema: schema.yaml
server:
  port: 8080
  seed: fixtures/seed.json
  cache:
    backend: memory
    ttl: 1m
client:
  base_url: http://api.example.com
  timeout: 5s
format:
  location: UTC
  indent: 4
log:
  level: debug
  development: true
`
	if err := os.WriteFile("spine.yaml", []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if filepath.Base(cfg.Schema) != "schema.yaml" || !filepath.IsAbs(cfg.Schema) {
		t.Errorf("expected schema resolved next to the config file, got %s", cfg.Schema)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("expected default host to survive, got %s", cfg.Server.Host)
	}
	if !strings.HasSuffix(cfg.Server.Seed, filepath.Join("fixtures", "seed.json")) {
		t.Errorf("expected seed path, got %s", cfg.Server.Seed)
	}
	if cfg.Server.Cache.Backend != "memory" || cfg.Server.Cache.TTL != time.Minute {
		t.Errorf("expected memory cache with 1m ttl, got %+v", cfg.Server.Cache)
	}
	if cfg.Client.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %s", cfg.Client.Timeout)
	}
	if cfg.Format.Indent != 4 {
		t.Errorf("expected indent 4, got %d", cfg.Format.Indent)
	}

	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("expected UTC location, got %v, %v", loc, err)
	}

	logger, err := cfg.Logger()
	if err != nil {
		t.Fatalf("expected logger, got %v", err)
	}
	logger.Sync()
}

func TestLoadExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}

	if err := os.WriteFile(path, []byte("schema: schema.yaml\nserver:\n  seed: /abs/seed.json\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if want := filepath.Join(filepath.Dir(path), "schema.yaml"); cfg.Schema != want {
		t.Errorf("expected schema %s, got %s", want, cfg.Schema)
	}
	if cfg.Server.Seed != "/abs/seed.json" {
		t.Errorf("expected absolute seed to be kept, got %s", cfg.Server.Seed)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	t.Setenv("SPINE_SERVER_PORT", "7070")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected port from environment, got %d", cfg.Server.Port)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		return Config{
			Server: ServerConfig{Port: 4000, MaxBodySize: 1024},
			Format: FormatConfig{Indent: 2},
			Log:    LogConfig{Level: "info"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"empty body size", func(c *Config) { c.Server.MaxBodySize = 0 }, true},
		{"negative timeout", func(c *Config) { c.Client.Timeout = -time.Second }, true},
		{"huge indent", func(c *Config) { c.Format.Indent = 12 }, true},
		{"unknown location", func(c *Config) { c.Format.Location = "Mars/Olympus" }, true},
		{"unknown level", func(c *Config) { c.Log.Level = "chatty" }, true},
		{"redis cache", func(c *Config) { c.Server.Cache.Backend = "redis" }, false},
		{"unknown cache", func(c *Config) { c.Server.Cache.Backend = "memcached" }, true},
		{"rate limit", func(c *Config) { c.Server.RateLimit = RateLimitConfig{Limit: 5, Window: time.Second, Backend: "redis"} }, false},
		{"rate limit without window", func(c *Config) { c.Server.RateLimit = RateLimitConfig{Limit: 5, Backend: "memory"} }, true},
		{"rate limit backend", func(c *Config) { c.Server.RateLimit = RateLimitConfig{Limit: 5, Window: time.Second, Backend: "disk"} }, true},
		{"negative token ttl", func(c *Config) { c.Server.Auth.TokenTTL = -time.Minute }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := validateConfig(&cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
