package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config represents the spine configuration
type Config struct {
	Schema string       `mapstructure:"schema"`
	Server ServerConfig `mapstructure:"server"`
	Client ClientConfig `mapstructure:"client"`
	Format FormatConfig `mapstructure:"format"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig configures the fixture API
type ServerConfig struct {
	Host        string      `mapstructure:"host"`
	Port        int         `mapstructure:"port"`
	Seed        string      `mapstructure:"seed"`
	MaxBodySize int64       `mapstructure:"max_body_size"`
	Cache       CacheConfig `mapstructure:"cache"`
	// Snapshot is a SQLite path or postgres:// URL the store is persisted to
	Snapshot string `mapstructure:"snapshot"`
	// SnapshotInterval also persists the store periodically while serving
	SnapshotInterval time.Duration   `mapstructure:"snapshot_interval"`
	Auth             AuthConfig      `mapstructure:"auth"`
	RateLimit        RateLimitConfig `mapstructure:"rate_limit"`
	// Pprof is the address of a separate profiling listener; empty disables it
	Pprof string `mapstructure:"pprof"`
}

// RateLimitConfig throttles clients of the fixture API; a zero limit disables it
type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
	// Backend is "memory" or "redis"; redis shares server.cache.redis_url
	Backend string `mapstructure:"backend"`
}

// AuthConfig protects writes to the fixture API; an empty secret leaves them open
type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// CacheConfig selects the document cache of the fixture API
type CacheConfig struct {
	// Backend is "", "memory" or "redis"; empty disables caching
	Backend  string        `mapstructure:"backend"`
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ClientConfig configures remote fetches
type ClientConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Token   string        `mapstructure:"token"`
}

// FormatConfig configures date formatting and JSON output
type FormatConfig struct {
	Location string `mapstructure:"location"`
	Indent   int    `mapstructure:"indent"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Address returns the listen address of the fixture API
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load loads the configuration from spine.yml or spine.yaml in the current directory,
// or from path when it is not empty. Environment variables prefixed with SPINE_
// override file values. Relative schema and seed paths in a file are resolved against
// the file's directory.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("schema", "")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.seed", "")
	v.SetDefault("server.max_body_size", 1<<20)
	v.SetDefault("server.snapshot", "")
	v.SetDefault("server.cache.backend", "")
	v.SetDefault("server.cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("server.cache.ttl", 5*time.Minute)
	v.SetDefault("server.snapshot_interval", 0)
	v.SetDefault("server.pprof", "")
	v.SetDefault("server.rate_limit.limit", 0)
	v.SetDefault("server.rate_limit.window", time.Minute)
	v.SetDefault("server.rate_limit.backend", "memory")
	v.SetDefault("server.auth.secret", "")
	v.SetDefault("server.auth.token_ttl", 24*time.Hour)
	v.SetDefault("client.base_url", "http://localhost:4000")
	v.SetDefault("client.timeout", 30*time.Second)
	v.SetDefault("client.token", "")
	v.SetDefault("format.location", "")
	v.SetDefault("format.indent", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("spine")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("spine")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if used := v.ConfigFileUsed(); used != "" {
		dir := filepath.Dir(used)
		config.Schema = relativeTo(dir, config.Schema)
		config.Server.Seed = relativeTo(dir, config.Server.Seed)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// relativeTo resolves a relative path found in a config file against the file's directory
func relativeTo(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// Location resolves format.location, defaulting to nil (keep each value's own offset)
func (c *Config) Location() (*time.Location, error) {
	if c.Format.Location == "" {
		return nil, nil
	}
	return time.LoadLocation(c.Format.Location)
}

// Logger builds the zap logger described by the log section
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	if c.Log.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got: %d", cfg.Server.Port)
	}
	if cfg.Server.MaxBodySize <= 0 {
		return fmt.Errorf("server.max_body_size must be positive, got: %d", cfg.Server.MaxBodySize)
	}
	switch cfg.Server.Cache.Backend {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("server.cache.backend must be memory or redis, got: %s", cfg.Server.Cache.Backend)
	}
	if cfg.Server.SnapshotInterval < 0 {
		return fmt.Errorf("server.snapshot_interval must not be negative, got: %s", cfg.Server.SnapshotInterval)
	}
	if cfg.Server.RateLimit.Limit < 0 {
		return fmt.Errorf("server.rate_limit.limit must not be negative, got: %d", cfg.Server.RateLimit.Limit)
	}
	if cfg.Server.RateLimit.Limit > 0 {
		if cfg.Server.RateLimit.Window <= 0 {
			return fmt.Errorf("server.rate_limit.window must be positive, got: %s", cfg.Server.RateLimit.Window)
		}
		switch cfg.Server.RateLimit.Backend {
		case "memory", "redis":
		default:
			return fmt.Errorf("server.rate_limit.backend must be memory or redis, got: %s", cfg.Server.RateLimit.Backend)
		}
	}
	if cfg.Server.Auth.TokenTTL < 0 {
		return fmt.Errorf("server.auth.token_ttl must not be negative, got: %s", cfg.Server.Auth.TokenTTL)
	}
	if cfg.Client.Timeout < 0 {
		return fmt.Errorf("client.timeout must not be negative, got: %s", cfg.Client.Timeout)
	}
	if cfg.Format.Indent < 0 || cfg.Format.Indent > 8 {
		return fmt.Errorf("format.indent must be between 0 and 8, got: %d", cfg.Format.Indent)
	}
	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("format.location: %w", err)
	}
	if _, err := parseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func parseLevel(s string) (zapcore.Level, error) {
	var level zapcore.Level
	err := level.UnmarshalText([]byte(s))
	return level, err
}
