/*
Package config loads service configuration.

Sources, later overriding earlier:
  1. built-in defaults
  2. optional YAML file (-config path)
  3. environment variables listed in envKeyMap
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/ynaut/reward-ledger/rewards"
)

type Config struct {
	App      AppConfig      `koanf:"app"`
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	CORS     CORSConfig     `koanf:"cors"`
	Rewards  RewardsConfig  `koanf:"rewards"`
	Catalog  CatalogConfig  `koanf:"catalog"`
	Auth     AuthConfig     `koanf:"auth"`
	Sweeper  SweeperConfig  `koanf:"sweeper"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

// RewardsConfig holds the engagement reward schedule.
type RewardsConfig struct {
	Like          int64         `koanf:"like"`
	Comment       int64         `koanf:"comment"`
	Post          int64         `koanf:"post"`
	Story         int64         `koanf:"story"`
	ChannelCreate int64         `koanf:"channel_create"`
	StoryTTL      time.Duration `koanf:"story_ttl"`
	SignupBonus   int64         `koanf:"signup_bonus"`
}

// CatalogConfig points at an optional JSON catalog. Empty means the stock
// catalog.
type CatalogConfig struct {
	Path string `koanf:"path"`
}

type AuthConfig struct {
	SessionTTL time.Duration `koanf:"session_ttl"`
	BcryptCost int           `koanf:"bcrypt_cost"`
}

// SweeperConfig controls the background cleanup of expired stories and
// sessions.
type SweeperConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}

// Load reads configuration from defaults, the optional file and the
// environment, then validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "yn-ledger",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "15s",
		"server.write_timeout":    "15s",
		"server.idle_timeout":     "60s",
		"server.shutdown_timeout": "10s",

		"database.path": "./data/yn.db",

		"log.level":  "info",
		"log.format": "json",

		"cors.allowed_origins":   []string{"http://localhost:3000", "http://localhost:5173"},
		"cors.allowed_methods":   []string{"GET", "POST", "OPTIONS"},
		"cors.allowed_headers":   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		"cors.allow_credentials": true,
		"cors.max_age":           300,

		"rewards.like":           5,
		"rewards.comment":        10,
		"rewards.post":           20,
		"rewards.story":          15,
		"rewards.channel_create": 50,
		"rewards.story_ttl":      "24h",
		"rewards.signup_bonus":   0,

		"catalog.path": "",

		"auth.session_ttl": "720h",
		"auth.bcrypt_cost": 10,

		"sweeper.enabled":  true,
		"sweeper.interval": "5m",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"YN_ENVIRONMENT":      "app.environment",
	"YN_HOST":             "server.host",
	"YN_PORT":             "server.port",
	"YN_DATABASE_PATH":    "database.path",
	"YN_LOG_LEVEL":        "log.level",
	"YN_LOG_FORMAT":       "log.format",
	"YN_CATALOG_PATH":     "catalog.path",
	"YN_SIGNUP_BONUS":     "rewards.signup_bonus",
	"YN_STORY_TTL":        "rewards.story_ttl",
	"YN_SESSION_TTL":      "auth.session_ttl",
	"YN_BCRYPT_COST":      "auth.bcrypt_cost",
	"YN_SWEEPER_ENABLED":  "sweeper.enabled",
	"YN_SWEEPER_INTERVAL": "sweeper.interval",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validate(c *Config) error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}

	if err := c.Rewards.Schedule().Validate(); err != nil {
		return fmt.Errorf("rewards: %w", err)
	}

	if c.Rewards.SignupBonus < 0 {
		return fmt.Errorf("rewards.signup_bonus must not be negative")
	}

	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl must be positive")
	}

	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper.interval must be positive")
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("CORS wildcard '*' cannot be used with allow_credentials")
			}
		}
	}

	return nil
}

// Schedule converts the rewards section into a rewards.Schedule.
func (r RewardsConfig) Schedule() rewards.Schedule {
	return rewards.Schedule{
		Like:          r.Like,
		Comment:       r.Comment,
		Post:          r.Post,
		Story:         r.Story,
		ChannelCreate: r.ChannelCreate,
		StoryTTL:      r.StoryTTL,
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
