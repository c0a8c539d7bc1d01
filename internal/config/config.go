// Package config loads settings for the portal CLI and the development backend from
// PORTAL_* environment variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/medportal/portalauth"
)

const envPrefix = "PORTAL"

type Config struct {
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	APIURL     string        `mapstructure:"API_URL"`
	APITimeout time.Duration `mapstructure:"API_TIMEOUT"`

	SessionBackend  string        `mapstructure:"SESSION_BACKEND"`
	SessionFile     string        `mapstructure:"SESSION_FILE"`
	SessionPrefix   string        `mapstructure:"SESSION_PREFIX"`
	SessionRedisTTL time.Duration `mapstructure:"SESSION_REDIS_TTL"`
	RedisAddr       string        `mapstructure:"REDIS_ADDR"`

	CountdownTick time.Duration `mapstructure:"COUNTDOWN_TICK"`
	PollInterval  time.Duration `mapstructure:"POLL_INTERVAL"`

	AuditEnabled bool `mapstructure:"AUDIT_ENABLED"`

	DevAddr          string        `mapstructure:"DEV_ADDR"`
	DevRedisAddr     string        `mapstructure:"DEV_REDIS_ADDR"`
	DevPrefix        string        `mapstructure:"DEV_PREFIX"`
	DevJWTSecret     string        `mapstructure:"DEV_JWT_SECRET"`
	DevAccessTTL     time.Duration `mapstructure:"DEV_ACCESS_TTL"`
	DevCodeTTL       time.Duration `mapstructure:"DEV_CODE_TTL"`
	DevBotName       string        `mapstructure:"DEV_BOT_NAME"`
	DevWebhookSecret string        `mapstructure:"DEV_WEBHOOK_SECRET"`
	DevSeed          bool          `mapstructure:"DEV_SEED"`
}

var keys = []string{
	"ENV", "LOG_LEVEL",
	"API_URL", "API_TIMEOUT",
	"SESSION_BACKEND", "SESSION_FILE", "SESSION_PREFIX", "SESSION_REDIS_TTL", "REDIS_ADDR",
	"COUNTDOWN_TICK", "POLL_INTERVAL",
	"AUDIT_ENABLED",
	"DEV_ADDR", "DEV_REDIS_ADDR", "DEV_PREFIX", "DEV_JWT_SECRET", "DEV_ACCESS_TTL",
	"DEV_CODE_TTL", "DEV_BOT_NAME", "DEV_WEBHOOK_SECRET", "DEV_SEED",
}

// Load reads configuration from the environment and, when path is not empty, from
// that file. Environment variables win over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("API_URL", "http://localhost:8080")
	v.SetDefault("API_TIMEOUT", 10*time.Second)
	v.SetDefault("SESSION_BACKEND", string(portalauth.SessionBackendFile))
	v.SetDefault("SESSION_FILE", defaultSessionFile())
	v.SetDefault("SESSION_PREFIX", "portal")
	v.SetDefault("COUNTDOWN_TICK", time.Second)
	v.SetDefault("POLL_INTERVAL", 2*time.Second)
	v.SetDefault("DEV_ADDR", ":8080")
	v.SetDefault("DEV_PREFIX", "portal-dev")
	v.SetDefault("DEV_ACCESS_TTL", 15*time.Minute)
	v.SetDefault("DEV_CODE_TTL", 5*time.Minute)
	v.SetDefault("DEV_BOT_NAME", "medportal_bot")
	v.SetDefault("DEV_SEED", true)

	// Bind explicitly so Unmarshal sees variables that have no default.
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "portal", "session.json")
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks the settings that the client config does not cover.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.SessionBackend == string(portalauth.SessionBackendRedis) && c.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required for the redis session backend")
	}
	if c.DevCodeTTL <= 0 {
		return errors.New("DEV_CODE_TTL must be > 0")
	}
	if c.DevAccessTTL <= 0 {
		return errors.New("DEV_ACCESS_TTL must be > 0")
	}
	cc := c.Client()
	return cc.Validate()
}

// Client returns the library configuration.
func (c *Config) Client() portalauth.Config {
	cfg := portalauth.DefaultConfig()
	cfg.API.BaseURL = c.APIURL
	cfg.API.Timeout = c.APITimeout
	cfg.Session.Backend = portalauth.SessionBackend(c.SessionBackend)
	cfg.Session.FilePath = c.SessionFile
	cfg.Session.KeyPrefix = c.SessionPrefix
	cfg.Session.RedisTTL = c.SessionRedisTTL
	cfg.Verification.CountdownTick = c.CountdownTick
	cfg.Verification.PollInterval = c.PollInterval
	cfg.Audit.Enabled = c.AuditEnabled
	return cfg
}

// Logger builds the process logger. Development mode writes human-readable lines.
func (c *Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if c.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return logger.Level(level)
}
