package portalauth

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config holds every tunable of the client. Build it from DefaultConfig and adjust.
type Config struct {
	API          APIConfig
	Session      SessionConfig
	Verification VerificationConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
API CONFIG
====================================
*/

type APIConfig struct {
	BaseURL string
	// Timeout bounds each backend call, including reading the body.
	Timeout time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionBackend selects where the session records live.
type SessionBackend string

const (
	SessionBackendMemory SessionBackend = "memory"
	SessionBackendFile   SessionBackend = "file"
	SessionBackendRedis  SessionBackend = "redis"
)

type SessionConfig struct {
	Backend SessionBackend
	// FilePath is required for the file backend.
	FilePath string
	// KeyPrefix namespaces the two records, "<prefix>:tokens" and "<prefix>:user".
	KeyPrefix string
	// RedisTTL expires Redis records; zero keeps them until logout.
	RedisTTL time.Duration
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

type VerificationConfig struct {
	CountdownTick time.Duration
	PollInterval  time.Duration
}

/*
====================================
AUDIT & METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns a config for a local backend with an in-memory session.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 10 * time.Second,
		},
		Session: SessionConfig{
			Backend:   SessionBackendMemory,
			KeyPrefix: "portal",
		},
		Verification: VerificationConfig{
			CountdownTick: time.Second,
			PollInterval:  2 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func (c *Config) Validate() error {
	// API
	if c.API.BaseURL == "" {
		return errors.New("API BaseURL is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("API BaseURL must be an absolute http(s) URL")
	}
	if c.API.Timeout < 0 {
		return errors.New("API Timeout must be >= 0")
	}

	// Session
	switch c.Session.Backend {
	case SessionBackendMemory, SessionBackendRedis:
	case SessionBackendFile:
		if strings.TrimSpace(c.Session.FilePath) == "" {
			return errors.New("Session FilePath is required for the file backend")
		}
	default:
		return errors.New("Session Backend must be 'memory', 'file' or 'redis'")
	}
	if strings.Contains(c.Session.KeyPrefix, " ") {
		return errors.New("Session KeyPrefix must not contain spaces")
	}
	if c.Session.RedisTTL < 0 {
		return errors.New("Session RedisTTL must be >= 0")
	}

	// Verification
	if c.Verification.CountdownTick <= 0 {
		return errors.New("Verification CountdownTick must be > 0")
	}
	if c.Verification.PollInterval <= 0 {
		return errors.New("Verification PollInterval must be > 0")
	}
	if c.Verification.PollInterval < c.Verification.CountdownTick {
		return errors.New("Verification PollInterval must be >= CountdownTick")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
