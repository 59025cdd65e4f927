package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the TOML configuration file structure.
// The file seeds defaults; environment variables still win because the env
// overlay runs after the file is applied.
type TOMLConfig struct {
	HTTP      TOMLHTTPConfig      `toml:"http"`
	MongoDB   TOMLMongoDBConfig   `toml:"mongodb"`
	Redis     TOMLRedisConfig     `toml:"redis"`
	Dispatch  TOMLDispatchConfig  `toml:"dispatch"`
	Publisher TOMLPublisherConfig `toml:"publisher"`
	Security  TOMLSecurityConfig  `toml:"security"`
	Auth      TOMLAuthConfig      `toml:"auth"`
	DevMode   bool                `toml:"dev_mode"`
}

// TOMLHTTPConfig represents HTTP configuration in TOML
type TOMLHTTPConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// TOMLMongoDBConfig represents MongoDB configuration in TOML
type TOMLMongoDBConfig struct {
	URI      string `toml:"uri"`
	Database string `toml:"database"`
}

// TOMLRedisConfig represents Redis configuration in TOML
type TOMLRedisConfig struct {
	URL string `toml:"url"`
}

// TOMLDispatchConfig represents dispatch pool configuration in TOML
type TOMLDispatchConfig struct {
	Concurrency       int    `toml:"concurrency"`
	BatchSize         int    `toml:"batch_size"`
	PollInterval      string `toml:"poll_interval"`
	RetryInterval     string `toml:"retry_interval"`
	CleanupInterval   string `toml:"cleanup_interval"`
	DeadLetterAge     string `toml:"dead_letter_age"`
	Retention         string `toml:"retention"`
	CleanupEnabled    *bool  `toml:"cleanup_enabled"`
	HealthCheck       *bool  `toml:"health_check_enabled"`
	RatePerMinute     int    `toml:"rate_per_minute"`
	LeaderElection    bool   `toml:"leader_election"`
	LeaderLockName    string `toml:"leader_lock_name"`
}

// TOMLPublisherConfig represents publisher batching configuration in TOML
type TOMLPublisherConfig struct {
	BatchSize         int    `toml:"batch_size"`
	FlushInterval     string `toml:"flush_interval"`
	MaxEnqueueRetries int    `toml:"max_enqueue_retries"`
}

// TOMLSecurityConfig represents security configuration in TOML
type TOMLSecurityConfig struct {
	MaxPayloadBytes int64  `toml:"max_payload_bytes"`
	ReplayTolerance string `toml:"replay_tolerance"`
}

// TOMLAuthConfig represents API auth configuration in TOML
type TOMLAuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
	Issuer    string `toml:"issuer"`
}

// LoadFile loads configuration in precedence order: built-in defaults, then
// the TOML file, then environment variables on top. Returns the env-resolved
// config when path is empty or the file does not exist.
func LoadFile(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			var fileCfg TOMLConfig
			if _, err := toml.DecodeFile(path, &fileCfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
			applyTOML(cfg, &fileCfg)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyTOML(cfg *Config, f *TOMLConfig) {
	if f.HTTP.Port != 0 {
		cfg.HTTP.Port = f.HTTP.Port
	}
	if len(f.HTTP.CORSOrigins) > 0 {
		cfg.HTTP.CORSOrigins = f.HTTP.CORSOrigins
	}
	if f.MongoDB.URI != "" {
		cfg.MongoDB.URI = f.MongoDB.URI
	}
	if f.MongoDB.Database != "" {
		cfg.MongoDB.Database = f.MongoDB.Database
	}
	if f.Redis.URL != "" {
		cfg.Redis.URL = f.Redis.URL
	}

	d := &cfg.Dispatch
	if f.Dispatch.Concurrency > 0 {
		d.Concurrency = f.Dispatch.Concurrency
	}
	if f.Dispatch.BatchSize > 0 {
		d.BatchSize = f.Dispatch.BatchSize
	}
	setDuration(&d.PollInterval, f.Dispatch.PollInterval)
	setDuration(&d.RetryInterval, f.Dispatch.RetryInterval)
	setDuration(&d.CleanupInterval, f.Dispatch.CleanupInterval)
	setDuration(&d.DeadLetterAge, f.Dispatch.DeadLetterAge)
	setDuration(&d.Retention, f.Dispatch.Retention)
	if f.Dispatch.CleanupEnabled != nil {
		d.EnableCleanup = *f.Dispatch.CleanupEnabled
	}
	if f.Dispatch.HealthCheck != nil {
		d.EnableHealthCheck = *f.Dispatch.HealthCheck
	}
	if f.Dispatch.RatePerMinute > 0 {
		d.RatePerMinute = f.Dispatch.RatePerMinute
	}
	if f.Dispatch.LeaderElection {
		d.LeaderElection.Enabled = true
	}
	if f.Dispatch.LeaderLockName != "" {
		d.LeaderElection.LockName = f.Dispatch.LeaderLockName
	}

	if f.Publisher.BatchSize > 0 {
		cfg.Publisher.BatchSize = f.Publisher.BatchSize
	}
	setDuration(&cfg.Publisher.FlushInterval, f.Publisher.FlushInterval)
	if f.Publisher.MaxEnqueueRetries > 0 {
		cfg.Publisher.MaxEnqueueRetries = f.Publisher.MaxEnqueueRetries
	}

	if f.Security.MaxPayloadBytes > 0 {
		cfg.Security.MaxPayloadBytes = f.Security.MaxPayloadBytes
	}
	setDuration(&cfg.Security.ReplayTolerance, f.Security.ReplayTolerance)

	if f.Auth.JWTSecret != "" {
		cfg.Auth.JWTSecret = f.Auth.JWTSecret
	}
	if f.Auth.Issuer != "" {
		cfg.Auth.Issuer = f.Auth.Issuer
	}

	if f.DevMode {
		cfg.DevMode = true
	}
}

func setDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}
