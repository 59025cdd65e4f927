package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for HookRelay
type Config struct {
	// HTTP server configuration
	HTTP HTTPConfig

	// MongoDB configuration
	MongoDB MongoDBConfig

	// Redis configuration (leader election)
	Redis RedisConfig

	// Dispatch worker pool configuration
	Dispatch DispatchConfig

	// Publisher batching configuration
	Publisher PublisherConfig

	// Security validator configuration
	Security SecurityConfig

	// API authentication configuration
	Auth AuthConfig

	// Development mode
	DevMode bool
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port        int
	CORSOrigins []string
}

// MongoDBConfig holds MongoDB connection configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URL string
}

// DispatchConfig holds delivery worker pool configuration
type DispatchConfig struct {
	// Concurrency is the number of delivery workers
	Concurrency int

	// BatchSize is the maximum deliveries claimed per poll
	BatchSize int

	// PollInterval is how often to poll for pending deliveries
	PollInterval time.Duration

	// RetryInterval is how often to poll for due retries
	RetryInterval time.Duration

	// CleanupInterval is how often the cleanup/dead-letter sweep runs
	CleanupInterval time.Duration

	// DeadLetterAge is how old a non-terminal delivery may get before it is
	// forced to abandoned
	DeadLetterAge time.Duration

	// Retention is how long delivered rows are kept before purging
	Retention time.Duration

	// ShutdownTimeout bounds the wait for busy workers on Stop
	ShutdownTimeout time.Duration

	// EnableCleanup toggles the cleanup/dead-letter loop
	EnableCleanup bool

	// EnableHealthCheck toggles the periodic health snapshot log
	EnableHealthCheck bool

	// RatePerMinute optionally caps dispatches per minute across the pool.
	// Zero disables the pool-level limiter.
	RatePerMinute int

	// LeaderElection enables the Redis leader lock for multi-instance runs
	LeaderElection LeaderElectionConfig
}

// LeaderElectionConfig holds leader election settings
type LeaderElectionConfig struct {
	Enabled         bool
	LockName        string
	TTL             time.Duration
	RefreshInterval time.Duration
}

// PublisherConfig holds async publish buffering configuration
type PublisherConfig struct {
	BatchSize         int
	FlushInterval     time.Duration
	MaxEnqueueRetries int
}

// SecurityConfig holds security validator configuration
type SecurityConfig struct {
	MaxPayloadBytes int64
	ReplayTolerance time.Duration
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	// JWTSecret signs/verifies API bearer tokens (HS256)
	JWTSecret string
	Issuer    string
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := defaultConfig()
	applyEnv(cfg)
	return cfg, nil
}

// defaultConfig returns the built-in defaults before any file or env overlay
func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:4200"},
		},

		MongoDB: MongoDBConfig{
			URI:      "mongodb://localhost:27017",
			Database: "hookrelay",
		},

		Dispatch: DispatchConfig{
			Concurrency:       5,
			BatchSize:         10,
			PollInterval:      5 * time.Second,
			RetryInterval:     30 * time.Second,
			CleanupInterval:   time.Hour,
			DeadLetterAge:     24 * time.Hour,
			Retention:         7 * 24 * time.Hour,
			ShutdownTimeout:   30 * time.Second,
			EnableCleanup:     true,
			EnableHealthCheck: true,
			LeaderElection: LeaderElectionConfig{
				LockName:        "hookrelay-dispatch-leader",
				TTL:             30 * time.Second,
				RefreshInterval: 10 * time.Second,
			},
		},

		Publisher: PublisherConfig{
			BatchSize:         10,
			FlushInterval:     5 * time.Second,
			MaxEnqueueRetries: 3,
		},

		Security: SecurityConfig{
			MaxPayloadBytes: 10 * 1024 * 1024,
			ReplayTolerance: 5 * time.Minute,
		},

		Auth: AuthConfig{
			Issuer: "hookrelay",
		},
	}
}

// applyEnv overlays set environment variables on cfg. Each getter falls back
// to the current value, so unset variables leave file/default values alone
// and set ones always win.
func applyEnv(cfg *Config) {
	cfg.HTTP.Port = getEnvInt("HTTP_PORT", cfg.HTTP.Port)
	cfg.HTTP.CORSOrigins = getEnvSlice("CORS_ORIGINS", cfg.HTTP.CORSOrigins)

	cfg.MongoDB.URI = getEnv("MONGODB_URI", cfg.MongoDB.URI)
	cfg.MongoDB.Database = getEnv("MONGODB_DATABASE", cfg.MongoDB.Database)

	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)

	d := &cfg.Dispatch
	d.Concurrency = getEnvInt("DISPATCH_CONCURRENCY", d.Concurrency)
	d.BatchSize = getEnvInt("DISPATCH_BATCH_SIZE", d.BatchSize)
	d.PollInterval = getEnvDuration("DISPATCH_POLL_INTERVAL", d.PollInterval)
	d.RetryInterval = getEnvDuration("DISPATCH_RETRY_INTERVAL", d.RetryInterval)
	d.CleanupInterval = getEnvDuration("DISPATCH_CLEANUP_INTERVAL", d.CleanupInterval)
	d.DeadLetterAge = getEnvDuration("DISPATCH_DEAD_LETTER_AGE", d.DeadLetterAge)
	d.Retention = getEnvDuration("DISPATCH_RETENTION", d.Retention)
	d.ShutdownTimeout = getEnvDuration("DISPATCH_SHUTDOWN_TIMEOUT", d.ShutdownTimeout)
	d.EnableCleanup = getEnvBool("DISPATCH_CLEANUP_ENABLED", d.EnableCleanup)
	d.EnableHealthCheck = getEnvBool("DISPATCH_HEALTH_CHECK_ENABLED", d.EnableHealthCheck)
	d.RatePerMinute = getEnvInt("DISPATCH_RATE_PER_MINUTE", d.RatePerMinute)
	d.LeaderElection.Enabled = getEnvBool("LEADER_ELECTION_ENABLED", d.LeaderElection.Enabled)
	d.LeaderElection.LockName = getEnv("LEADER_LOCK_NAME", d.LeaderElection.LockName)
	d.LeaderElection.TTL = getEnvDuration("LEADER_TTL", d.LeaderElection.TTL)
	d.LeaderElection.RefreshInterval = getEnvDuration("LEADER_REFRESH_INTERVAL", d.LeaderElection.RefreshInterval)

	cfg.Publisher.BatchSize = getEnvInt("PUBLISH_BATCH_SIZE", cfg.Publisher.BatchSize)
	cfg.Publisher.FlushInterval = getEnvDuration("PUBLISH_FLUSH_INTERVAL", cfg.Publisher.FlushInterval)
	cfg.Publisher.MaxEnqueueRetries = getEnvInt("PUBLISH_MAX_ENQUEUE_RETRIES", cfg.Publisher.MaxEnqueueRetries)

	cfg.Security.MaxPayloadBytes = getEnvInt64("SECURITY_MAX_PAYLOAD_BYTES", cfg.Security.MaxPayloadBytes)
	cfg.Security.ReplayTolerance = getEnvDuration("SECURITY_REPLAY_TOLERANCE", cfg.Security.ReplayTolerance)

	cfg.Auth.JWTSecret = getEnv("API_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.Issuer = getEnv("API_JWT_ISSUER", cfg.Auth.Issuer)

	cfg.DevMode = getEnvBool("HOOKRELAY_DEV", cfg.DevMode)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.Split(value, ",")
	}
	return defaultValue
}
