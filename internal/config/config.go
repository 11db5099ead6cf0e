package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backends
const (
	StoreBackendMemory   = "memory"
	StoreBackendPostgres = "postgres"
)

// Vehicle lock backends
const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

// Config holds all application configuration
type Config struct {
	// HTTP server
	HTTPPort        string
	MetricsPort     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Logging configuration
	LogLevel  string
	LogFormat string

	// Persistence
	StoreBackend            string
	PostgresURL             string
	PostgresMaxOpenConns    int
	PostgresMaxIdleConns    int
	PostgresConnMaxLifetime time.Duration

	// Redis (vehicle lock + readiness)
	RedisURL         string
	RedisPoolSize    int
	RedisMinIdleConn int
	RedisMaxRetries  int
	RedisDialTimeout time.Duration

	// Vehicle serialization point
	VehicleLockBackend string
	VehicleLockTTL     time.Duration
	VehicleLockWait    time.Duration

	// Expiry sweeper
	SweepInterval    time.Duration
	SweepTickTimeout time.Duration
	AuditInterval    time.Duration

	// Leader election (only the leader runs the sweeper)
	LeaderElectionEnabled       bool
	LeaderElectionLockName      string
	LeaderElectionNamespace     string
	LeaderElectionDuration      time.Duration
	LeaderElectionRenewDeadline time.Duration
	LeaderElectionRetryPeriod   time.Duration
	PodName                     string
	KubeConfigPath              string

	// Gateway rate limiting (per actor)
	RateLimitRPS   float64
	RateLimitBurst int

	// Tracing
	OTLPEndpoint string
	ServiceName  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		StoreBackend:            getEnv("STORE_BACKEND", StoreBackendMemory),
		PostgresURL:             getEnv("POSTGRES_URL", ""),
		PostgresMaxOpenConns:    getEnvInt("POSTGRES_MAX_OPEN_CONNS", 20),
		PostgresMaxIdleConns:    getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
		PostgresConnMaxLifetime: getEnvDuration("POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisPoolSize:    getEnvInt("REDIS_POOL_SIZE", 20),
		RedisMinIdleConn: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
		RedisMaxRetries:  getEnvInt("REDIS_MAX_RETRIES", 3),
		RedisDialTimeout: getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),

		VehicleLockBackend: getEnv("VEHICLE_LOCK_BACKEND", LockBackendLocal),
		VehicleLockTTL:     getEnvDuration("VEHICLE_LOCK_TTL", 10*time.Second),
		VehicleLockWait:    getEnvDuration("VEHICLE_LOCK_WAIT", 5*time.Second),

		SweepInterval:    getEnvDuration("SWEEP_INTERVAL", 60*time.Second),
		SweepTickTimeout: getEnvDuration("SWEEP_TICK_TIMEOUT", 50*time.Second),
		AuditInterval:    getEnvDuration("AUDIT_INTERVAL", 5*time.Minute),

		LeaderElectionEnabled:       getEnvBool("LEADER_ELECTION_ENABLED", false),
		LeaderElectionLockName:      getEnv("LEADER_ELECTION_LOCK_NAME", "parkease-sweeper"),
		LeaderElectionNamespace:     getEnv("LEADER_ELECTION_NAMESPACE", "default"),
		LeaderElectionDuration:      getEnvDuration("LEADER_ELECTION_LEASE_DURATION", 15*time.Second),
		LeaderElectionRenewDeadline: getEnvDuration("LEADER_ELECTION_RENEW_DEADLINE", 10*time.Second),
		LeaderElectionRetryPeriod:   getEnvDuration("LEADER_ELECTION_RETRY_PERIOD", 2*time.Second),
		PodName:                     getEnv("POD_NAME", hostname()),
		KubeConfigPath:              getEnv("KUBECONFIG", ""),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  getEnv("OTEL_SERVICE_NAME", "parkease"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", c.LogLevel)
	}

	switch c.StoreBackend {
	case StoreBackendMemory:
	case StoreBackendPostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("invalid store backend: %s (must be memory/postgres)", c.StoreBackend)
	}

	switch c.VehicleLockBackend {
	case LockBackendLocal:
	case LockBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when VEHICLE_LOCK_BACKEND=redis")
		}
	default:
		return fmt.Errorf("invalid vehicle lock backend: %s (must be local/redis)", c.VehicleLockBackend)
	}

	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate_limit_rps and rate_limit_burst must be positive")
	}

	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return defaultVal
		}
		return b
	}
	return defaultVal
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return defaultVal
		}
		return i
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return defaultVal
		}
		return f
	}
	return defaultVal
}

// getEnvDuration parses Go duration strings ("30s", "5m"); invalid values fall back to the default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return defaultVal
		}
		return d
	}
	return defaultVal
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "parkease"
	}
	return name
}
