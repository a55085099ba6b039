package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Lifecycle LifecycleConfig

	// Path to the optional YAML plan-limits file; when empty the compiled-in
	// defaults apply.
	LimitsFile string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration for the per-organization rate
// limiter. Rate limiting is disabled when Addr is empty.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LifecycleConfig holds the tenant lifecycle knobs.
type LifecycleConfig struct {
	TrialDurationDays  int
	MaxExtensions      int
	MaxExtensionDays   int
	WarningLeadDays    int
	DemoTTL            time.Duration
	InitialTokenCredit int64
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("VERIDIAN_HOST", "0.0.0.0"),
			Port:            getEnv("VERIDIAN_PORT", "8080"),
			ReadTimeout:     getEnvDuration("VERIDIAN_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("VERIDIAN_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("VERIDIAN_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("VERIDIAN_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("VERIDIAN_POSTGRES_URL", "postgres://localhost/veridian?sslmode=disable"),
			MaxOpenConns:    getEnvInt("VERIDIAN_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns:    getEnvInt("VERIDIAN_POSTGRES_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("VERIDIAN_POSTGRES_CONN_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("VERIDIAN_REDIS_ADDR", ""),
			Password: getEnv("VERIDIAN_REDIS_PASSWORD", ""),
			DB:       getEnvInt("VERIDIAN_REDIS_DB", 0),
		},
		Lifecycle: LifecycleConfig{
			TrialDurationDays:  getEnvInt("VERIDIAN_TRIAL_DURATION_DAYS", 14),
			MaxExtensions:      getEnvInt("VERIDIAN_TRIAL_MAX_EXTENSIONS", 2),
			MaxExtensionDays:   getEnvInt("VERIDIAN_TRIAL_MAX_EXTENSION_DAYS", 14),
			WarningLeadDays:    getEnvInt("VERIDIAN_TRIAL_WARNING_LEAD_DAYS", 7),
			DemoTTL:            getEnvDuration("VERIDIAN_DEMO_TTL", 24*time.Hour),
			InitialTokenCredit: int64(getEnvInt("VERIDIAN_INITIAL_TOKEN_CREDIT", 1000)),
		},
		LimitsFile: getEnv("VERIDIAN_LIMITS_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for obvious misconfiguration.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Lifecycle.TrialDurationDays <= 0 {
		return fmt.Errorf("trial duration must be positive")
	}
	if c.Lifecycle.MaxExtensions < 0 {
		return fmt.Errorf("max extensions cannot be negative")
	}
	if c.Lifecycle.MaxExtensionDays <= 0 {
		return fmt.Errorf("max extension days must be positive")
	}
	if c.Lifecycle.WarningLeadDays <= 0 {
		return fmt.Errorf("warning lead days must be positive")
	}
	if c.Lifecycle.DemoTTL <= 0 {
		return fmt.Errorf("demo TTL must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
