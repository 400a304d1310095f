package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Retry     RetryConfig
	Promotion PromotionConfig
	Audit     AuditConfig
	Tags      TagsConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings for remote publication and
// audit mirroring
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig holds commit-lookup cache settings
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

// RetryConfig bounds tag-move retries on ref-update contention
type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

// PromotionConfig holds promotion-gate policy knobs
type PromotionConfig struct {
	// ReleaseBranches lists branches whose commits are release-eligible
	ReleaseBranches []string

	// MaxEvidenceAge bounds how old upstream success evidence may be
	MaxEvidenceAge time.Duration

	// PolicyRules are CEL constraints; all must hold for promotion
	PolicyRules []string
}

// AuditConfig holds audit-trail settings
type AuditConfig struct {
	Dir string
}

// TagsConfig holds tag-namespace settings
type TagsConfig struct {
	// Environments is the ordered promotion chain, e.g. staging,production
	Environments []string

	// DefaultRemote is the remote used by push when none is given
	DefaultRemote string
}

// RateLimitConfig bounds tag writes per window (requires Redis)
type RateLimitConfig struct {
	Enabled          bool
	WriteLimit       int64
	EnvironmentLimit int64
	WindowSeconds    int
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "tagkeeper"),
			User:        getEnv("POSTGRES_USER", "tagkeeper"),
			Password:    getEnv("POSTGRES_PASSWORD", "tagkeeper"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvInt("TAG_MOVE_MAX_ATTEMPTS", 3),
			Backoff:     getEnvDuration("TAG_MOVE_BACKOFF", 200*time.Millisecond),
		},
		Promotion: PromotionConfig{
			ReleaseBranches: getEnvSlice("PROMOTION_RELEASE_BRANCHES", []string{"main", "release"}),
			MaxEvidenceAge:  getEnvDuration("PROMOTION_MAX_EVIDENCE_AGE", 24*time.Hour),
			PolicyRules:     getEnvSlice("PROMOTION_POLICY_RULES", nil),
		},
		Audit: AuditConfig{
			Dir: getEnv("AUDIT_DIR", "audit"),
		},
		Tags: TagsConfig{
			Environments:  getEnvSlice("DEPLOY_ENVIRONMENTS", []string{"staging", "production"}),
			DefaultRemote: getEnv("DEFAULT_REMOTE", "origin"),
		},
		RateLimit: RateLimitConfig{
			Enabled:          getEnvBool("RATE_LIMIT_ENABLED", true),
			WriteLimit:       int64(getEnvInt("RATE_LIMIT_WRITES", 300)),
			EnvironmentLimit: int64(getEnvInt("RATE_LIMIT_PER_ENV", 60)),
			WindowSeconds:    getEnvInt("RATE_LIMIT_WINDOW_SEC", 60),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", false),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("tag move retry attempts must be >= 1")
	}

	if len(c.Tags.Environments) == 0 {
		return fmt.Errorf("at least one deploy environment is required")
	}

	return nil
}

// KnownEnvironment reports whether env is in the configured chain.
func (c *Config) KnownEnvironment(env string) bool {
	for _, e := range c.Tags.Environments {
		if e == env {
			return true
		}
	}
	return false
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the host:port address for Redis
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
