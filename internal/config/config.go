package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
// In Go, we use structs to group related data together
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Edge       EdgeConfig
	RateLimit  RateLimitConfig
	Clicks     ClicksConfig
	Reputation ReputationConfig
	App        AppConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings for the
// link/domain source of truth and the click sink
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MinIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings for the cache tier
// and the rate-limit counters
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// EdgeConfig holds the request-classification and resolution surface:
// which hosts are ours, how keys normalize, and how long cache entries live
type EdgeConfig struct {
	// AppDomains are hosts that belong to the dashboard itself and must
	// never reach the link resolver (e.g., "app.linkedge.io", "localhost")
	AppDomains []string
	// DefaultDomains are our own short domains; keys on them are
	// case-insensitive and diacritic-stripped
	DefaultDomains []string
	// CaseSensitiveDomains is the small customer allowlist where keys
	// keep their exact case (anti-phishing measure; see classifier)
	CaseSensitiveDomains []string
	// PositiveTTL bounds staleness of cached link/domain records
	PositiveTTL time.Duration
	// NegativeTTL bounds how long a tombstone absorbs repeat lookups
	// for a nonexistent key; kept short so new links surface quickly
	NegativeTTL time.Duration
	// LookupTimeout caps source-of-truth queries on cache miss
	LookupTimeout time.Duration
}

// RateLimitConfig holds the per-IP fixed-window thresholds
type RateLimitConfig struct {
	Enabled bool
	// RedirectPerWindow limits redirects per client IP per window
	RedirectPerWindow int
	Window            time.Duration
}

// ClicksConfig holds the background click-recorder settings
type ClicksConfig struct {
	Enabled   bool
	QueueSize int
	Workers   int
	// DrainTimeout bounds how long shutdown waits for queued events
	DrainTimeout time.Duration
}

// ReputationConfig holds the blocklist snapshot source
type ReputationConfig struct {
	// FilePath points at the curated JSON blocklist; watched for changes
	FilePath string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Environment string
	LogLevel    string
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first if present, so local
// development doesn't need to export everything by hand.
func Load() (*Config, error) {
	// Ignore the error: a missing .env just means real env vars are used
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "10s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "10s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "120s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "linkedge"),
			Password:        getEnv("DB_PASSWORD", "dev_password_123"),
			DBName:          getEnv("DB_NAME", "linkedge"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MinIdleConns:    parseInt("DB_MIN_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt("REDIS_DB", 0),
		},
		Edge: EdgeConfig{
			AppDomains:           parseList("EDGE_APP_DOMAINS", "app.linkedge.io,preview.linkedge.io,localhost"),
			DefaultDomains:       parseList("EDGE_DEFAULT_DOMAINS", "lnk.sh,lnked.to"),
			CaseSensitiveDomains: parseList("EDGE_CASE_SENSITIVE_DOMAINS", ""),
			PositiveTTL:          parseDuration("EDGE_CACHE_TTL", "24h"),
			NegativeTTL:          parseDuration("EDGE_TOMBSTONE_TTL", "60s"),
			LookupTimeout:        parseDuration("EDGE_LOOKUP_TIMEOUT", "300ms"),
		},
		RateLimit: RateLimitConfig{
			Enabled:           parseBool("RATE_LIMIT_ENABLED", true),
			RedirectPerWindow: parseInt("RATE_LIMIT_REDIRECTS", 600),
			Window:            parseDuration("RATE_LIMIT_WINDOW", "1m"),
		},
		Clicks: ClicksConfig{
			Enabled:      parseBool("CLICKS_ENABLED", true),
			QueueSize:    parseInt("CLICKS_QUEUE_SIZE", 4096),
			Workers:      parseInt("CLICKS_WORKERS", 4),
			DrainTimeout: parseDuration("CLICKS_DRAIN_TIMEOUT", "10s"),
		},
		Reputation: ReputationConfig{
			FilePath: getEnv("REPUTATION_FILE", "config/reputation.json"),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

// DatabaseDSN returns the PostgreSQL connection string
// DSN = Data Source Name, a standard format for database connections
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address in host:port format
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Helper functions to parse environment variables with defaults

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		// If parsing fails, parse the default value
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}

// parseList splits a comma-separated env var, trimming whitespace and
// dropping empty entries
func parseList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
