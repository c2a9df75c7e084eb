package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// WebSocket configuration
	WebSocket WebSocketConfig

	// Logging configuration
	Logging LoggingConfig

	// TestIT API configuration
	TestIT TestITConfig

	// Collection pipeline configuration
	Collector CollectorConfig

	// Application metadata
	App AppConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	AutoMigrate     bool
	MigrationsPath  string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	BurstSize         int
	TriggerRPS        float64 // Stricter limit for collection triggers
	TriggerBurst      int
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	PingInterval    time.Duration
	PongWait        time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// TestITConfig holds the TestIT connection settings
type TestITConfig struct {
	BaseURL    string
	Token      string // default credential for scheduled and fleet runs
	Cookies    string
	UseCookies bool
	Timeout    time.Duration
	RPS        float64
	Burst      int
	MaxRetries int
}

// CollectorConfig holds scheduling and fan-out settings
type CollectorConfig struct {
	Enabled            bool
	Cron               string // six fields, seconds first
	ProjectConcurrency int
	PlanConcurrency    int
	PointPageSize      int
	RunTimeout         time.Duration
	UsernameCacheTTL   time.Duration
	MaxRangeDays       int
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", ":8080"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			CORSOrigins:     getStringSliceOrDefault("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getIntOrDefault("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntOrDefault("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getDurationOrDefault("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			AutoMigrate:     getBoolOrDefault("DB_AUTO_MIGRATE", false),
			MigrationsPath:  getEnvOrDefault("DB_MIGRATIONS_PATH", "file://migrations"),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			AccessTokenTTL: getDurationOrDefault("JWT_ACCESS_TOKEN_TTL", 1*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getBoolOrDefault("RATE_LIMIT_ENABLED", true),
			RequestsPerSecond: getFloatOrDefault("RATE_LIMIT_RPS", 10),
			BurstSize:         getIntOrDefault("RATE_LIMIT_BURST", 20),
			TriggerRPS:        getFloatOrDefault("RATE_LIMIT_TRIGGER_RPS", 0.2),
			TriggerBurst:      getIntOrDefault("RATE_LIMIT_TRIGGER_BURST", 3),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins:  getStringSliceOrDefault("WS_ALLOWED_ORIGINS", []string{}),
			ReadBufferSize:  getIntOrDefault("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getIntOrDefault("WS_WRITE_BUFFER_SIZE", 1024),
			PingInterval:    getDurationOrDefault("WS_PING_INTERVAL", 54*time.Second),
			PongWait:        getDurationOrDefault("WS_PONG_WAIT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		TestIT: TestITConfig{
			BaseURL:    os.Getenv("TESTIT_BASE_URL"),
			Token:      os.Getenv("TESTIT_TOKEN"),
			Cookies:    os.Getenv("TESTIT_COOKIES"),
			UseCookies: getBoolOrDefault("TESTIT_USE_COOKIES", false),
			Timeout:    getDurationOrDefault("TESTIT_TIMEOUT", 30*time.Second),
			RPS:        getFloatOrDefault("TESTIT_RPS", 10),
			Burst:      getIntOrDefault("TESTIT_BURST", 10),
			MaxRetries: getIntOrDefault("TESTIT_MAX_RETRIES", 3),
		},
		Collector: CollectorConfig{
			Enabled:            getBoolOrDefault("COLLECTOR_ENABLED", true),
			Cron:               getEnvOrDefault("COLLECTOR_CRON", "0 0 1 * * *"),
			ProjectConcurrency: getIntOrDefault("COLLECTOR_PROJECT_CONCURRENCY", 4),
			PlanConcurrency:    getIntOrDefault("COLLECTOR_PLAN_CONCURRENCY", 4),
			PointPageSize:      getIntOrDefault("COLLECTOR_POINT_PAGE_SIZE", 1000),
			RunTimeout:         getDurationOrDefault("COLLECTOR_RUN_TIMEOUT", 2*time.Hour),
			UsernameCacheTTL:   getDurationOrDefault("COLLECTOR_USERNAME_CACHE_TTL", time.Hour),
			MaxRangeDays:       getIntOrDefault("COLLECTOR_MAX_RANGE_DAYS", 366),
		},
		App: AppConfig{
			Name:        getEnvOrDefault("APP_NAME", "testit-reports"),
			Version:     getEnvOrDefault("APP_VERSION", "dev"),
			Environment: getEnvOrDefault("APP_ENV", "development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	// Required fields
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}

	// Security validations
	if c.App.Environment == "production" {
		if len(c.JWT.Secret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}

		if len(c.WebSocket.AllowedOrigins) == 0 {
			errs = append(errs, "WS_ALLOWED_ORIGINS must be set in production")
		}
	}

	if c.TestIT.BaseURL == "" {
		errs = append(errs, "TESTIT_BASE_URL is required")
	}

	if c.TestIT.UseCookies && c.TestIT.Cookies == "" {
		errs = append(errs, "TESTIT_COOKIES must be set when TESTIT_USE_COOKIES is true")
	}

	if c.TestIT.MaxRetries < 0 {
		errs = append(errs, "TESTIT_MAX_RETRIES cannot be negative")
	}

	if c.Collector.Enabled {
		if _, err := cronParser.Parse(c.Collector.Cron); err != nil {
			errs = append(errs, fmt.Sprintf("COLLECTOR_CRON is invalid: %v", err))
		}
	}

	if c.Collector.ProjectConcurrency < 1 {
		errs = append(errs, "COLLECTOR_PROJECT_CONCURRENCY must be at least 1")
	}

	if c.Collector.PlanConcurrency < 1 {
		errs = append(errs, "COLLECTOR_PLAN_CONCURRENCY must be at least 1")
	}

	if c.Collector.PointPageSize < 1 {
		errs = append(errs, "COLLECTOR_POINT_PAGE_SIZE must be at least 1")
	}

	if c.Collector.MaxRangeDays < 1 {
		errs = append(errs, "COLLECTOR_MAX_RANGE_DAYS must be at least 1")
	}

	// Logical validations
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, "DB_MAX_IDLE_CONNS cannot be greater than DB_MAX_OPEN_CONNS")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}

	return nil
}

// cronParser accepts the seconds-first format used by the scheduler.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronParser returns the parser the scheduler must use for Collector.Cron.
func CronParser() cron.Parser {
	return cronParser
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: %s, DB: %s, JWT: [REDACTED], TestIT: %s, TestITToken: %s, Collector: %v (%s), RateLimit: %v, Environment: %s}",
		c.Server.Port,
		redactURL(c.Database.URL),
		c.TestIT.BaseURL,
		redactSecret(c.TestIT.Token),
		c.Collector.Enabled,
		c.Collector.Cron,
		c.RateLimit.Enabled,
		c.App.Environment,
	)
}

// redactURL redacts sensitive parts of a database URL
func redactURL(url string) string {
	if url == "" {
		return ""
	}
	// Very basic redaction - in production you'd want something more robust
	if idx := strings.Index(url, "@"); idx > 0 {
		return "[REDACTED]" + url[idx:]
	}
	return "[REDACTED]"
}

func redactSecret(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[REDACTED]"
}
