package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the booking agent
type Config struct {
	// Server configuration
	Server ServerConfig

	// Remote CharruaBus API configuration
	API APIConfig

	// Payment journal database configuration (optional)
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Deep link configuration
	DeepLink DeepLinkConfig

	// Resumption reconciler timings
	Reconciler ReconcilerConfig

	// Booking defaults
	Booking BookingConfig

	// Per-user session housekeeping
	Sessions SessionsConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error

	EnableRequestLog bool
}

// APIConfig holds the remote API client configuration
type APIConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// DatabaseConfig holds database-related configuration.
// An empty URL disables the payment journal.
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration.
// Without a secret, bearer tokens are only decoded, the remote API stays the verifier.
type JWTConfig struct {
	Secret string
}

// DeepLinkConfig describes the links the payment provider redirects to
type DeepLinkConfig struct {
	Scheme string // charruabus
	Host   string // pago
}

// ReconcilerConfig holds the resumption timings
type ReconcilerConfig struct {
	ForegroundGrace   time.Duration // how long a deep link may still claim a foreground resumption
	NavigationDelay   time.Duration // delay before re-navigating after an abandonment reset
	BestEffortTimeout time.Duration // confirm/cancel call timeout
}

// BookingConfig holds defaults used when the remote configuration is unavailable
type BookingConfig struct {
	DefaultPassengerLimit int
}

// SessionsConfig controls how long idle booking sessions are kept
type SessionsConfig struct {
	IdleTimeout   time.Duration
	SweepSchedule string // cron format with seconds
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8090"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),

			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
		},
		API: APIConfig{
			BaseURL:   strings.TrimRight(getEnv("CHARRUA_API_URL", ""), "/"),
			Timeout:   getEnvAsDuration("CHARRUA_API_TIMEOUT", 30*time.Second),
			UserAgent: getEnv("CHARRUA_API_USER_AGENT", "charruabus-booking-agent"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		DeepLink: DeepLinkConfig{
			Scheme: strings.ToLower(getEnv("DEEPLINK_SCHEME", "charruabus")),
			Host:   strings.ToLower(getEnv("DEEPLINK_HOST", "pago")),
		},
		Reconciler: ReconcilerConfig{
			ForegroundGrace:   getEnvAsDuration("RESUME_FOREGROUND_GRACE", 1500*time.Millisecond),
			NavigationDelay:   getEnvAsDuration("RESUME_NAVIGATION_DELAY", 300*time.Millisecond),
			BestEffortTimeout: getEnvAsDuration("RESUME_CALL_TIMEOUT", 10*time.Second),
		},
		Booking: BookingConfig{
			DefaultPassengerLimit: getEnvAsInt("DEFAULT_PASSENGER_LIMIT", 5),
		},
		Sessions: SessionsConfig{
			IdleTimeout:   getEnvAsDuration("SESSION_IDLE_TIMEOUT", 2*time.Hour),
			SweepSchedule: getEnv("SESSION_SWEEP_SCHEDULE", "0 */5 * * * *"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("CHARRUA_API_URL is required")
	}

	if c.DeepLink.Scheme == "" || strings.ContainsAny(c.DeepLink.Scheme, ":/") {
		return fmt.Errorf("invalid DEEPLINK_SCHEME: %q", c.DeepLink.Scheme)
	}

	if c.Reconciler.ForegroundGrace <= 0 {
		return fmt.Errorf("RESUME_FOREGROUND_GRACE must be positive")
	}

	if c.Sessions.IdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}

	if c.Booking.DefaultPassengerLimit < 1 {
		return fmt.Errorf("DEFAULT_PASSENGER_LIMIT must be at least 1")
	}

	return nil
}

// JournalEnabled reports whether payment attempts are persisted
func (c *Config) JournalEnabled() bool {
	return c.Database.URL != ""
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("1500ms") or plain milliseconds ("1500")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
