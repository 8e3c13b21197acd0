package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Issuer string // Optional: issuer claim for session cookies (default: spendsense-auth)

	NumKeys int // Optional: number of cookie signing keys to generate (default: 2, min: 1, max: 10)

	DatabaseDriver string // Optional: sqlite or postgres (default: sqlite)
	DatabaseFile   string // Optional: path to SQLite database file (default: ./app.db)
	DatabaseURL    string // Required for postgres: connection string

	MaxFailedAttempts       int           // Per-account failures before lockout (default: 5)
	LockoutDuration         time.Duration // Per-account lockout (default: 15m)
	GlobalMaxFailedAttempts int           // Per-session failures before lockout (default: 12)
	GlobalLockoutDuration   time.Duration // Per-session lockout (default: 15m)
	PasswordExpiryDays      int           // Days before a password must be changed, <=0 disables (default: 90)
	CountValidationFailures bool          // Count form validation errors toward the session lock (default: false)
	SeedDemoUsers           bool          // Create mario, lucas and irene if absent (default: true in dev)

	SessionIdleTimeout  time.Duration // Evict sessions idle this long (default: 30m)
	SessionTTL          time.Duration // Evict sessions this long after creation (default: 12h)
	SessionCookieSecure bool          // Secure flag on the cookie (default: true outside dev)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Session sweep interval (default: 1m)
}

func LoadConfig() Config {
	env := getEnvOrDefault("ENV", "dev")
	dev := env == "dev"

	cfg := Config{
		Issuer:  getEnvOrDefault("AUTH_ISSUER", "spendsense-auth"),
		NumKeys: getEnvIntOrDefault("AUTH_NUM_KEYS", 2),

		DatabaseDriver: strings.ToLower(getEnvOrDefault("AUTH_DATABASE_DRIVER", "sqlite")),
		DatabaseFile:   getEnvOrDefault("AUTH_DATABASE_FILE", "app.db"),
		DatabaseURL:    os.Getenv("AUTH_DATABASE_URL"),

		MaxFailedAttempts:       getEnvIntOrDefault("AUTH_MAX_FAILED_ATTEMPTS", 5),
		LockoutDuration:         getEnvDurationOrDefault("AUTH_LOCKOUT_DURATION", 15*time.Minute),
		GlobalMaxFailedAttempts: getEnvIntOrDefault("AUTH_GLOBAL_MAX_FAILED_ATTEMPTS", 12),
		GlobalLockoutDuration:   getEnvDurationOrDefault("AUTH_GLOBAL_LOCKOUT_DURATION", 15*time.Minute),
		PasswordExpiryDays:      getEnvIntOrDefault("AUTH_PASSWORD_EXPIRY_DAYS", 90),
		CountValidationFailures: getEnvBoolOrDefault("AUTH_COUNT_VALIDATION_FAILURES", false),
		SeedDemoUsers:           getEnvBoolOrDefault("AUTH_SEED_DEMO_USERS", dev),

		SessionIdleTimeout:  getEnvDurationOrDefault("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionTTL:          getEnvDurationOrDefault("SESSION_TTL", 12*time.Hour),
		SessionCookieSecure: getEnvBoolOrDefault("SESSION_COOKIE_SECURE", !dev),

		Env:                  env,
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Minute),
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
