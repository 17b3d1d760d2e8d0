package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server settings
	ServerAddr string
	BaseURL    string

	// JWT settings
	JWTSecret     string
	JWTExpiration time.Duration

	// Session cookie settings (consent flow login)
	SessionSecret string

	// Refresh token settings
	RefreshTokenExpiration time.Duration

	// OAuth settings
	AuthCodeExpiration   time.Duration
	OAuthTokenExpiration time.Duration
	OAuthClientsFile     string // YAML client registry; empty = built-in defaults

	// Password hashing
	BcryptCost int

	// Account lockout
	LockoutThreshold int
	LockoutWindow    time.Duration

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string

	// Rate limiting
	EnableRateLimit  bool
	RateLimitStore   string // "memory" or "redis"
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RateLimitWindow  time.Duration
	GlobalRateLimit  int // per-IP, all routes
	AuthRateLimit    int // /auth/login, /auth/register
	OAuthRateLimit   int // /oauth/authorize, /oauth/token
	PerUserRateLimit int // authenticated routes

	// Metrics
	EnableMetrics bool

	// Housekeeping
	CleanupInterval time.Duration
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", "trustgate.db")
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		BaseURL:    getEnv("BASE_URL", "http://localhost:8080"),

		JWTSecret:     getEnv("JWT_SECRET", "dev-secret-change-in-production"),
		JWTExpiration: getEnvDuration("JWT_EXPIRES_IN", time.Hour),

		SessionSecret: getEnv("SESSION_SECRET", "session-secret-change-in-production"),

		RefreshTokenExpiration: getEnvDuration("REFRESH_TOKEN_EXPIRES_IN", 720*time.Hour), // 30 days

		AuthCodeExpiration:   getEnvDuration("OAUTH_CODE_EXPIRES_IN", 10*time.Minute),
		OAuthTokenExpiration: getEnvDuration("OAUTH_TOKEN_EXPIRES_IN", 720*time.Hour), // 30 days
		OAuthClientsFile:     getEnv("OAUTH_CLIENTS_FILE", ""),

		BcryptCost: getEnvInt("BCRYPT_COST", 12),

		LockoutThreshold: getEnvInt("LOCKOUT_THRESHOLD", 5),
		LockoutWindow:    getEnvDuration("LOCKOUT_WINDOW", 15*time.Minute),

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		EnableRateLimit:  getEnvBool("ENABLE_RATE_LIMIT", true),
		RateLimitStore:   getEnv("RATE_LIMIT_STORE", "memory"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		GlobalRateLimit:  getEnvInt("GLOBAL_RATE_LIMIT", 300),
		AuthRateLimit:    getEnvInt("AUTH_RATE_LIMIT", 10),
		OAuthRateLimit:   getEnvInt("OAUTH_RATE_LIMIT", 30),
		PerUserRateLimit: getEnvInt("PER_USER_RATE_LIMIT", 120),

		EnableMetrics: getEnvBool("ENABLE_METRICS", true),

		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", time.Hour),
	}
}

// Validate checks settings that must not ship with development defaults.
// Production here means GIN_MODE=release.
func (c *Config) Validate() error {
	if os.Getenv("GIN_MODE") == "release" {
		if c.JWTSecret == "" || c.JWTSecret == "dev-secret-change-in-production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.SessionSecret == "" || c.SessionSecret == "session-secret-change-in-production" {
			return fmt.Errorf("SESSION_SECRET must be set in production")
		}
	}
	if c.BcryptCost < 12 {
		return fmt.Errorf("BCRYPT_COST must be at least 12, got %d", c.BcryptCost)
	}
	if c.DatabaseDriver == "postgres" && c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required for the postgres driver")
	}
	if c.EnableRateLimit && c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
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
