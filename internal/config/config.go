package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database      DatabaseConfig
	Server        ServerConfig
	Session       SessionConfig
	Lockout       LockoutConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	LockTimeout       time.Duration // bound on SELECT ... FOR UPDATE waits; 0 disables
}

type ServerConfig struct {
	Port            string
	Env             string
	LogLevel        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	TrustedProxies  []string
	// LegacyUserIDAuth accepts a raw User-Id header or userId query value
	// when no session id is presented.
	LegacyUserIDAuth bool
}

type SessionConfig struct {
	TTL                time.Duration
	MaxPerAccount      int
	CleanupInterval    time.Duration
	CookieSecure       bool
	AttemptLogTTL      time.Duration
	AttemptLogInterval time.Duration
}

type LockoutConfig struct {
	MaxAttempts     int
	Duration        time.Duration
	PermanentAfter  int // temporary locks before a permanent one; 0 disables escalation
	FailureDelayMin time.Duration
	FailureDelayMax time.Duration
}

type RateLimitConfig struct {
	LoginMax        int
	LoginWindow     time.Duration
	APIPerMinute    int
	CleanupInterval time.Duration
}

type ObservabilityConfig struct {
	SentryDSN        string
	SentrySampleRate float64
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "gatekeeper"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			LockTimeout:       getEnvAsDuration("DB_LOCK_TIMEOUT", 5*time.Second),
		},
		Server: ServerConfig{
			Port:             getEnv("PORT", "8080"),
			Env:              env,
			LogLevel:         getEnv("LOG_LEVEL", "info"),
			ReadTimeout:      getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:     getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:      getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout:  getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			TrustedProxies:   getEnvAsList("TRUSTED_PROXIES"),
			LegacyUserIDAuth: getEnvAsBool("LEGACY_USER_ID_AUTH", false),
		},
		Session: SessionConfig{
			TTL:                getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			MaxPerAccount:      getEnvAsInt("SESSION_MAX_PER_ACCOUNT", 5),
			CleanupInterval:    getEnvAsDuration("SESSION_CLEANUP_INTERVAL", time.Hour),
			CookieSecure:       getEnvAsBool("SESSION_COOKIE_SECURE", env == "production"),
			AttemptLogTTL:      getEnvAsDuration("LOGIN_ATTEMPT_TTL", 30*24*time.Hour),
			AttemptLogInterval: getEnvAsDuration("LOGIN_ATTEMPT_CLEANUP_INTERVAL", 5*time.Minute),
		},
		Lockout: LockoutConfig{
			MaxAttempts:     getEnvAsInt("LOCKOUT_MAX_ATTEMPTS", 5),
			Duration:        getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			PermanentAfter:  getEnvAsInt("LOCKOUT_PERMANENT_AFTER", 3),
			FailureDelayMin: getEnvAsDuration("LOGIN_FAILURE_DELAY_MIN", 100*time.Millisecond),
			FailureDelayMax: getEnvAsDuration("LOGIN_FAILURE_DELAY_MAX", 300*time.Millisecond),
		},
		RateLimit: RateLimitConfig{
			LoginMax:        getEnvAsInt("RATE_LIMIT_LOGIN_MAX", 5),
			LoginWindow:     getEnvAsDuration("RATE_LIMIT_LOGIN_WINDOW", 15*time.Minute),
			APIPerMinute:    getEnvAsInt("RATE_LIMIT_API_PER_MINUTE", 100),
			CleanupInterval: getEnvAsDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		},
		Observability: ObservabilityConfig{
			SentryDSN:        getEnv("SENTRY_DSN", ""),
			SentrySampleRate: getEnvAsFloat("SENTRY_TRACES_SAMPLE_RATE", 0),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Lockout.MaxAttempts < 1 {
		return fmt.Errorf("LOCKOUT_MAX_ATTEMPTS must be at least 1 (got %d)", c.Lockout.MaxAttempts)
	}
	if c.Lockout.Duration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be positive")
	}
	if c.Lockout.PermanentAfter < 0 {
		return fmt.Errorf("LOCKOUT_PERMANENT_AFTER cannot be negative")
	}
	if c.Session.MaxPerAccount < 1 {
		return fmt.Errorf("SESSION_MAX_PER_ACCOUNT must be at least 1 (got %d)", c.Session.MaxPerAccount)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.RateLimit.LoginMax < 1 {
		return fmt.Errorf("RATE_LIMIT_LOGIN_MAX must be at least 1 (got %d)", c.RateLimit.LoginMax)
	}
	// A login window measured in days turns the IP limiter into a permanent ban.
	if c.RateLimit.LoginWindow <= 0 || c.RateLimit.LoginWindow > 24*time.Hour {
		return fmt.Errorf("RATE_LIMIT_LOGIN_WINDOW must be between 0 and 24h (got %s)", c.RateLimit.LoginWindow)
	}
	if c.Lockout.FailureDelayMax < c.Lockout.FailureDelayMin {
		return fmt.Errorf("LOGIN_FAILURE_DELAY_MAX must not be below LOGIN_FAILURE_DELAY_MIN")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
