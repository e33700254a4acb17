// Package config loads application configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Revocation backends.
const (
	RevocationRedis  = "redis"
	RevocationMySQL  = "mysql"
	RevocationMemory = "memory"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env       string // APP_ENV (dev, test, prod)
	Port      string // APP_PORT
	LogLevel  string // LOG_LEVEL (debug, info, warn, error)
	LogFormat string // LOG_FORMAT (json, text)

	DBUser    string // DB_USER
	DBPass    string // DB_PASS, empty allowed
	DBHost    string // DB_HOST
	DBPort    string // DB_PORT
	DBName    string // DB_NAME
	DBMigrate bool   // DB_MIGRATE, apply embedded migrations at startup

	JWTSecret      string // JWT_SECRET
	JWTAlgorithm   string // JWT_ALGORITHM (HS256, HS384, HS512)
	JWTIssuer      string // JWT_ISSUER
	AccessTTLMin   int    // ACCESS_TOKEN_TTL_MIN
	RefreshTTLDays int    // REFRESH_TOKEN_TTL_DAYS
	BcryptCost     int    // BCRYPT_COST

	LoginMaxFailedAttempts int           // LOGIN_MAX_FAILED_ATTEMPTS
	LoginLockoutDuration   time.Duration // LOGIN_LOCKOUT_DURATION

	RevocationBackend       string        // REVOCATION_BACKEND (redis, mysql, memory)
	RevocationSweepInterval time.Duration // REVOCATION_SWEEP_INTERVAL

	AMQPURL              string // AMQP_URL or RABBITMQ_URL
	AuditEventsEnabled   bool   // AUDIT_EVENTS_ENABLED
	AuditConsumerEnabled bool   // AUDIT_CONSUMER_ENABLED
	AuditLogDir          string // AUDIT_LOG_DIR

	ShutdownGracePeriod time.Duration // SHUTDOWN_GRACE_PERIOD

	Redis     RedisConfig
	RateLimit RateLimitConfig
}

// AccessTTL returns the access token lifetime.
func (c Config) AccessTTL() time.Duration { return time.Duration(c.AccessTTLMin) * time.Minute }

// RefreshTTL returns the refresh token lifetime.
func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}

// Load reads .env (when present) and the environment, and validates the
// result. Every problem found is reported, not only the first.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var l loader
	cfg := Config{
		Env:       l.must("APP_ENV"),
		Port:      l.must("APP_PORT"),
		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "json"),

		DBUser:    l.must("DB_USER"),
		DBPass:    os.Getenv("DB_PASS"),
		DBHost:    l.must("DB_HOST"),
		DBPort:    l.must("DB_PORT"),
		DBName:    l.must("DB_NAME"),
		DBMigrate: l.bool("DB_MIGRATE", true),

		JWTSecret:      l.must("JWT_SECRET"),
		JWTAlgorithm:   strings.ToUpper(envStr("JWT_ALGORITHM", "HS256")),
		JWTIssuer:      envStr("JWT_ISSUER", "recipe-box"),
		AccessTTLMin:   l.int("ACCESS_TOKEN_TTL_MIN", 60),
		RefreshTTLDays: l.int("REFRESH_TOKEN_TTL_DAYS", 7),
		BcryptCost:     l.int("BCRYPT_COST", 12),

		LoginMaxFailedAttempts: l.int("LOGIN_MAX_FAILED_ATTEMPTS", 5),
		LoginLockoutDuration:   l.dur("LOGIN_LOCKOUT_DURATION", 15*time.Minute),

		RevocationBackend:       strings.ToLower(envStr("REVOCATION_BACKEND", RevocationRedis)),
		RevocationSweepInterval: l.dur("REVOCATION_SWEEP_INTERVAL", 10*time.Minute),

		AMQPURL:              firstEnv("AMQP_URL", "RABBITMQ_URL"),
		AuditEventsEnabled:   l.bool("AUDIT_EVENTS_ENABLED", false),
		AuditConsumerEnabled: l.bool("AUDIT_CONSUMER_ENABLED", false),
		AuditLogDir:          envStr("AUDIT_LOG_DIR", "logs"),

		ShutdownGracePeriod: l.dur("SHUTDOWN_GRACE_PERIOD", 10*time.Second),

		Redis:     LoadRedisConfig(),
		RateLimit: LoadRateLimitConfig(),
	}
	cfg.validate(&l)
	if len(l.errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(l.errs...))
	}
	return cfg, nil
}

// MustLoad is Load for main: any configuration error is fatal.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	return cfg
}

func (c Config) validate(l *loader) {
	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		l.fail("JWT_ALGORITHM must be HS256, HS384 or HS512, got %q", c.JWTAlgorithm)
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		l.fail("JWT_SECRET must be at least 32 bytes")
	}
	if c.AccessTTLMin <= 0 {
		l.fail("ACCESS_TOKEN_TTL_MIN must be positive")
	}
	if c.RefreshTTLDays <= 0 {
		l.fail("REFRESH_TOKEN_TTL_DAYS must be positive")
	}
	if c.RefreshTTL() <= c.AccessTTL() {
		l.fail("refresh tokens must outlive access tokens")
	}
	if c.LoginMaxFailedAttempts <= 0 {
		l.fail("LOGIN_MAX_FAILED_ATTEMPTS must be positive")
	}
	if c.LoginLockoutDuration <= 0 {
		l.fail("LOGIN_LOCKOUT_DURATION must be positive")
	}
	switch c.RevocationBackend {
	case RevocationRedis, RevocationMySQL, RevocationMemory:
	default:
		l.fail("REVOCATION_BACKEND must be redis, mysql or memory, got %q", c.RevocationBackend)
	}
	if c.AuditEventsEnabled && c.AMQPURL == "" {
		l.fail("AUDIT_EVENTS_ENABLED requires AMQP_URL or RABBITMQ_URL")
	}
	if c.AuditConsumerEnabled && c.AMQPURL == "" {
		l.fail("AUDIT_CONSUMER_ENABLED requires AMQP_URL or RABBITMQ_URL")
	}
}

// loader collects errors while reading variables.
type loader struct{ errs []error }

func (l *loader) fail(format string, args ...any) {
	l.errs = append(l.errs, fmt.Errorf(format, args...))
}

// must retrieves the value of a required environment variable.
func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		l.fail("missing required env var: %s", key)
	}
	return v
}

func (l *loader) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.fail("invalid int for %s: %q", key, v)
		return def
	}
	return n
}

func (l *loader) dur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.fail("invalid duration for %s: %q", key, v)
		return def
	}
	return d
}

func (l *loader) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.fail("invalid bool for %s: %q", key, v)
		return def
	}
	return b
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
