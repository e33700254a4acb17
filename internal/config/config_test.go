package config

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setRequired(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"APP_ENV":    "test",
		"APP_PORT":   "8080",
		"DB_USER":    "recipe",
		"DB_HOST":    "127.0.0.1",
		"DB_PORT":    "3306",
		"DB_NAME":    "recipe_box",
		"JWT_SECRET": testSecret,
	} {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "HS256", cfg.JWTAlgorithm)
	assert.Equal(t, "recipe-box", cfg.JWTIssuer)
	assert.Equal(t, time.Hour, cfg.AccessTTL())
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL())
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, 5, cfg.LoginMaxFailedAttempts)
	assert.Equal(t, 15*time.Minute, cfg.LoginLockoutDuration)
	assert.Equal(t, RevocationRedis, cfg.RevocationBackend)
	assert.Equal(t, 10*time.Minute, cfg.RevocationSweepInterval)
	assert.True(t, cfg.DBMigrate)
	assert.Equal(t, 10*time.Second, cfg.ShutdownGracePeriod)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_ALGORITHM", "hs512")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "15")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "30")
	t.Setenv("LOGIN_MAX_FAILED_ATTEMPTS", "3")
	t.Setenv("LOGIN_LOCKOUT_DURATION", "1h")
	t.Setenv("REVOCATION_BACKEND", "MySQL")
	t.Setenv("DB_MIGRATE", "false")
	t.Setenv("RABBITMQ_URL", "amqp://guest:guest@mq:5672/")
	t.Setenv("AUDIT_EVENTS_ENABLED", "true")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "HS512", cfg.JWTAlgorithm)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL())
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTTL())
	assert.Equal(t, 3, cfg.LoginMaxFailedAttempts)
	assert.Equal(t, time.Hour, cfg.LoginLockoutDuration)
	assert.Equal(t, RevocationMySQL, cfg.RevocationBackend)
	assert.False(t, cfg.DBMigrate)
	assert.Equal(t, "amqp://guest:guest@mq:5672/", cfg.AMQPURL)
	assert.True(t, cfg.AuditEventsEnabled)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_PORT", "")
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("JWT_ALGORITHM", "RS256")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "soon")
	t.Setenv("LOGIN_LOCKOUT_DURATION", "-1m")
	t.Setenv("REVOCATION_BACKEND", "etcd")
	t.Setenv("AUDIT_CONSUMER_ENABLED", "true")

	_, err := Load()
	require.Error(t, err)
	for _, want := range []string{
		"APP_PORT",
		"JWT_SECRET must be at least 32 bytes",
		"JWT_ALGORITHM",
		"invalid int for ACCESS_TOKEN_TTL_MIN",
		"LOGIN_LOCKOUT_DURATION must be positive",
		"REVOCATION_BACKEND",
		"AUDIT_CONSUMER_ENABLED requires",
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestLoad_RefreshMustOutliveAccess(t *testing.T) {
	setRequired(t)
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "10080")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "7")

	_, err := Load()
	assert.ErrorContains(t, err, "refresh tokens must outlive access tokens")
}

func TestLoadRateLimitConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "20")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "500ms")
	t.Setenv("RATE_LIMIT_TTL", "1ms")
	t.Setenv("RATE_LIMIT_ENABLED", "nonsense")

	rl := LoadRateLimitConfig()
	assert.True(t, rl.Enabled, "malformed booleans keep the default")
	assert.Equal(t, 20, rl.Capacity)
	assert.Equal(t, 1, rl.RefillTokens)
	assert.Equal(t, 500*time.Millisecond, rl.RefillInterval)
	assert.Equal(t, 2500*time.Millisecond, rl.TTL, "ttl is raised to five refill intervals")
	assert.InDelta(t, 2.0, rl.PerSecond(), 1e-9)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())

	mr.Close()
	_, err = NewRedisClient(context.Background(), RedisConfig{Addr: mr.Addr()})
	assert.Error(t, err)
}
