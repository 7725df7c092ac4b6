package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "HTTP_PORT", "STORE_BACKEND", "TOKEN_BACKEND", "QUEUE_BACKEND", "TOKEN_TTL", "PUBLIC_BASE_URL", "CORS_ORIGINS", "MIGRATE_ON_START"} {
		t.Setenv(k, "")
	}
	cfg := fromEnv()
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 300*time.Second, cfg.TokenTTL)
	assert.Equal(t, "http://localhost:8081", cfg.PublicBaseURL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.True(t, cfg.MigrateOnStart)
	assert.False(t, cfg.Production())
	require.NoError(t, cfg.Validate())
}

func TestOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("TOKEN_TTL", "90s")
	t.Setenv("TOKEN_BACKEND", "redis")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("MIGRATE_ON_START", "false")
	cfg := fromEnv()
	assert.Equal(t, "http://localhost:9000", cfg.PublicBaseURL)
	assert.Equal(t, 90*time.Second, cfg.TokenTTL)
	assert.Equal(t, "redis", cfg.TokenBackend)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.False(t, cfg.MigrateOnStart)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("TOKEN_TTL", "soon")
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")
	t.Setenv("MIGRATE_ON_START", "maybe")
	cfg := fromEnv()
	assert.Equal(t, 300*time.Second, cfg.TokenTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	assert.True(t, cfg.MigrateOnStart)
}

func TestValidate(t *testing.T) {
	cfg := fromEnv()
	cfg.StoreBackend = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg = fromEnv()
	cfg.TokenBackend = "etcd"
	assert.Error(t, cfg.Validate())

	cfg = fromEnv()
	cfg.Env = "production"
	cfg.JWTSigningKey = "dev-signing-secret-change"
	assert.Error(t, cfg.Validate())
	cfg.JWTSigningKey = "a-real-key"
	assert.NoError(t, cfg.Validate())
}
