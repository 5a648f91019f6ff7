package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"STORE_DRIVER", "JWT_EXPIRY", "CORS_ORIGINS", "MINIO_USE_SSL", "FIREBASE_PROJECT_ID"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.False(t, cfg.MemoryStore())
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.MinIOUseSSL)
	assert.False(t, cfg.PushEnabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("JWT_EXPIRY", "90m")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("MAX_FILE_SIZE", "2048")
	t.Setenv("FIREBASE_PROJECT_ID", "layover")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "5")

	cfg := Load()
	assert.True(t, cfg.MemoryStore())
	assert.Equal(t, 90*time.Minute, cfg.JWTExpiry)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.MinIOUseSSL)
	assert.Equal(t, int64(2048), cfg.MaxFileSize)
	assert.True(t, cfg.PushEnabled())
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, 5, cfg.RateLimitBurst)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("JWT_EXPIRY", "a day")
	t.Setenv("MINIO_USE_SSL", "maybe")
	t.Setenv("MAX_FILE_SIZE", "big")
	t.Setenv("RATE_LIMIT_RPS", "fast")

	cfg := Load()
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.False(t, cfg.MinIOUseSSL)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxFileSize)
	assert.Equal(t, 10.0, cfg.RateLimitRPS)
}
