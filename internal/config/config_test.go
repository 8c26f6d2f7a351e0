package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaults(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE", "REDIS_PUSH_QUEUE"} {
		t.Setenv(key, "")
	}
	t.Setenv("SNAP_DEFAULT_TTL", "")
	t.Setenv("MEDIA_CREDENTIAL_TTL", "")
	t.Setenv("SNAP_REAP_GRACE", "")

	cfg := New()
	assert.Equal(t, 24*time.Hour, cfg.Snap.DefaultTTL)
	assert.Equal(t, time.Minute, cfg.Snap.CredentialTTL)
	assert.Equal(t, 24*time.Hour, cfg.Snap.ReapGrace)
	assert.Equal(t, "push:outbox", cfg.Redis.PushQueue)
	assert.Equal(t, "postgres://postgres@localhost:5432/dmcore?sslmode=disable", cfg.GetDatabaseURL())
}

func TestDurationOverrides(t *testing.T) {
	t.Setenv("SNAP_DEFAULT_TTL", "90s")
	t.Setenv("SNAP_REAP_INTERVAL", "not-a-duration")
	t.Setenv("JWT_EXPIRY", "-5m")

	cfg := New()
	assert.Equal(t, 90*time.Second, cfg.Snap.DefaultTTL)
	assert.Equal(t, time.Minute, cfg.Snap.ReapInterval)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry())
}

func TestDatabaseURLOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/x")
	assert.Equal(t, "postgres://u:p@db:5432/x", New().GetDatabaseURL())
}
