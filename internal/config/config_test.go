package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/sessions?sslmode=disable")
	t.Setenv("SERVER_NAME", "sweeper-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "tower_sessions", cfg.Schema)
	assert.Equal(t, "session", cfg.Table)
	assert.Equal(t, MigrationSimple, cfg.MigrationMode)
	assert.True(t, cfg.MigrateOnStart)
	assert.Equal(t, "*/5 * * * *", cfg.SweepSchedule)
	assert.Equal(t, time.Minute, cfg.SweepLockTTL)
	assert.Equal(t, 30*time.Minute, cfg.Pool().ConnMaxLifetime)
	assert.Equal(t, "sweeper-test", cfg.ServerName)
	assert.Len(t, cfg.StoreOptions(), 2)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/sessions")
	t.Setenv("SESSION_SCHEMA", "auth")
	t.Setenv("SESSION_TABLE", "web_sessions")
	t.Setenv("MIGRATION_MODE", "versioned")
	t.Setenv("SWEEP_SCHEDULE", "0 * * * *")
	t.Setenv("DB_MAX_OPEN_CONNS", "25")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "auth", cfg.Schema)
	assert.Equal(t, "web_sessions", cfg.Table)
	assert.Equal(t, MigrationVersioned, cfg.MigrationMode)
	assert.Equal(t, 25, cfg.Pool().MaxOpenConns)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"schema":   {"SESSION_SCHEMA", `x"; drop`},
		"table":    {"SESSION_TABLE", "1table"},
		"mode":     {"MIGRATION_MODE", "sometimes"},
		"schedule": {"SWEEP_SCHEDULE", "whenever"},
		"pool":     {"DB_MAX_OPEN_CONNS", "0"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/sessions")
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDefaultServerName(t *testing.T) {
	assert.Equal(t, "host-a", defaultServerName(func() (string, error) { return "host-a", nil }))
	assert.Equal(t, fallbackServerName, defaultServerName(func() (string, error) { return "", nil }))
	assert.Equal(t, fallbackServerName, defaultServerName(func() (string, error) {
		return "", errors.New("uname failed")
	}))
}
