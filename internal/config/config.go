// Package config loads the runtime configuration of the pgsession binaries
// from environment variables.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"github.com/whisper/pgsession/internal/pgstore"
)

// Migration modes.
const (
	MigrationSimple    = "simple"
	MigrationVersioned = "versioned"
)

// Config is the environment of cmd/migrate and cmd/sweeper.
type Config struct {
	DatabaseURL     string        `env:"DATABASE_URL,required,notEmpty"`
	Schema          string        `env:"SESSION_SCHEMA" envDefault:"tower_sessions"`
	Table           string        `env:"SESSION_TABLE" envDefault:"session"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	MigrationMode  string `env:"MIGRATION_MODE" envDefault:"simple"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"true"`

	SweepSchedule string        `env:"SWEEP_SCHEDULE" envDefault:"*/5 * * * *"`
	SweepLockTTL  time.Duration `env:"SWEEP_LOCK_TTL" envDefault:"1m"`

	RedisAddr   string `env:"REDIS_ADDR"`
	NATSURL     string `env:"NATS_URL"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9102"`
	ServerName  string `env:"SERVER_NAME"`
}

// defaultServerName names the instance after the host, falling back to a
// fixed name when the hostname is unavailable.
func defaultServerName(hostname func() (string, error)) string {
	name, err := hostname()
	if err != nil {
		log.Printf("[config] hostname unavailable, using %q: %v", fallbackServerName, err)
		return fallbackServerName
	}
	if name == "" {
		return fallbackServerName
	}
	return name
}

const fallbackServerName = "sweeper-1"

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.ServerName == "" {
		cfg.ServerName = defaultServerName(os.Hostname)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if !pgstore.ValidIdentifier(c.Schema) {
		errs = append(errs, fmt.Errorf("SESSION_SCHEMA %q is not a valid identifier", c.Schema))
	}
	if !pgstore.ValidIdentifier(c.Table) {
		errs = append(errs, fmt.Errorf("SESSION_TABLE %q is not a valid identifier", c.Table))
	}
	switch c.MigrationMode {
	case MigrationSimple, MigrationVersioned:
	default:
		errs = append(errs, fmt.Errorf("MIGRATION_MODE must be %q or %q, got %q",
			MigrationSimple, MigrationVersioned, c.MigrationMode))
	}
	g := gronx.New()
	if !g.IsValid(c.SweepSchedule) {
		errs = append(errs, fmt.Errorf("SWEEP_SCHEDULE %q is not a valid cron expression", c.SweepSchedule))
	}
	if c.MaxOpenConns < 1 {
		errs = append(errs, fmt.Errorf("DB_MAX_OPEN_CONNS must be positive, got %d", c.MaxOpenConns))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Pool returns the database/sql pool limits.
func (c *Config) Pool() pgstore.PoolConfig {
	return pgstore.PoolConfig{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

// StoreOptions returns the pgstore options for the configured names.
func (c *Config) StoreOptions() []pgstore.Option {
	return []pgstore.Option{
		pgstore.WithSchemaName(c.Schema),
		pgstore.WithTableName(c.Table),
	}
}
