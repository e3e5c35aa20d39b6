package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/whisper/pgsession/internal/metrics"
	"github.com/whisper/pgsession/internal/migrations"
	"github.com/whisper/pgsession/internal/session"
)

// migrateAttempts bounds how often Migrate restarts after losing a creation
// race to another process.
const migrateAttempts = 3

// Migrate creates the schema, the session table and its expiry index if
// they do not exist. All statements run in one transaction. Losing a
// concurrent-creation race is not an error: the transaction is retried and
// finds the objects in place.
func (s *Store) Migrate(ctx context.Context) (err error) {
	const op = "migrate"
	defer metrics.ObserveStoreOp(op, time.Now(), &err)

	return retryMigrate(ctx, s.logger.Printf, s.migrateOnce, s.tableExists)
}

// retryMigrate runs once until it succeeds or fails with something other
// than a duplicate-object error. If every attempt lost a race, the table must
// exist now; otherwise the winning creator rolled back and the error stands.
func retryMigrate(
	ctx context.Context,
	logf func(format string, args ...interface{}),
	once func(context.Context) error,
	exists func(context.Context) (bool, error),
) error {
	const op = "migrate"

	var lastErr error
	for attempt := 1; attempt <= migrateAttempts; attempt++ {
		err := once(ctx)
		if err == nil {
			return nil
		}
		if !isDuplicateObject(err) {
			return err
		}
		logf("[pgstore] migrate: objects created concurrently (attempt %d): %v", attempt, err)
		lastErr = err
	}

	ok, err := exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		logf("[pgstore] migrate: table missing after %d attempts", migrateAttempts)
		return session.NewError(op, session.KindBackend,
			fmt.Errorf("table missing after %d racing attempts: %w", migrateAttempts, lastErr))
	}
	return nil
}

// tableExists reports whether the session table is visible to a new
// connection.
func (s *Store) tableExists(ctx context.Context) (bool, error) {
	const op = "migrate"

	conn, err := s.conn(ctx, op)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	var ok bool
	if err := conn.QueryRowContext(ctx, s.q.tableExists, s.schemaName, s.tableName).Scan(&ok); err != nil {
		return false, backendErr(op, err)
	}
	return ok, nil
}

func (s *Store) migrateOnce(ctx context.Context) error {
	const op = "migrate"

	conn, err := s.conn(ctx, op)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return backendErr(op, err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{s.q.createSchema, s.q.createTable, s.q.createIndex} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return backendErr(op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return backendErr(op, err)
	}
	return nil
}

// MigrateVersioned provisions the same table through golang-migrate, keeping
// a migration history in <table>_schema_migrations inside the configured
// schema.
func (s *Store) MigrateVersioned(ctx context.Context) (err error) {
	const op = "migrate_versioned"
	defer metrics.ObserveStoreOp(op, time.Now(), &err)

	conn, err := s.conn(ctx, op)
	if err != nil {
		return err
	}
	// migrations.Up closes conn; this covers the early returns.
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, s.q.createSchema); err != nil && !isDuplicateObject(err) {
		return backendErr(op, err)
	}

	target := migrations.Target{Schema: s.schemaName, Table: s.tableName}
	if err := migrations.Up(ctx, conn, target); err != nil {
		return backendErr(op, err)
	}
	return nil
}
