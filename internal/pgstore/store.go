// Package pgstore is the PostgreSQL session store. It persists
// session.Record values in a single table, enforces expiry on read and
// allocates collision-free identifiers inside a transaction.
//
// The *sql.DB pool is owned by the caller. Every operation checks out one
// connection for its own duration and returns it before completing.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/whisper/pgsession/internal/metrics"
	"github.com/whisper/pgsession/internal/session"
)

const (
	// DefaultSchemaName is the schema used when none is configured.
	DefaultSchemaName = "tower_sessions"

	// DefaultTableName is the table used when none is configured.
	DefaultTableName = "session"

	// DefaultMaxCreateAttempts bounds identifier regeneration in Create.
	DefaultMaxCreateAttempts = 8

	// DefaultMaxPayloadSize is the largest accepted Record.Data.
	DefaultMaxPayloadSize = 1 << 20
)

// Store implements session.Store and session.ExpiredDeleter on PostgreSQL.
type Store struct {
	db          *sql.DB
	schemaName  string
	tableName   string
	q           queries
	maxAttempts int
	maxPayload  int
	now         func() time.Time
	logger      *log.Logger
}

var (
	_ session.Store          = (*Store)(nil)
	_ session.ExpiredDeleter = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store) error

// WithSchemaName sets the schema holding the session table.
func WithSchemaName(name string) Option {
	return func(s *Store) error {
		if !ValidIdentifier(name) {
			return fmt.Errorf("invalid schema name %q: schema names must start with a letter or underscore; "+
				"subsequent characters can be letters, underscores, digits (0-9) or dollar signs ($); "+
				"at most %d bytes", name, maxIdentifierLen)
		}
		s.schemaName = name
		return nil
	}
}

// WithTableName sets the session table name.
func WithTableName(name string) Option {
	return func(s *Store) error {
		if !ValidIdentifier(name) {
			return fmt.Errorf("invalid table name %q: table names must start with a letter or underscore; "+
				"subsequent characters can be letters, underscores, digits (0-9) or dollar signs ($); "+
				"at most %d bytes", name, maxIdentifierLen)
		}
		s.tableName = name
		return nil
	}
}

// WithMaxCreateAttempts caps how many identifiers Create tries.
func WithMaxCreateAttempts(n int) Option {
	return func(s *Store) error {
		if n < 1 {
			return fmt.Errorf("max create attempts must be positive, got %d", n)
		}
		s.maxAttempts = n
		return nil
	}
}

// WithMaxPayloadSize limits Record.Data. Zero disables the limit.
func WithMaxPayloadSize(n int) Option {
	return func(s *Store) error {
		if n < 0 {
			return fmt.Errorf("max payload size must not be negative, got %d", n)
		}
		s.maxPayload = n
		return nil
	}
}

// WithClock replaces the time source used for expiry comparisons.
func WithClock(now func() time.Time) Option {
	return func(s *Store) error {
		if now == nil {
			return errors.New("nil clock")
		}
		s.now = now
		return nil
	}
}

// WithLogger sets the logger for unusual events.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) error {
		if l == nil {
			return errors.New("nil logger")
		}
		s.logger = l
		return nil
	}
}

// New returns a Store over db. Invalid options are reported as
// session.KindConfig errors before any query is built.
func New(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, session.NewError("new", session.KindConfig, errors.New("nil database handle"))
	}
	s := &Store{
		db:          db,
		schemaName:  DefaultSchemaName,
		tableName:   DefaultTableName,
		maxAttempts: DefaultMaxCreateAttempts,
		maxPayload:  DefaultMaxPayloadSize,
		now:         time.Now,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, session.NewError("new", session.KindConfig, err)
		}
	}
	s.q = buildQueries(s.schemaName, s.tableName)
	return s, nil
}

// SchemaName returns the configured schema.
func (s *Store) SchemaName() string { return s.schemaName }

// TableName returns the configured table.
func (s *Store) TableName() string { return s.tableName }

// Create persists r under an identifier not present in the table. An empty
// r.ID is allocated; a taken one is replaced. The existence check and the
// insert run in one transaction, and the insert refuses to overwrite a row
// committed concurrently under the same id.
func (s *Store) Create(ctx context.Context, r *session.Record) (err error) {
	const op = "create"
	defer metrics.ObserveStoreOp(op, time.Now(), &err)

	if err := s.checkRecord(op, r); err != nil {
		return err
	}

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

	id := r.ID
	if id == "" {
		if id, err = session.NewID(); err != nil {
			return session.NewError(op, session.KindAllocation, err)
		}
	}

	for attempt := 1; ; attempt++ {
		if attempt > s.maxAttempts {
			s.logger.Printf("[pgstore] create: no free id after %d attempts", s.maxAttempts)
			return session.NewError(op, session.KindAllocation,
				fmt.Errorf("no free identifier after %d attempts", s.maxAttempts))
		}

		inserted, err := s.tryInsert(ctx, tx, id, r)
		if err != nil {
			return err
		}
		if inserted {
			break
		}

		metrics.CreateIDCollisions.Inc()
		if id, err = session.NewID(); err != nil {
			return session.NewError(op, session.KindAllocation, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return backendErr(op, err)
	}
	r.ID = id
	return nil
}

// tryInsert inserts r under id unless the id is already present. It reports
// false when the id is taken, either by a visible row or by a row committed
// by a concurrent transaction.
func (s *Store) tryInsert(ctx context.Context, tx *sql.Tx, id session.ID, r *session.Record) (bool, error) {
	const op = "create"

	var exists bool
	if err := tx.QueryRowContext(ctx, s.q.exists, string(id)).Scan(&exists); err != nil {
		return false, backendErr(op, err)
	}
	if exists {
		return false, nil
	}

	payload, err := session.EncodeRecord(&session.Record{ID: id, Data: r.Data, Expiry: r.Expiry})
	if err != nil {
		return false, session.NewError(op, session.KindEncode, err)
	}

	res, err := tx.ExecContext(ctx, s.q.insertNew, string(id), payload, r.Expiry.UTC())
	if err != nil {
		return false, backendErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, backendErr(op, err)
	}
	return n == 1, nil
}

// Save inserts r or overwrites the data and expiry of the row with r.ID.
func (s *Store) Save(ctx context.Context, r *session.Record) (err error) {
	const op = "save"
	defer metrics.ObserveStoreOp(op, time.Now(), &err)

	if err := s.checkRecord(op, r); err != nil {
		return err
	}
	payload, err := session.EncodeRecord(r)
	if err != nil {
		return session.NewError(op, session.KindEncode, err)
	}

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

	if _, err := tx.ExecContext(ctx, s.q.upsert, string(r.ID), payload, r.Expiry.UTC()); err != nil {
		return backendErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return backendErr(op, err)
	}
	return nil
}

// Load returns the live record for id, or nil when the row is missing or
// its expiry is not after the current time.
func (s *Store) Load(ctx context.Context, id session.ID) (rec *session.Record, err error) {
	const op = "load"
	defer metrics.ObserveStoreOp(op, time.Now(), &err)

	conn, err := s.conn(ctx, op)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var data []byte
	err = conn.QueryRowContext(ctx, s.q.load, string(id), s.now().UTC()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, backendErr(op, err)
	}

	rec, err = session.DecodeRecord(data)
	if err != nil {
		return nil, session.NewError(op, session.KindDecode, err)
	}
	if rec.ID != id {
		return nil, session.NewError(op, session.KindDecode,
			errors.New("payload belongs to a different id"))
	}
	return rec, nil
}

// Delete removes the row for id. A missing id is not an error.
func (s *Store) Delete(ctx context.Context, id session.ID) (err error) {
	const op = "delete"
	defer metrics.ObserveStoreOp(op, time.Now(), &err)

	conn, err := s.conn(ctx, op)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, s.q.delete, string(id)); err != nil {
		return backendErr(op, err)
	}
	return nil
}

// DeleteExpired removes every row whose expiry is before the current time.
func (s *Store) DeleteExpired(ctx context.Context) error {
	_, err := s.purge(ctx, "delete_expired")
	return err
}

// PurgeExpired is DeleteExpired reporting how many rows were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	return s.purge(ctx, "purge_expired")
}

func (s *Store) purge(ctx context.Context, op string) (n int64, err error) {
	defer metrics.ObserveStoreOp(op, time.Now(), &err)

	conn, err := s.conn(ctx, op)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx, s.q.deleteExpired, s.now().UTC())
	if err != nil {
		return 0, backendErr(op, err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return 0, backendErr(op, err)
	}
	return n, nil
}

// conn checks a connection out of the pool for one operation.
func (s *Store) conn(ctx context.Context, op string) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, session.NewError(op, session.KindPool, err)
	}
	return conn, nil
}

func (s *Store) checkRecord(op string, r *session.Record) error {
	if r == nil {
		return session.NewError(op, session.KindEncode, errors.New("nil record"))
	}
	if s.maxPayload > 0 && len(r.Data) > s.maxPayload {
		return session.NewError(op, session.KindEncode,
			fmt.Errorf("payload of %d bytes exceeds limit of %d", len(r.Data), s.maxPayload))
	}
	return nil
}
