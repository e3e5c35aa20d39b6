// Package redisstore implements session.Store on Redis. Each record is a
// string key holding the payload envelope, with a key TTL matching the
// record's expiry, so Redis itself removes dead records.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/whisper/pgsession/internal/metrics"
	"github.com/whisper/pgsession/internal/session"
)

const (
	// DefaultPrefix is the Redis key prefix for session records.
	DefaultPrefix = "session:"

	// DefaultMaxCreateAttempts bounds identifier regeneration in Create.
	DefaultMaxCreateAttempts = 8
)

// Store manages session records in Redis.
type Store struct {
	client      redis.UniversalClient
	prefix      string
	maxAttempts int
	now         func() time.Time
}

var _ session.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithMaxCreateAttempts caps how many identifiers Create tries.
func WithMaxCreateAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithClock replaces the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a store using the provided Redis client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:      client,
		prefix:      DefaultPrefix,
		maxAttempts: DefaultMaxCreateAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(id session.ID) string {
	return s.prefix + string(id)
}

// Create stores r under an identifier with no key in Redis. SET NX makes the
// check and the write a single atomic step.
func (s *Store) Create(ctx context.Context, r *session.Record) (err error) {
	const op = "redis_create"
	defer metrics.ObserveStoreOp(op, time.Now(), &err)

	if r == nil {
		return session.NewError(op, session.KindEncode, errors.New("nil record"))
	}
	ttl := r.Expiry.Sub(s.now())
	if ttl <= 0 {
		return session.NewError(op, session.KindEncode, errors.New("expiry must be in the future"))
	}

	id := r.ID
	if id == "" {
		if id, err = session.NewID(); err != nil {
			return session.NewError(op, session.KindAllocation, err)
		}
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		payload, err := session.EncodeRecord(&session.Record{ID: id, Data: r.Data, Expiry: r.Expiry})
		if err != nil {
			return session.NewError(op, session.KindEncode, err)
		}
		ok, err := s.client.SetNX(ctx, s.key(id), payload, ttl).Result()
		if err != nil {
			return session.NewError(op, session.KindBackend, err)
		}
		if ok {
			r.ID = id
			return nil
		}

		metrics.CreateIDCollisions.Inc()
		if id, err = session.NewID(); err != nil {
			return session.NewError(op, session.KindAllocation, err)
		}
	}
	return session.NewError(op, session.KindAllocation,
		fmt.Errorf("no free identifier after %d attempts", s.maxAttempts))
}

// Save writes r and resets the key TTL. A record that is already expired is
// removed instead.
func (s *Store) Save(ctx context.Context, r *session.Record) (err error) {
	const op = "redis_save"
	defer metrics.ObserveStoreOp(op, time.Now(), &err)

	if r == nil {
		return session.NewError(op, session.KindEncode, errors.New("nil record"))
	}
	payload, err := session.EncodeRecord(r)
	if err != nil {
		return session.NewError(op, session.KindEncode, err)
	}

	ttl := r.Expiry.Sub(s.now())
	if ttl <= 0 {
		if err := s.client.Del(ctx, s.key(r.ID)).Err(); err != nil {
			return session.NewError(op, session.KindBackend, err)
		}
		return nil
	}
	if err := s.client.Set(ctx, s.key(r.ID), payload, ttl).Err(); err != nil {
		return session.NewError(op, session.KindBackend, err)
	}
	return nil
}

// Load returns the live record for id, or nil if none exists.
func (s *Store) Load(ctx context.Context, id session.ID) (rec *session.Record, err error) {
	const op = "redis_load"
	defer metrics.ObserveStoreOp(op, time.Now(), &err)

	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, session.NewError(op, session.KindBackend, err)
	}

	rec, err = session.DecodeRecord(data)
	if err != nil {
		return nil, session.NewError(op, session.KindDecode, err)
	}
	if rec.ID != id {
		return nil, session.NewError(op, session.KindDecode, errors.New("payload belongs to a different id"))
	}
	// Key TTLs have millisecond resolution; the envelope is authoritative.
	if rec.Expired(s.now()) {
		return nil, nil
	}
	return rec, nil
}

// Delete removes the record. A missing key is not an error.
func (s *Store) Delete(ctx context.Context, id session.ID) (err error) {
	const op = "redis_delete"
	defer metrics.ObserveStoreOp(op, time.Now(), &err)

	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return session.NewError(op, session.KindBackend, err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts records through key TTLs.
func (s *Store) DeleteExpired(ctx context.Context) error {
	return nil
}

// PurgeExpired always reports zero purged records.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	return 0, nil
}
