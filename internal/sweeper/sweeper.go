// Package sweeper runs the out-of-band purge of expired session records on
// a cron schedule. When several instances run, an optional lock lets only
// one of them sweep per tick.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/adhocore/gronx"
	"github.com/whisper/pgsession/internal/messaging"
	"github.com/whisper/pgsession/internal/metrics"
)

// DefaultSchedule runs a sweep every five minutes.
const DefaultSchedule = "*/5 * * * *"

// Purger removes expired records and reports how many were removed.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Locker serializes sweeps across instances.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// Publisher announces completed sweeps.
type Publisher interface {
	PublishPurge(event messaging.PurgeEvent) error
}

// Config controls the sweep schedule and how results are labeled.
type Config struct {
	Schedule string // cron expression
	Instance string // reported in purge events
	Schema   string
	Table    string
}

// Result describes one sweep.
type Result struct {
	Purged   int64
	Skipped  bool
	Duration time.Duration
}

// Sweeper periodically calls Purger.PurgeExpired.
type Sweeper struct {
	purger    Purger
	cfg       Config
	locker    Locker
	publisher Publisher
	logger    *log.Logger
	now       func() time.Time
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLocker enables cross-instance locking.
func WithLocker(l Locker) Option {
	return func(s *Sweeper) { s.locker = l }
}

// WithPublisher enables purge events.
func WithPublisher(p Publisher) Option {
	return func(s *Sweeper) { s.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces the time source used for scheduling.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// New validates cfg and returns a Sweeper.
func New(purger Purger, cfg Config, opts ...Option) (*Sweeper, error) {
	if purger == nil {
		return nil, errors.New("sweeper: nil purger")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	g := gronx.New()
	if !g.IsValid(cfg.Schedule) {
		return nil, fmt.Errorf("sweeper: invalid schedule %q", cfg.Schedule)
	}

	s := &Sweeper{
		purger: purger,
		cfg:    cfg,
		logger: log.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NextRun returns the first scheduled sweep strictly after t.
func (s *Sweeper) NextRun(t time.Time) (time.Time, error) {
	next, err := gronx.NextTickAfter(s.cfg.Schedule, t, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("sweeper: next tick: %w", err)
	}
	return next, nil
}

// Run sweeps on every scheduled tick until ctx is done. Failed sweeps are
// logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Printf("[sweeper] started schedule=%q instance=%s", s.cfg.Schedule, s.cfg.Instance)

	for {
		next, err := s.NextRun(s.now())
		if err != nil {
			return err
		}
		timer := time.NewTimer(next.Sub(s.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Println("[sweeper] stopped")
			return nil
		case <-timer.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Printf("[sweeper] sweep failed: %v", err)
			}
		}
	}
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()

	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("sweeper: acquire lock: %w", err)
		}
		if !ok {
			metrics.SweepSkippedTotal.Inc()
			return Result{Skipped: true}, nil
		}
		defer func() {
			if err := s.locker.Unlock(context.Background()); err != nil {
				s.logger.Printf("[sweeper] release lock: %v", err)
			}
		}()
	}

	n, err := s.purger.PurgeExpired(ctx)
	elapsed := time.Since(start)
	metrics.SweepDuration.Observe(elapsed.Seconds())
	if err != nil {
		return Result{Duration: elapsed}, fmt.Errorf("sweeper: purge: %w", err)
	}

	metrics.SweepPurgedTotal.Add(float64(n))
	metrics.SweepLastSuccess.Set(float64(s.now().Unix()))
	if n > 0 {
		s.logger.Printf("[sweeper] purged %d expired sessions in %s", n, elapsed)
	}

	if s.publisher != nil {
		event := messaging.PurgeEvent{
			Instance: s.cfg.Instance,
			Schema:   s.cfg.Schema,
			Table:    s.cfg.Table,
			Purged:   n,
			At:       s.now().Unix(),
		}
		if err := s.publisher.PublishPurge(event); err != nil {
			s.logger.Printf("[sweeper] publish purge event: %v", err)
		}
	}

	return Result{Purged: n, Duration: elapsed}, nil
}
