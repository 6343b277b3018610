// Package pg is the PostgreSQL backend of the allocation engine. Every
// mutation runs in a serializable transaction that locks the affected unit
// row first; serialization failures are retried a bounded number of times.
package pg

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"allot.org/internal/alloc"
)

const (
	DefaultTxTimeout   = 5 * time.Second
	DefaultMaxAttempts = 3
)

type Store struct {
	db          *sql.DB
	txTimeout   time.Duration
	maxAttempts int
	now         func() time.Time
}

var _ alloc.Service = (*Store)(nil)

// Option tunes a Store.
type Option func(*Store)

// WithTxTimeout bounds every transaction attempt.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// WithMaxAttempts sets how many times a serialization failure is retried in total.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, opts...), nil
}

// New wraps an existing handle.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		txTimeout:   DefaultTxTimeout,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping reports database reachability for readiness checks.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) clock() time.Time { return s.now().UTC() }
