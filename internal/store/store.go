// Package store implements the entity store and the secondary index layer
// kept in lockstep with it.
//
// Records live in one GORM table per kind. Every secondary index lives in the
// shared index_entries table as (index_name, entry_key) -> entity_id, where
// entry_key is an order-preserving tuple encoding. Index rows are derived from
// records inside the same transaction that writes the record, so a committed
// record and its index rows are never observed apart.
package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"kinship/internal/models"
	"kinship/internal/observability"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	defaultMaxRetries = 5
	retryBaseDelay    = 10 * time.Millisecond
)

// Store is the entity store. It is safe for concurrent use.
type Store struct {
	db         *gorm.DB
	maxRetries int
	now        func() time.Time
	log        *observability.OpLogger
}

// Option configures a Store.
type Option func(*Store)

// WithMaxRetries bounds how often a transaction is re-run after a
// serialization failure.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithClock replaces the wall clock. Tests use it to control timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for store operations.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = observability.NewOpLogger("store", l) }
}

// New wraps db. The schema must already be migrated.
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:         db,
		maxRetries: defaultMaxRetries,
		now:        time.Now,
		log:        observability.NewOpLogger("store", nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store clock, in UTC and truncated to microseconds so that
// timestamps survive a round trip through postgres unchanged.
func (s *Store) Now() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Dialect names the underlying database ("postgres", "sqlite").
func (s *Store) Dialect() string {
	return s.db.Dialector.Name()
}

// Update runs fn in a read-write transaction. On postgres the transaction is
// serializable and re-run when the database reports a serialization failure or
// deadlock, so fn must build its writes from scratch on every call.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	return s.run(ctx, "update", false, fn)
}

// View runs fn in a read-only transaction that observes one snapshot.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	return s.run(ctx, "view", true, fn)
}

func (s *Store) run(ctx context.Context, method string, readOnly bool, fn func(tx *Tx) error) error {
	ctx, span := observability.StartStoreSpan(ctx, method, s.Dialect())
	var err error
	defer func() { observability.EndSpan(span, err) }()

	var opts []*sql.TxOptions
	if s.Dialect() == "postgres" {
		if readOnly {
			opts = append(opts, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
		} else {
			opts = append(opts, &sql.TxOptions{Isolation: sql.LevelSerializable})
		}
	}

	for attempt := 0; ; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
			return fn(&Tx{db: gtx, ctx: ctx, store: s})
		}, opts...)
		if err == nil || !retryable(err) || attempt >= s.maxRetries {
			break
		}
		observability.StoreTxRetries.Inc()
		s.log.LogRead(ctx, "retry", map[string]any{"attempt": attempt + 1, "error": err.Error()})

		delay := retryBaseDelay * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			err = ctx.Err()
			return err
		case <-time.After(delay):
		}
	}
	if err != nil {
		s.log.LogError(ctx, method, err)
	}
	return err
}

// retryable reports whether err is a postgres serialization failure (40001)
// or deadlock (40P01). Application errors are never retried.
func retryable(err error) bool {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// Put stores e in its own transaction. See Tx.Put.
func (s *Store) Put(ctx context.Context, e models.Entity) (string, error) {
	var id string
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		id, err = tx.Put(e)
		return err
	})
	return id, err
}

// Get loads the record with id into dst.
func (s *Store) Get(ctx context.Context, id string, dst models.Entity) error {
	return s.View(ctx, func(tx *Tx) error {
		return tx.Get(id, dst)
	})
}

// Delete removes the record with id, loading it into dst first.
func (s *Store) Delete(ctx context.Context, dst models.Entity, id string) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.Delete(dst, id)
	})
}

// Scan returns the index entries of index within r.
func (s *Store) Scan(ctx context.Context, index string, r KeyRange, limit int, desc bool) ([]models.IndexEntry, error) {
	var out []models.IndexEntry
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.Scan(index, r, limit, desc)
		return err
	})
	return out, err
}
