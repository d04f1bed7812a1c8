// Package storetest opens throwaway stores backed by in-memory sqlite.
package storetest

import (
	"sync"
	"testing"
	"time"

	"kinship/internal/database"
	"kinship/internal/store"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OpenDB returns a migrated in-memory database private to t.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := database.OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// New returns a store over a fresh database, driven by clock.
func New(t testing.TB, clock *Clock, opts ...store.Option) *store.Store {
	t.Helper()
	if clock != nil {
		opts = append(opts, store.WithClock(clock.Now))
	}
	return store.New(OpenDB(t), opts...)
}

// Clock is a manually advanced clock. Every call to Now moves it forward one
// millisecond so successive writes get distinct, increasing timestamps.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts a clock at start.
func NewClock(start time.Time) *Clock {
	return &Clock{t: start}
}

// Now returns the current time and then ticks.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(time.Millisecond)
	return now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
