package issues

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE issues (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	username    TEXT,
	category    TEXT NOT NULL,
	description TEXT,
	latitude    REAL,
	longitude   REAL,
	status      TEXT,
	urgency     TEXT,
	image       BLOB,
	after_image BLOB,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// newTestStore opens a private in-memory SQLite database with the issues
// table. One connection keeps every query on the same database.
func newTestStore(t *testing.T) (*SQLStore, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(sqliteSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return NewSQLStore(db, DialectSQLite), db
}

func newTestService(t *testing.T, policy TransitionPolicy) (*Service, *sql.DB) {
	t.Helper()
	store, db := newTestStore(t)
	return NewService(store, NewImageService(store, nil, time.Minute), policy), db
}

func ptr(f float64) *float64 { return &f }

// brokenStore fails every call, standing in for an unreachable database.
type brokenStore struct{}

var errDown = errors.New("connection refused")

func (brokenStore) Insert(context.Context, NewIssue, Status, Urgency, time.Time) (int64, error) {
	return 0, errors.Join(ErrStoreUnavailable, errDown)
}

func (brokenStore) List(context.Context, Query) ([]IssueSummary, error) {
	return nil, errors.Join(ErrStoreUnavailable, errDown)
}

func (brokenStore) Image(context.Context, int64, Slot) ([]byte, error) {
	return nil, errors.Join(ErrStoreUnavailable, errDown)
}

func (brokenStore) SetImage(context.Context, int64, Slot, []byte) error {
	return errors.Join(ErrStoreUnavailable, errDown)
}

func (brokenStore) UpdateLifecycle(context.Context, Transition, []Status) error {
	return errors.Join(ErrStoreUnavailable, errDown)
}

// memCache is an ImageCache backed by a map.
type memCache struct {
	data map[string][]byte
	gets int
	hits int
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.gets++
	v, ok := c.data[key]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	c.data[key] = data
	return nil
}

func (c *memCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}
