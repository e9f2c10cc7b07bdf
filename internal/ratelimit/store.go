// Package ratelimit keeps fixed-window request counters keyed by caller and
// route.
package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Store increments the counter for key in the window containing now and
// returns the new count.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Key builds the counter key for a caller on a route.
func Key(caller, route string) string {
	return caller + "|" + route
}

func windowStart(now time.Time, window time.Duration) time.Time {
	return now.UTC().Truncate(window)
}

// PostgresStore shares counters between every instance using the same
// database.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (p *PostgresStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var hits int64
	err := p.db.QueryRowContext(ctx, `
    INSERT INTO rate_limits (bucket_key, window_start, hits)
    VALUES ($1, $2, 1)
    ON CONFLICT (bucket_key, window_start)
    DO UPDATE SET hits = rate_limits.hits + 1
    RETURNING hits
    `, key, windowStart(p.now(), window)).Scan(&hits)
	if err != nil {
		return 0, fmt.Errorf("increment rate limit counter: %w", err)
	}
	return hits, nil
}

// Prune drops windows that started before cutoff.
func (p *PostgresStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := p.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE window_start < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune rate limit counters: %w", err)
	}
	return result.RowsAffected()
}

// MemoryStore is a single-process Store.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]counter
	now      func() time.Time
}

type counter struct {
	start time.Time
	hits  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]counter), now: time.Now}
}

func (m *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	start := windowStart(m.now(), window)

	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counters[key]
	if !c.start.Equal(start) {
		c = counter{start: start}
	}
	c.hits++
	m.counters[key] = c
	return c.hits, nil
}

// Prune drops counters whose window started before cutoff.
func (m *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, c := range m.counters {
		if c.start.Before(cutoff) {
			delete(m.counters, k)
			n++
		}
	}
	return n, nil
}
