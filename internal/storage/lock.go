package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

// SweepLockKey identifies the retention sweep in pg advisory lock space.
const SweepLockKey int64 = 0x61737365_74737770

// AdvisoryLocker is a cross-instance try-lock backed by a session-level
// PostgreSQL advisory lock. The lock lives on one pinned connection until
// released.
type AdvisoryLocker struct {
	db  *sql.DB
	key int64
}

func NewAdvisoryLocker(db *sql.DB, key int64) *AdvisoryLocker {
	return &AdvisoryLocker{db: db, key: key}
}

// TryLock returns acquired=false without blocking when another session
// holds the lock.
func (l *AdvisoryLocker) TryLock(ctx context.Context) (func(), bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, l.key); err != nil {
			log.Printf("[DB] failed to release advisory lock %d: %v", l.key, err)
		}
		_ = conn.Close()
	}
	return release, true, nil
}
