package worker

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

// Lock is the cluster-wide mutual exclusion the single active leader holds
// for the worker's lifetime. The primitive behind it is swappable.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// AdvisoryLock implements Lock with a Postgres session advisory lock. The
// session is pinned to one pooled connection for as long as the lock is
// held; Release unlocks and returns the connection to the pool.
type AdvisoryLock struct {
	DB  *gorm.DB
	Key int64

	conn *sql.Conn
}

func (l *AdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	sqlDB, err := l.DB.DB()
	if err != nil {
		return false, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return false, err
	}

	var got bool
	if err := conn.QueryRowContext(ctx, `select pg_try_advisory_lock($1)`, l.Key).Scan(&got); err != nil {
		_ = conn.Close()
		return false, err
	}
	if !got {
		_ = conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *AdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, `select pg_advisory_unlock($1)`, l.Key)
	cerr := l.conn.Close()
	l.conn = nil
	if err != nil {
		return err
	}
	return cerr
}
