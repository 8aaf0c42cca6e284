package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	getLockSQL     = `SELECT GET_LOCK(?, 0)`
	releaseLockSQL = `SELECT RELEASE_LOCK(?)`
)

// Locker guards poll cycles with MySQL named locks. A named lock belongs to a
// session, so each lease pins one connection until it is released; the server
// drops the lock if that session dies. The ttl is not used.
type Locker struct{ db *sql.DB }

func NewLocker(db *sql.DB) *Locker { return &Locker{db: db} }

func (l *Locker) TryAcquire(ctx context.Context, key string, _ time.Duration) (func(), bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("pin connection: %w", err)
	}
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, getLockSQL, key).Scan(&got); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("get lock: %w", err)
	}
	if !got.Valid || got.Int64 != 1 {
		_ = conn.Close()
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(ctx, releaseLockSQL, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("named lock release failed; dropping session")
			// a pooled session would keep holding the lock
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		_ = conn.Close()
	}
	return release, true, nil
}
