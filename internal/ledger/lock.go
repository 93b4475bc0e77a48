package ledger

import (
	"context"
	"database/sql"
	"errors"
)

// ErrLockHeld is returned when another host is running against the same ledger.
var ErrLockHeld = errors.New("ledger: lock is held by another run")

// Lock is a MySQL named lock. GET_LOCK is bound to a session, so the lock owns
// one connection until Release.
type Lock struct {
	conn *sql.Conn
	key  string
}

func AcquireLock(ctx context.Context, db *sql.DB, key string, timeoutSeconds int) (*Lock, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	var res sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", key, timeoutSeconds).Scan(&res); err != nil {
		conn.Close()
		return nil, err
	}
	if !res.Valid || res.Int64 != 1 {
		conn.Close()
		return nil, ErrLockHeld
	}
	return &Lock{conn: conn, key: key}, nil
}

func (l *Lock) Release(ctx context.Context) error {
	_, err := l.conn.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", l.key)
	if cerr := l.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
