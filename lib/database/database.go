package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mattn/go-sqlite3"
)

/*

The loop core never talks to a concrete driver. It depends on the narrow
surface below: parameterized statements, queries, and transactions. Anything
that can run a conditional UPDATE atomically can back a loop.

The concrete store shipped here is SQLite via mattn/go-sqlite3. MySQL or
Postgres work with the same statements as long as the driver supports
UPDATE ... RETURNING.

*/

// Querier can run parameterized statements and queries.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB is the full capability set a loop needs from its backing store.
type DB interface {
	Querier
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

// Open opens (or creates) a SQLite database at path and configures it for
// loop workloads: WAL journaling for concurrent readers, a busy timeout so
// concurrent writers queue instead of failing immediately, and a single
// writer connection to avoid SQLITE_BUSY churn.
func Open(path string) (DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return db, nil
}

// IsRetryable reports whether an error is transient lock contention worth
// retrying. Deadlocks and lock-wait timeouts qualify; everything else
// (connectivity, constraint violations) is surfaced to the caller unmodified.
func IsRetryable(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	return false
}

// Retry runs op up to attempts times, backing off between tries, as long as
// the error stays retryable. The last error is returned as-is so callers can
// still inspect the driver error.
func Retry(attempts int, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = op(); err == nil || !IsRetryable(err) {
			return err
		}
		if i < attempts-1 {
			wait := time.Duration(i+1) * 50 * time.Millisecond
			log.WithFields(log.Fields{
				"attempt": i + 1,
				"wait":    wait.String(),
				"err":     err.Error(),
			}).Warn("Retrying statement after lock contention")
			time.Sleep(wait)
		}
	}
	return err
}
