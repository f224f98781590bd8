package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/turtlemonvh/loopstore/lib/database"
)

// GetOptions tune one claim. The zero value takes every default from the
// loop's Config.
type GetOptions struct {
	// Limit caps the batch size; 0 means the configured default.
	Limit int
	// LockFor is how many seconds to hold the claim; 0 means the configured
	// default. Pick a conservative upper bound for how long one update takes:
	// a worker that dies holds its ids only until this elapses.
	LockFor int64
	// MinLoopTime overrides Config.MinLoopTime; negative disables the guard.
	MinLoopTime int64
	// Now overrides the clock, mostly for tests.
	Now time.Time
}

// Get claims up to Limit ids and returns them. Claimed ids get
// lock_until = now + LockFor, so no other worker sees them until the claim
// expires or is released.
//
// Eligible entries are taken in one merged order:
//
//  1. expired locks (lock_until <= now), earliest expiry first — this is both
//     crash recovery and how bumped ids reach the front
//  2. unlocked entries, never-updated first, then oldest last_updated
//
// Ties break by id so the order is deterministic. Selection and locking
// happen in a single conditional UPDATE: eligibility is re-checked row by row
// at update time, so a concurrent Get can never claim the same id. The result
// may be smaller than Limit, or empty, if fewer entries qualify.
func (l *Loop) Get(ctx context.Context, opts *GetOptions) ([]interface{}, error) {
	if opts == nil {
		opts = &GetOptions{}
	}
	limit := opts.Limit
	if limit == 0 {
		limit = l.conf.Limit
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidArgument, opts.Limit)
	}
	lockFor := opts.LockFor
	if lockFor == 0 {
		lockFor = l.conf.LockFor
	}
	if lockFor < 0 {
		return nil, fmt.Errorf("%w: lock_for must be positive, got %d", ErrInvalidArgument, opts.LockFor)
	}
	minLoop := opts.MinLoopTime
	if minLoop == 0 {
		minLoop = l.conf.MinLoopTime
	}
	if minLoop < 0 {
		minLoop = 0
	}

	now := l.epoch(opts.Now)

	// The guard clause after the subquery re-checks eligibility at update
	// time. Without it, two claimants could select the same rows and both
	// lock them; with it, the second writer's UPDATE skips rows the first
	// already pushed into the future.
	query := fmt.Sprintf(`UPDATE %s SET lock_until = ?
		WHERE id IN (
			SELECT id FROM %s
			WHERE (lock_until IS NOT NULL AND lock_until <= ?)
			   OR (lock_until IS NULL AND (last_updated IS NULL OR last_updated <= ?))
			ORDER BY (lock_until IS NULL) ASC, lock_until ASC,
			         (last_updated IS NOT NULL) ASC, last_updated ASC, id ASC
			LIMIT ?
		)
		AND (lock_until IS NULL OR lock_until <= ?)
		RETURNING id`,
		l.conf.Name, l.conf.Name,
	)

	rows, err := l.db.QueryContext(ctx, query, now+lockFor, now, now-minLoop, limit, now)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	defer rows.Close()

	var ids []interface{}
	for rows.Next() {
		target := l.scanTarget()
		if err := rows.Scan(target); err != nil {
			return nil, fmt.Errorf("get: %w", err)
		}
		ids = append(ids, scannedID(target))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	return ids, nil
}

// UnlockOptions tune Unlock.
type UnlockOptions struct {
	// NoAutoAdd skips registering unknown ids before unlocking.
	NoAutoAdd bool
}

// Unlock releases claims on ids without marking them updated, putting them
// back in the queue at their previous staleness. Use it when a worker decides
// no work was actually needed. Unknown ids are registered first (already
// unlocked, so the unlock itself is a no-op for them). Never errors just
// because an id was already unlocked.
func (l *Loop) Unlock(ctx context.Context, ids []interface{}, opts *UnlockOptions) (int64, error) {
	if opts == nil {
		opts = &UnlockOptions{}
	}
	return l.updateWithAutoAdd(ctx, "unlock", ids, opts.NoAutoAdd,
		"lock_until = NULL", nil, "", nil)
}

// updateWithAutoAdd is the shared upsert-then-mutate step behind unlock, did,
// and bump: inside one transaction, register any unknown ids, then apply the
// update. Single transaction means no interleaving can observe a registered
// but unmutated id, and no partial application across the id set.
func (l *Loop) updateWithAutoAdd(ctx context.Context, op string, ids []interface{}, noAutoAdd bool, set string, setArgs []interface{}, extraWhere string, whereArgs []interface{}) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ids, err := l.castIDs(ids)
	if err != nil {
		return 0, err
	}

	insert := fmt.Sprintf(
		"INSERT INTO %s (id) VALUES %s ON CONFLICT(id) DO NOTHING",
		l.conf.Name, valueRows(len(ids)),
	)
	update := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id IN (%s)%s",
		l.conf.Name, set, placeholders(len(ids)), extraWhere,
	)

	args := make([]interface{}, 0, len(setArgs)+len(ids)+len(whereArgs))
	args = append(args, setArgs...)
	args = append(args, ids...)
	args = append(args, whereArgs...)

	var n int64
	err = database.Retry(l.conf.Retries, func() error {
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if !noAutoAdd {
			if _, err := tx.ExecContext(ctx, insert, ids...); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, update, args...)
		if err != nil {
			return err
		}
		if n, err = res.RowsAffected(); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// valueRows returns "(?), (?), (?)" for n single-column rows.
func valueRows(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ", "
		}
		out += "(?)"
	}
	return out
}
