package loop

import (
	"context"
	"fmt"
	"strings"

	"github.com/turtlemonvh/loopstore/lib/database"
)

// Add registers ids with the loop. Ids already present (or repeated within
// the call) are left untouched, so re-adding is always safe. New entries
// start with last_updated and lock_until NULL, which puts them at the front
// of the unlocked tier.
//
// Returns the number of ids that were actually new.
func (l *Loop) Add(ctx context.Context, ids []interface{}) (int64, error) {
	return l.add(ctx, ids, false)
}

// AddUpdated registers ids that have already been updated by some external
// process: new entries get last_updated = now instead of NULL, so they queue
// behind genuinely stale entries rather than jumping the line.
func (l *Loop) AddUpdated(ctx context.Context, ids []interface{}) (int64, error) {
	return l.add(ctx, ids, true)
}

func (l *Loop) add(ctx context.Context, ids []interface{}, updated bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ids, err := l.castIDs(ids)
	if err != nil {
		return 0, err
	}

	row := "(?, NULL)"
	if updated {
		row = "(?, ?)"
	}
	rows := make([]string, len(ids))
	args := make([]interface{}, 0, 2*len(ids))
	now := l.now()
	for i, id := range ids {
		rows[i] = row
		args = append(args, id)
		if updated {
			args = append(args, now)
		}
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (id, last_updated) VALUES %s ON CONFLICT(id) DO NOTHING",
		l.conf.Name, strings.Join(rows, ", "),
	)

	var n int64
	err = database.Retry(l.conf.Retries, func() error {
		res, err := l.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("add: %w", err)
	}
	return n, nil
}

// Remove deletes ids from the loop. Ids that aren't present are silently
// ignored. Returns the number of entries deleted.
func (l *Loop) Remove(ctx context.Context, ids []interface{}) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ids, err := l.castIDs(ids)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(
		"DELETE FROM %s WHERE id IN (%s)",
		l.conf.Name, placeholders(len(ids)),
	)

	var n int64
	err = database.Retry(l.conf.Retries, func() error {
		res, err := l.db.ExecContext(ctx, query, ids...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("remove: %w", err)
	}
	return n, nil
}
