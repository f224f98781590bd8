package loop

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Entry is one tracked id as reported by Check. Nil timestamps mean NULL:
// never updated, or not locked.
type Entry struct {
	ID          interface{} `json:"id"`
	LastUpdated *int64      `json:"lastUpdated"`
	LockUntil   *int64      `json:"lockUntil"`
}

// Check reports the stored state of ids. Ids not in the loop are simply
// absent from the result; Check never registers anything — reads must not
// mutate. Results come back in id order.
func (l *Loop) Check(ctx context.Context, ids []interface{}) ([]Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ids, err := l.castIDs(ids)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"SELECT id, last_updated, lock_until FROM %s WHERE id IN (%s) ORDER BY id ASC",
		l.conf.Name, placeholders(len(ids)),
	)
	rows, err := l.db.QueryContext(ctx, query, ids...)
	if err != nil {
		return nil, fmt.Errorf("check: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var lastUpdated, lockUntil sql.NullInt64
		target := l.scanTarget()
		if err := rows.Scan(target, &lastUpdated, &lockUntil); err != nil {
			return nil, fmt.Errorf("check: %w", err)
		}
		e := Entry{ID: scannedID(target)}
		if lastUpdated.Valid {
			e.LastUpdated = &lastUpdated.Int64
		}
		if lockUntil.Valid {
			e.LockUntil = &lockUntil.Int64
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("check: %w", err)
	}
	return entries, nil
}

// Stats is a point-in-time summary of a loop. Every entry lands in exactly
// one of the four buckets:
//
//	Locked  — lock_until in the future (claimed, or parked by a positive bump)
//	Bumped  — lock_until populated but expired (bumped, or a dead worker's claim)
//	Updated — unlocked with a completion recorded
//	New     — unlocked and never updated
//
// Ages are in seconds relative to now and are 0 when a bucket is empty.
// Delayed counts updated entries whose last_updated is older than each
// threshold; never-updated entries are counted by New, not here.
type Stats struct {
	Total   int64 `json:"total"`
	Locked  int64 `json:"locked"`
	Bumped  int64 `json:"bumped"`
	Updated int64 `json:"updated"`
	New     int64 `json:"new"`

	MinLockTime   int64 `json:"minLockTime"`
	MaxLockTime   int64 `json:"maxLockTime"`
	MinBumpTime   int64 `json:"minBumpTime"`
	MaxBumpTime   int64 `json:"maxBumpTime"`
	MinUpdateTime int64 `json:"minUpdateTime"`
	MaxUpdateTime int64 `json:"maxUpdateTime"`

	Delayed map[int64]int64 `json:"delayed"`
}

// StatsOptions tune Stats.
type StatsOptions struct {
	// DelayThresholds are staleness cutoffs in seconds; nil means
	// DefaultDelayThresholds (one day, one week).
	DelayThresholds []int64
	// Now overrides the clock, mostly for tests.
	Now time.Time
}

// Stats aggregates the whole loop in a single read-only query. It needs no
// snapshot beyond the store's normal read isolation and never retries; it is
// safe to poll from a dashboard.
func (l *Loop) Stats(ctx context.Context, opts *StatsOptions) (Stats, error) {
	if opts == nil {
		opts = &StatsOptions{}
	}
	thresholds := opts.DelayThresholds
	if thresholds == nil {
		thresholds = DefaultDelayThresholds
	}
	now := l.epoch(opts.Now)

	cols := []string{
		"COUNT(*)",
		"COALESCE(SUM(CASE WHEN lock_until IS NOT NULL AND lock_until > ? THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN lock_until IS NOT NULL AND lock_until <= ? THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN lock_until IS NULL AND last_updated IS NOT NULL THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN lock_until IS NULL AND last_updated IS NULL THEN 1 ELSE 0 END), 0)",
		"COALESCE(MIN(CASE WHEN lock_until IS NOT NULL AND lock_until > ? THEN lock_until - ? END), 0)",
		"COALESCE(MAX(CASE WHEN lock_until IS NOT NULL AND lock_until > ? THEN lock_until - ? END), 0)",
		"COALESCE(MIN(CASE WHEN lock_until IS NOT NULL AND lock_until <= ? THEN ? - lock_until END), 0)",
		"COALESCE(MAX(CASE WHEN lock_until IS NOT NULL AND lock_until <= ? THEN ? - lock_until END), 0)",
		"COALESCE(MIN(CASE WHEN last_updated IS NOT NULL THEN ? - last_updated END), 0)",
		"COALESCE(MAX(CASE WHEN last_updated IS NOT NULL THEN ? - last_updated END), 0)",
	}
	args := []interface{}{
		now, now,
		now, now, now, now,
		now, now, now, now,
		now, now,
	}
	for _, t := range thresholds {
		cols = append(cols,
			"COALESCE(SUM(CASE WHEN last_updated IS NOT NULL AND last_updated <= ? THEN 1 ELSE 0 END), 0)")
		args = append(args, now-t)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), l.conf.Name)

	s := Stats{Delayed: make(map[int64]int64, len(thresholds))}
	delayed := make([]int64, len(thresholds))
	targets := []interface{}{
		&s.Total, &s.Locked, &s.Bumped, &s.Updated, &s.New,
		&s.MinLockTime, &s.MaxLockTime,
		&s.MinBumpTime, &s.MaxBumpTime,
		&s.MinUpdateTime, &s.MaxUpdateTime,
	}
	for i := range delayed {
		targets = append(targets, &delayed[i])
	}

	if err := l.db.QueryRowContext(ctx, query, args...).Scan(targets...); err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	for i, t := range thresholds {
		s.Delayed[t] = delayed[i]
	}
	return s, nil
}
