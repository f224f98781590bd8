package loop

import (
	"context"
	"time"
)

// DidOptions tune Did.
type DidOptions struct {
	// CompletedAt stamps the completion; zero means now.
	CompletedAt time.Time
	// NoAutoAdd skips registering unknown ids first.
	NoAutoAdd bool
}

// Did records that ids were successfully updated: last_updated is set to the
// completion time and any lock is cleared. This is the only operation that
// advances last_updated.
//
// The ids don't have to come from Get. A process that updated something on
// its own initiative reports it the same way, which is why Did clears locks
// unconditionally: a completion means the entry is no longer in progress, no
// matter who held the claim. Unknown ids are registered first.
//
// Returns the number of rows touched, useful as a sanity check.
func (l *Loop) Did(ctx context.Context, ids []interface{}, opts *DidOptions) (int64, error) {
	if opts == nil {
		opts = &DidOptions{}
	}
	completedAt := l.epoch(opts.CompletedAt)
	return l.updateWithAutoAdd(ctx, "did", ids, opts.NoAutoAdd,
		"last_updated = ?, lock_until = NULL", []interface{}{completedAt}, "", nil)
}

// BumpOptions tune Bump.
type BumpOptions struct {
	// LockFor shifts where the bump lands: 0 (the default) prioritizes
	// immediately, a positive value holds the id quiet for that many seconds
	// before it becomes top priority, and a negative value jumps ahead of
	// plain bumps.
	LockFor int64
	// At anchors the bump; zero means now.
	At time.Time
	// NoAutoAdd skips registering unknown ids first.
	NoAutoAdd bool
}

// Bump moves ids toward the front of the queue by writing
// lock_until = at + LockFor, but only where that decreases the entry's
// current lock_until (or the entry is unlocked). Since now is never later
// than any live claim's expiry, the default bump always applies and lands the
// id in the expired-locks tier, the first thing Get hands out.
//
// The only-decrease guard is what makes bumping safe to call from anywhere,
// as often as you like: repeated bumps of a hot id converge on "revisit every
// LockFor seconds" instead of pushing the entry further into the future, and
// a bump can never extend someone's claim. Unknown ids are registered first,
// so bump doubles as "start tracking this and look at it soon".
//
// Returns the number of entries the bump actually applied to.
func (l *Loop) Bump(ctx context.Context, ids []interface{}, opts *BumpOptions) (int64, error) {
	if opts == nil {
		opts = &BumpOptions{}
	}
	candidate := l.epoch(opts.At) + opts.LockFor
	return l.updateWithAutoAdd(ctx, "bump", ids, opts.NoAutoAdd,
		"lock_until = ?", []interface{}{candidate},
		" AND (lock_until IS NULL OR lock_until > ?)", []interface{}{candidate})
}
