package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDidClearsLockAndAdvancesStaleness(t *testing.T) {
	clock := newFakeClock()
	l := newTestLoop(t, Config{Now: clock.Now})
	ctx := context.Background()

	_, err := l.Add(ctx, ids(10, 11))
	require.NoError(t, err)

	got, err := l.Get(ctx, &GetOptions{Limit: 1})
	require.NoError(t, err)
	require.Equal(t, ids(int64(10)), got)

	n, err := l.Did(ctx, ids(10), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := l.Check(ctx, ids(10))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].LastUpdated)
	assert.Equal(t, clock.Now().Unix(), *entries[0].LastUpdated)
	assert.Nil(t, entries[0].LockUntil)

	// 10 now queues behind 11, which has never been updated
	got, err = l.Get(ctx, &GetOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, ids(int64(11), int64(10)), got)
}

func TestDidWithoutGet(t *testing.T) {
	// a worker that never claimed anything can still report completions
	clock := newFakeClock()
	l := newTestLoop(t, Config{Now: clock.Now})
	ctx := context.Background()

	completedAt := clock.Now().Add(-30 * time.Second)
	n, err := l.Did(ctx, ids(777), &DidOptions{CompletedAt: completedAt})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := l.Check(ctx, ids(777))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].LastUpdated)
	assert.Equal(t, completedAt.Unix(), *entries[0].LastUpdated)
}

func TestDidNoAutoAdd(t *testing.T) {
	l := newTestLoop(t, Config{})
	ctx := context.Background()

	_, err := l.Add(ctx, ids(222))
	require.NoError(t, err)

	n, err := l.Did(ctx, ids(222, 333), &DidOptions{NoAutoAdd: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n) // no row for 333

	entries, err := l.Check(ctx, ids(333))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBumpPromotes(t *testing.T) {
	clock := newFakeClock()
	l := newTestLoop(t, Config{Now: clock.Now})
	ctx := context.Background()
	now := clock.Now().Unix()

	_, err := l.Add(ctx, ids(10, 11, 12))
	require.NoError(t, err)

	// 10 is claimed for an hour
	got, err := l.Get(ctx, &GetOptions{Limit: 1})
	require.NoError(t, err)
	require.Equal(t, ids(int64(10)), got)

	// the default bump rewrites the claim's expiry to now...
	n, err := l.Bump(ctx, ids(10), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := l.Check(ctx, ids(10))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].LockUntil)
	assert.LessOrEqual(t, *entries[0].LockUntil, now)

	// ...which is the expired-lock tier: 10 comes back before any unlocked id
	got, err = l.Get(ctx, &GetOptions{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, ids(int64(10)), got)
}

func TestBumpCannotRegressPriority(t *testing.T) {
	clock := newFakeClock()
	l := newTestLoop(t, Config{Now: clock.Now})
	ctx := context.Background()
	now := clock.Now().Unix()

	_, err := l.Add(ctx, ids(10))
	require.NoError(t, err)

	got, err := l.Get(ctx, &GetOptions{Limit: 1, LockFor: 10})
	require.NoError(t, err)
	require.Equal(t, ids(int64(10)), got)

	// a bump can only move lock_until earlier, never extend a claim
	n, err := l.Bump(ctx, ids(10), &BumpOptions{LockFor: 3600})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	entries, err := l.Check(ctx, ids(10))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].LockUntil)
	assert.Equal(t, now+10, *entries[0].LockUntil)
}

func TestBumpConverges(t *testing.T) {
	// bumping a hot id over and over does nothing extra until it's reclaimed
	clock := newFakeClock()
	l := newTestLoop(t, Config{Now: clock.Now})
	ctx := context.Background()

	_, err := l.Add(ctx, ids(10))
	require.NoError(t, err)

	n, err := l.Bump(ctx, ids(10), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = l.Bump(ctx, ids(10), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBumpNegativeLockForJumpsTheLine(t *testing.T) {
	clock := newFakeClock()
	l := newTestLoop(t, Config{Now: clock.Now})
	ctx := context.Background()

	_, err := l.Add(ctx, ids(10, 11))
	require.NoError(t, err)

	_, err = l.Bump(ctx, ids(10), nil)
	require.NoError(t, err)
	_, err = l.Bump(ctx, ids(11), &BumpOptions{LockFor: -60})
	require.NoError(t, err)

	got, err := l.Get(ctx, &GetOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, ids(int64(11), int64(10)), got)
}

func TestBumpParksThenPromotes(t *testing.T) {
	// a positive bump holds an id quiet, useful when more bumps are expected
	// soon and the update should only run once
	clock := newFakeClock()
	l := newTestLoop(t, Config{Now: clock.Now})
	ctx := context.Background()

	_, err := l.Add(ctx, ids(10))
	require.NoError(t, err)

	n, err := l.Bump(ctx, ids(10), &BumpOptions{LockFor: 60})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := l.Get(ctx, &GetOptions{Limit: 1})
	require.NoError(t, err)
	assert.Empty(t, got)

	clock.Advance(61)
	got, err = l.Get(ctx, &GetOptions{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, ids(int64(10)), got)
}

func TestBumpAutoAdds(t *testing.T) {
	clock := newFakeClock()
	l := newTestLoop(t, Config{Now: clock.Now})
	ctx := context.Background()

	// bumping a never-seen id starts tracking it with the bump applied
	n, err := l.Bump(ctx, ids(7), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := l.Check(ctx, ids(7))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].LastUpdated)
	require.NotNil(t, entries[0].LockUntil)
	assert.Equal(t, clock.Now().Unix(), *entries[0].LockUntil)

	n, err = l.Bump(ctx, ids(8), &BumpOptions{NoAutoAdd: true})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
