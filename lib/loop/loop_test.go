package loop

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtlemonvh/loopstore/lib/database"
)

// fakeClock lets tests move time instead of sleeping.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(seconds int64) {
	c.t = c.t.Add(time.Duration(seconds) * time.Second)
}

// newTestLoop opens a fresh sqlite store in a temp dir, creates the loop
// table, and returns the loop.
func newTestLoop(t *testing.T, conf Config) *Loop {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "loops.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	if conf.Name == "" {
		conf.Name = "test_loop"
	}
	l, err := New(db, conf)
	require.NoError(t, err)
	require.NoError(t, l.Create(context.Background()))
	return l
}

func ids(vals ...interface{}) []interface{} {
	return vals
}

func TestNewValidatesConfig(t *testing.T) {
	var err error

	_, err = New(nil, Config{Name: "bad name; DROP TABLE"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(nil, Config{Name: "ok_loop", KeyType: "float"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(nil, Config{Name: "ok_loop", LockFor: -1})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(nil, Config{Name: "ok_loop", Limit: -5})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	l, err := New(nil, Config{Name: "ok_loop"})
	require.NoError(t, err)
	assert.Equal(t, "ok_loop", l.Name())
	assert.Equal(t, DefaultLockFor, l.conf.LockFor)
	assert.Equal(t, DefaultLimit, l.conf.Limit)
	assert.Equal(t, KeyInteger, l.conf.KeyType)
}

func TestCastIDs(t *testing.T) {
	intLoop, err := New(nil, Config{Name: "int_loop"})
	require.NoError(t, err)

	cast, err := intLoop.castIDs(ids(7, "8", int64(9)))
	require.NoError(t, err)
	assert.Equal(t, ids(int64(7), int64(8), int64(9)), cast)

	_, err = intLoop.castIDs(ids("zebra"))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	textLoop, err := New(nil, Config{Name: "text_loop", KeyType: KeyText})
	require.NoError(t, err)

	cast, err = textLoop.castIDs(ids("aaa", 12))
	require.NoError(t, err)
	assert.Equal(t, ids("aaa", "12"), cast)

	_, err = textLoop.castIDs(ids(""))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
