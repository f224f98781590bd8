package loop

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/turtlemonvh/loopstore/lib/database"
)

/*

A loop is one named table of things to keep updated. Each row tracks one id:

	id            caller-chosen key (INTEGER or TEXT), primary key
	last_updated  epoch seconds of the last successful update, NULL if never
	lock_until    epoch seconds a claim is held until, NULL if unlocked

A populated lock_until in the past does not mean locked; it means "work on
this first". Get treats expired locks as the top priority tier, which is also
how Bump promotes ids without a separate notification channel.

All coordination happens through the table. There is no scheduler thread and
no shared memory; workers in separate processes stay correct because every
mutating operation is a single transaction or a single conditional statement.

*/

const (
	OneHour = int64(3600)
	OneDay  = int64(86400)
	OneWeek = int64(604800)

	DefaultLockFor = OneHour
	DefaultLimit   = 100
)

// DefaultDelayThresholds feed Stats when the caller doesn't pass any.
var DefaultDelayThresholds = []int64{OneDay, OneWeek}

// KeyType is the shape of ids stored in a loop.
type KeyType string

const (
	KeyInteger KeyType = "integer"
	KeyText    KeyType = "text"
)

// Loop table names are interpolated into SQL, so they are restricted to
// identifier characters. Something ending in "_loop" is recommended.
var validLoopName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Config carries per-loop settings. Zero values fall back to package
// defaults so Config{Name: "foo_loop"} is usable as-is.
type Config struct {
	// Name of the loop table.
	Name string
	// KeyType of the id column; defaults to KeyInteger.
	KeyType KeyType
	// LockFor is the default claim duration in seconds (default 3600).
	LockFor int64
	// Limit is the default batch size for Get (default 100).
	Limit int
	// MinLoopTime keeps Get from spinning on the same ids: an unlocked entry
	// is only eligible once last_updated is at least this many seconds old.
	// Default 0 (staleness alone decides order, not eligibility).
	MinLoopTime int64
	// Retries bounds how many times contended mutators are retried.
	Retries int
	// Now is the clock; tests inject a fake one.
	Now func() time.Time
}

// Loop runs the claim/priority protocol for one table.
type Loop struct {
	db   database.DB
	conf Config
}

// New validates conf, fills in defaults, and returns a Loop over db.
// It does not touch the store; use Create to make the table.
func New(db database.DB, conf Config) (*Loop, error) {
	if !validLoopName.MatchString(conf.Name) {
		return nil, fmt.Errorf("%w: loop name %q must match %s", ErrInvalidArgument, conf.Name, validLoopName)
	}
	if conf.KeyType == "" {
		conf.KeyType = KeyInteger
	}
	if conf.KeyType != KeyInteger && conf.KeyType != KeyText {
		return nil, fmt.Errorf("%w: unknown key type %q", ErrInvalidArgument, conf.KeyType)
	}
	if conf.LockFor == 0 {
		conf.LockFor = DefaultLockFor
	}
	if conf.LockFor < 0 {
		return nil, fmt.Errorf("%w: default lock duration must be positive", ErrInvalidArgument)
	}
	if conf.Limit == 0 {
		conf.Limit = DefaultLimit
	}
	if conf.Limit < 0 {
		return nil, fmt.Errorf("%w: default batch limit must be positive", ErrInvalidArgument)
	}
	if conf.Retries == 0 {
		conf.Retries = 3
	}
	if conf.Now == nil {
		conf.Now = time.Now
	}
	return &Loop{db: db, conf: conf}, nil
}

// Name returns the loop's table name.
func (l *Loop) Name() string {
	return l.conf.Name
}

func (l *Loop) now() int64 {
	return l.conf.Now().Unix()
}

// epoch converts an explicit timestamp option, falling back to the clock.
func (l *Loop) epoch(t time.Time) int64 {
	if t.IsZero() {
		return l.now()
	}
	return t.Unix()
}

// castIDs coerces caller-supplied ids into driver values matching the
// configured key type. A value that doesn't coerce cleanly fails the whole
// call before anything touches the store.
func (l *Loop) castIDs(ids []interface{}) ([]interface{}, error) {
	out := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		switch l.conf.KeyType {
		case KeyText:
			s, err := cast.ToStringE(id)
			if err != nil || s == "" {
				return nil, fmt.Errorf("%w: id %v is not a valid text key", ErrInvalidArgument, id)
			}
			out = append(out, s)
		default:
			n, err := cast.ToInt64E(id)
			if err != nil {
				return nil, fmt.Errorf("%w: id %v is not a valid integer key", ErrInvalidArgument, id)
			}
			out = append(out, n)
		}
	}
	return out, nil
}

// scanID converts a value read back from the store into the canonical Go
// type for the key type (int64 or string).
func (l *Loop) scanTarget() interface{} {
	if l.conf.KeyType == KeyText {
		return new(string)
	}
	return new(int64)
}

func scannedID(target interface{}) interface{} {
	switch v := target.(type) {
	case *string:
		return *v
	case *int64:
		return *v
	}
	return target
}

// placeholders returns "?, ?, ?" for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
