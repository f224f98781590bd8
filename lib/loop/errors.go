package loop

import "errors"

// ErrInvalidArgument marks bad input caught before any statement runs:
// malformed ids, non-positive limits, negative durations. Check with
// errors.Is. Everything else returned by this package is a store error,
// wrapped with the operation name but otherwise unmodified; retry policy
// for those belongs to the caller.
var ErrInvalidArgument = errors.New("invalid argument")
