package schedule

import (
    "errors"
    "fmt"
    "strings"
)

// ErrNotFound is returned when a referenced reservation or series does
// not exist.  Store implementations translate their own no-rows
// sentinel into this value at the boundary.
var ErrNotFound = errors.New("reservation not found")

// ValidationError reports malformed input: bad time or date formats,
// end not after start, a recurring request missing its pattern or end
// date.  It is raised before any expansion or conflict work begins and
// is always recoverable by the caller correcting the input.
type ValidationError struct {
    Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

func validationf(format string, args ...interface{}) *ValidationError {
    return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// StateError reports an operation that is invalid for the target's
// current state, such as converting an already-recurring reservation
// into a series or editing the nth-weekday pattern of a non-monthly
// series.
type StateError struct {
    Reason string
}

func (e *StateError) Error() string { return "invalid state: " + e.Reason }

// ConflictError reports that one or more requested dates overlap
// existing non-cancelled reservations on the room.  Dates carries the
// complete offending set as ISO calendar dates so the caller sees every
// problem in one round trip, never just the first.
type ConflictError struct {
    Message string
    Dates   []string
}

func (e *ConflictError) Error() string {
    if len(e.Dates) == 0 {
        return e.Message
    }
    return e.Message + ": " + strings.Join(e.Dates, ", ")
}
