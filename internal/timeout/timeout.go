package timeout

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Timeout is an umbrella deadline. A nil *Timeout never expires, so
// callers can pass one around without checking.
type Timeout struct {
	name     string
	start    time.Time
	deadline time.Time
	now      func() time.Time
}

// New starts a Timeout that expires after d. A non-positive d never
// expires.
func New(name string, d time.Duration) *Timeout {
	return newWithClock(name, d, time.Now)
}

func newWithClock(name string, d time.Duration, now func() time.Time) *Timeout {
	t := &Timeout{name: name, start: now(), now: now}
	if d > 0 {
		t.deadline = t.start.Add(d)
	}
	return t
}

// Name returns the name given to New.
func (t *Timeout) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}

// Deadline returns the deadline and whether there is one.
func (t *Timeout) Deadline() (time.Time, bool) {
	if t == nil || t.deadline.IsZero() {
		return time.Time{}, false
	}
	return t.deadline, true
}

// Remaining returns the time left before the deadline. It is never
// negative; without a deadline it is the maximum duration.
func (t *Timeout) Remaining() time.Duration {
	deadline, ok := t.Deadline()
	if !ok {
		return time.Duration(math.MaxInt64)
	}
	if left := deadline.Sub(t.now()); left > 0 {
		return left
	}
	return 0
}

// Reached reports whether the deadline has passed.
func (t *Timeout) Reached() bool {
	_, ok := t.Deadline()
	return ok && t.Remaining() == 0
}

// HasTime reports whether at least d remains before the deadline.
func (t *Timeout) HasTime(d time.Duration) bool {
	if _, ok := t.Deadline(); !ok {
		return true
	}
	if t.Reached() {
		return false
	}
	return t.Remaining() >= d
}

// Err returns a *ReachedError once the deadline has passed, nil before.
func (t *Timeout) Err() error {
	if t.Reached() {
		return &ReachedError{Timeout: t}
	}
	return nil
}

// Context derives a context that is cancelled at the deadline. The
// cancellation cause is a *ReachedError.
func (t *Timeout) Context(parent context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := t.Deadline()
	if !ok {
		return context.WithCancel(parent)
	}
	return context.WithDeadlineCause(parent, deadline, &ReachedError{Timeout: t})
}

// ReachedError reports that an umbrella timeout expired.
type ReachedError struct {
	Timeout *Timeout
}

func (e *ReachedError) Error() string {
	if e.Timeout == nil {
		return "timeout reached"
	}
	elapsed := e.Timeout.deadline.Sub(e.Timeout.start)
	if e.Timeout.name == "" {
		return fmt.Sprintf("timeout reached after %s", elapsed)
	}
	return fmt.Sprintf("timeout %q reached after %s", e.Timeout.name, elapsed)
}

// Unwrap lets errors.Is(err, context.DeadlineExceeded) match.
func (e *ReachedError) Unwrap() error {
	return context.DeadlineExceeded
}
