package core

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time so caches, staleness checks and audit timestamps can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// NewID returns a random UUID string used for log entries, handoffs and runs.
func NewID() string { return uuid.NewString() }
