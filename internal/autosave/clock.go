package autosave

import "time"

// Timer is a pending callback started by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so debounce behaviour can be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
