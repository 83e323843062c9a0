package navigation

import "time"

// Timer is a pending callback that can be stopped
type Timer interface {
	Stop() bool
}

// Clock supplies time and timers. Tests replace it to drive timeouts by hand.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock returns a Clock backed by the time package
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
