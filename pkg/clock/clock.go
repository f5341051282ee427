// Package clock abstracts wall-clock reads so pricing windows and playback
// timestamps stay deterministic under test.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

// Fixed is a test clock pinned to a settable instant.
type Fixed struct {
	Time time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{Time: t}
}

func (f *Fixed) Now() time.Time {
	return f.Time
}

func (f *Fixed) Advance(d time.Duration) {
	f.Time = f.Time.Add(d)
}
