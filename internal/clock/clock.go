package clock

import "time"

// Clock is the time source for anything that compares against deadlines or
// trailing windows.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func NewSystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
