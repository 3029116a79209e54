package bcp

import "time"

// Clock tells the dispatcher how much of its frame budget has been used.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}
