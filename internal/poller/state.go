package poller

import (
	"time"
)

// State is where the loop is in its cycle.
type State int32

const (
	Idle State = iota
	Running
	Sleeping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Sleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}

// Clock is the loop's only source of time.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock uses the wall clock.
var RealClock Clock = realClock{}
