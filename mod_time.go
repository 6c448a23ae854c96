package skelanim

import (
	"time"
)

// Time is the frame clock of a System.
type Time struct {
	Time  time.Time
	Dt    time.Duration
	Frame uint64
}

// advance moves the clock to now. The first frame has a zero Dt, as do
// frames where now goes backward.
func (t *Time) advance(now time.Time) {
	if t.Time.IsZero() || now.Before(t.Time) {
		t.Dt = 0
	} else {
		t.Dt = now.Sub(t.Time)
	}
	t.Time = now
	t.Frame++
}
