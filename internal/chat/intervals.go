package chat

import "time"

// Intervals are the polling periods each actor view uses to observe the other side.
type Intervals struct {
	Resync    time.Duration
	AutoReply time.Duration
	Typing    time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		Resync:    2 * time.Second,
		AutoReply: 10 * time.Second,
		Typing:    500 * time.Millisecond,
	}
}
