package transport

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultSchedule is the wait before each retry. Its length bounds the number of retries.
var DefaultSchedule = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// fixedBackOff walks a fixed list of delays and then stops.
type fixedBackOff struct {
	schedule []time.Duration
	next     int
}

func newFixedBackOff(schedule []time.Duration) *fixedBackOff {
	return &fixedBackOff{schedule: schedule}
}

func (f *fixedBackOff) NextBackOff() time.Duration {
	if f.next >= len(f.schedule) {
		return backoff.Stop
	}
	d := f.schedule[f.next]
	f.next++
	return d
}

func (f *fixedBackOff) Reset() {
	f.next = 0
}
