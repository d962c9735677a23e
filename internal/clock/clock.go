// Package clock provides the node's millisecond counter and interval timers.
//
// The counter is a uint32 like the millis() counter of a microcontroller and
// wraps roughly every 49.7 days. Elapsed time is computed with modular
// subtraction so a wrap between two readings still yields the small, correct
// difference.
package clock

import (
	"math"
	"time"
)

// Source reports monotonic time in milliseconds.
type Source interface {
	Millis() uint32
}

// Monotonic counts milliseconds since it was created, using Go's monotonic clock.
type Monotonic struct {
	start time.Time
}

func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// Millis truncates to 32 bits, so the value wraps like a hardware counter.
func (m *Monotonic) Millis() uint32 {
	return uint32(uint64(time.Since(m.start).Milliseconds()))
}

// Elapsed returns now-last modulo 2^32.
func Elapsed(now, last uint32) uint32 {
	return now - last
}

// MillisOf converts d to whole milliseconds, saturating at the counter range.
func MillisOf(d time.Duration) uint32 {
	ms := d.Milliseconds()
	if ms <= 0 {
		return 0
	}
	if ms > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(ms)
}

// Timer fires when at least Interval milliseconds have passed since Last.
// Drift is not compensated: the next interval is measured from the last fire.
type Timer struct {
	Last     uint32
	Interval uint32
}

func NewTimer(interval time.Duration) Timer {
	return Timer{Interval: MillisOf(interval)}
}

func (t Timer) Due(now uint32) bool {
	return Elapsed(now, t.Last) >= t.Interval
}

func (t *Timer) Fire(now uint32) {
	t.Last = now
}
