package clock

import (
	"sync/atomic"
	"time"
)

// Clock is a monotonic millisecond counter that wraps at 2^32.
type Clock interface {
	Now() uint32
}

// Elapsed returns the number of milliseconds from since to now.  Unsigned
// subtraction keeps the result correct across a single wrap of the counter.
func Elapsed(now, since uint32) uint32 {
	return now - since
}

// Seconds converts a millisecond delta to seconds.
func Seconds(ms uint32) float64 {
	return float64(ms) / 1000.0
}

// System counts milliseconds since it was created, using Go's monotonic clock.
type System struct {
	start time.Time
}

func NewSystem() *System {
	return &System{start: time.Now()}
}

func (s *System) Now() uint32 {
	return uint32(time.Since(s.start).Milliseconds())
}

var _ Clock = (*System)(nil)

// Manual is a Clock that only moves when told to.  Safe for use from several
// goroutines.
type Manual struct {
	ms uint32
}

func NewManual(start uint32) *Manual {
	return &Manual{ms: start}
}

func (m *Manual) Now() uint32 {
	return atomic.LoadUint32(&m.ms)
}

func (m *Manual) Advance(ms uint32) {
	atomic.AddUint32(&m.ms, ms)
}

func (m *Manual) Set(ms uint32) {
	atomic.StoreUint32(&m.ms, ms)
}

var _ Clock = (*Manual)(nil)
