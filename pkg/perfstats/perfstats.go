// Package perfstats records how long our operations take, so that it's easy to compare
// detectors, caption backends, and hardware.
package perfstats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Accumulate samples of how long something took
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
}

func (a *TimeAccumulator) Reset() {
	a.Samples = 0
	a.Total = 0
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}

// SyncTimeAccumulator is a TimeAccumulator that can be shared between goroutines
type SyncTimeAccumulator struct {
	lock sync.Mutex
	acc  TimeAccumulator
}

func (a *SyncTimeAccumulator) AddSample(v time.Duration) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.acc.AddSample(v)
}

// Returns a copy of the accumulated values
func (a *SyncTimeAccumulator) Get() TimeAccumulator {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.acc
}

// Moving average of a duration, with a decay of 1/64 per sample.
// This tracks "recent" speed, where TimeAccumulator tracks the average over all time.
type MovingAverage struct {
	value atomic.Uint64
}

func (m *MovingAverage) Update(d time.Duration) {
	vu := uint64(d.Nanoseconds())
	// We don't bother about strict correctness here, with CompareAndSwap,
	// because this is just sampled stats, and it's OK to miss one or two samples.
	if m.value.Load() == 0 {
		m.value.Store(vu)
	} else {
		m.value.Store((m.value.Load()*63 + vu) >> 6)
	}
}

func (m *MovingAverage) Get() time.Duration {
	return time.Duration(m.value.Load())
}
