package camera

import (
	"math"
	"slices"
	"time"
)

// DefaultFPS is used when a device doesn't tell us its frame rate, and we haven't seen enough frames to measure it
const DefaultFPS = 30.0

// Given a set of consecutive frame intervals, estimate the average frames per second.
// The value is a float64 because cameras can be configured for less than 1 FPS.
// Sub-1 rates snap to 1/N seconds per frame.
func EstimateFPS(frameIntervals []time.Duration) float64 {
	if len(frameIntervals) == 0 {
		return DefaultFPS
	}
	sorted := make([]time.Duration, len(frameIntervals))
	copy(sorted, frameIntervals)
	slices.Sort(sorted)
	mid := sorted[len(sorted)/2]
	if mid == 0 {
		return DefaultFPS
	}
	fps := float64(time.Second) / float64(mid)
	if fps >= 0.9 {
		return math.Round(fps)
	}
	// Below 1 FPS, we round to the nearest 1/2/4/8/16
	secondsPerFrame := 1.0 / fps
	spfR := math.Round(secondsPerFrame)
	return 1 / spfR
}

// FPSEstimator measures the frame rate of a device that doesn't report it
type FPSEstimator struct {
	last      time.Time
	intervals []time.Duration
	maxSample int
}

func NewFPSEstimator(maxSample int) *FPSEstimator {
	return &FPSEstimator{
		maxSample: maxSample,
	}
}

// Record the arrival of a frame. Returns true once enough samples have been collected.
func (e *FPSEstimator) AddFrame(at time.Time) bool {
	if !e.last.IsZero() && len(e.intervals) < e.maxSample {
		e.intervals = append(e.intervals, at.Sub(e.last))
	}
	e.last = at
	return len(e.intervals) >= e.maxSample
}

func (e *FPSEstimator) FPS() float64 {
	return EstimateFPS(e.intervals)
}
