package monitor

import (
	"math"
	"sync"

	"github.com/bmharper/ringbuffer"
	"github.com/cyclopcam/threatwatch/server/camera"
)

// FrameBuffer holds the most recent N frames, which become the pre-event part of a clip
type FrameBuffer struct {
	lock     sync.Mutex
	frames   ringbuffer.RingT[camera.Frame]
	capacity int
}

// Returns floor(fps * seconds), but at least 1
func FrameBufferCapacity(fps, seconds float64) int {
	return max(1, int(math.Floor(fps*seconds)))
}

func NewFrameBuffer(capacity int) *FrameBuffer {
	capacity = max(capacity, 1)
	return &FrameBuffer{
		frames:   ringbuffer.NewRingT[camera.Frame](capacity),
		capacity: capacity,
	}
}

// Add a frame. The caller must not modify the frame afterwards.
// Once the buffer is full, the oldest frame is released.
func (b *FrameBuffer) Add(f *camera.Frame) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.frames.Add(f)
}

func (b *FrameBuffer) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.frames.Len()
}

func (b *FrameBuffer) Capacity() int {
	return b.capacity
}

// Snapshot returns the frames in arrival order.
// The slice is a copy, so later calls to Add do not affect it.
func (b *FrameBuffer) Snapshot() []*camera.Frame {
	b.lock.Lock()
	defer b.lock.Unlock()
	return ringPointers(&b.frames)
}
