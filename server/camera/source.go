package camera

import (
	"sync"
)

// Source produces frames from a camera (or a file, or a test pattern).
type Source interface {
	// Start the acquisition loop
	Start() error

	// Read returns the latest frame that has not been read yet, or nil if there is no new frame.
	// Read never blocks on the camera.
	Read() *Frame

	// Stop the acquisition loop and release the device.
	// Stop returns only once the acquisition loop has exited. It is safe to call more than once.
	Stop()

	// Frames per second reported (or estimated) for the device
	FPS() float64
}

// FrameSlot is a single-frame mailbox between a camera reader and its consumer.
// Publishing overwrites an unread frame, so the consumer always sees the most recent image.
type FrameSlot struct {
	lock      sync.Mutex
	frame     *Frame
	published int64
	dropped   int64
}

// Publish a new frame. If the previous frame was never taken, it is dropped.
func (s *FrameSlot) Publish(f *Frame) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.frame != nil {
		s.dropped++
	}
	s.frame = f
	s.published++
}

// Take the frame out of the slot. Returns nil if the slot is empty.
func (s *FrameSlot) Take() *Frame {
	s.lock.Lock()
	defer s.lock.Unlock()
	f := s.frame
	s.frame = nil
	return f
}

// Returns the number of frames published, and the number of frames dropped because
// they were overwritten before being taken.
func (s *FrameSlot) Stats() (published, dropped int64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.published, s.dropped
}
