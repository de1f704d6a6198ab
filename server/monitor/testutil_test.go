package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/threatwatch/pkg/nn"
	"github.com/cyclopcam/threatwatch/server/camera"
	"github.com/cyclopcam/threatwatch/server/incident"
)

func testFrame(index int64) *camera.Frame {
	return camera.NewFrame(index, time.Unix(1700000000, 0).Add(time.Duration(index)*33*time.Millisecond), cimg.NewImage(64, 48, cimg.PixelFormatRGB))
}

// A person holding a weapon
func violatingObjects() []nn.ObjectDetection {
	return []nn.ObjectDetection{
		{Class: 1, Confidence: 0.9, Box: nn.Rect{X: 10, Y: 10, Width: 20, Height: 30}},
		{Class: 2, Confidence: 0.8, Box: nn.Rect{X: 15, Y: 20, Width: 5, Height: 5}},
	}
}

// A person and a weapon far apart
func harmlessObjects() []nn.ObjectDetection {
	return []nn.ObjectDetection{
		{Class: 1, Confidence: 0.9, Box: nn.Rect{X: 0, Y: 0, Width: 10, Height: 10}},
		{Class: 2, Confidence: 0.8, Box: nn.Rect{X: 40, Y: 30, Width: 5, Height: 5}},
	}
}

type fakeDetector struct {
	lock    sync.Mutex
	objects []nn.ObjectDetection
	fail    bool
	calls   int
}

func (d *fakeDetector) Close() {}

func (d *fakeDetector) DetectObjects(ctx context.Context, img *cimg.Image, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.calls++
	if d.fail {
		return nil, errors.New("model unavailable")
	}
	return append([]nn.ObjectDetection(nil), d.objects...), nil
}

func (d *fakeDetector) set(objects []nn.ObjectDetection) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.objects = objects
}

func (d *fakeDetector) numCalls() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.calls
}

// Produces a fixed number of frames, and then nothing
type fakeSource struct {
	lock     sync.Mutex
	fps      float64
	startErr error
	pending  []*camera.Frame
	started  bool
	stopped  bool
}

func newFakeSource(fps float64, nFrames int) *fakeSource {
	s := &fakeSource{fps: fps}
	for i := 1; i <= nFrames; i++ {
		s.pending = append(s.pending, testFrame(int64(i)))
	}
	return s
}

func (s *fakeSource) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *fakeSource) Read() *camera.Frame {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	f := s.pending[0]
	s.pending = s.pending[1:]
	return f
}

func (s *fakeSource) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.stopped = true
}

func (s *fakeSource) FPS() float64 {
	return s.fps
}

func (s *fakeSource) remaining() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.pending)
}

// Records jobs, and holds onto the busy flag until release() is called
type fakeSubmitter struct {
	lock   sync.Mutex
	state  *State
	jobs   []incident.Job
	reject bool
}

func (f *fakeSubmitter) Submit(job incident.Job) bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.reject {
		return false
	}
	f.jobs = append(f.jobs, job)
	return true
}

func (f *fakeSubmitter) numJobs() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.jobs)
}

func (f *fakeSubmitter) release() {
	f.state.EndIncident()
}

type fakeAnnotator struct {
	lock  sync.Mutex
	lines []string
	fail  bool
}

func (a *fakeAnnotator) Annotate(frame *camera.Frame, objects []nn.ObjectDetection, lines []string) (*camera.Frame, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.fail {
		return nil, errors.New("no drawing today")
	}
	a.lines = lines
	return frame.Clone(), nil
}

func (a *fakeAnnotator) lastLines() []string {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.lines
}
