package monitor

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/threatwatch/pkg/nn"
	"github.com/cyclopcam/threatwatch/server/camera"
	"github.com/cyclopcam/threatwatch/server/defs"
	"github.com/cyclopcam/threatwatch/server/incident"
)

// Seconds of video that we keep before a trigger
const DefaultBufferSeconds = 12

// Used when the camera doesn't tell us its frame rate
const DefaultFPS = 30

// How long the loop sleeps when there is no frame, and between frames
const loopSleep = 10 * time.Millisecond

// Annotator draws the live view overlay
type Annotator interface {
	Annotate(frame *camera.Frame, objects []nn.ObjectDetection, lines []string) (*camera.Frame, error)
}

// Submitter accepts incident jobs. incident.Worker is the real one.
type Submitter interface {
	Submit(job incident.Job) bool
}

type Config struct {
	Gate          GateConfig
	BufferSeconds float64
	ModeName      string // Shown in the overlay, eg "Basic Mode"
}

// Monitor runs the detection loop. It pulls frames from the source, keeps the rolling
// pre-event buffer, runs the gate on sampled frames, and hands admitted incidents to the worker.
type Monitor struct {
	Log           logs.Log
	source        camera.Source
	state         *State
	gate          *Gate
	worker        Submitter
	annotator     Annotator
	config        Config
	buffer        *FrameBuffer
	fps           float64
	frameCounter  atomic.Int64
	mustStop      atomic.Bool // True if Close() has been called
	looperStopped chan bool   // When looperStopped is closed, then the loop has stopped
	lastErrAt     time.Time
	now           func() time.Time
}

func NewMonitor(logger logs.Log, source camera.Source, detector nn.ObjectDetector, state *State, worker Submitter, annotator Annotator, config Config) *Monitor {
	if config.BufferSeconds <= 0 {
		config.BufferSeconds = DefaultBufferSeconds
	}
	if config.ModeName == "" {
		config.ModeName = "Basic Mode"
	}
	return &Monitor{
		Log:       logs.NewPrefixLogger(logger, "Monitor"),
		source:    source,
		state:     state,
		gate:      NewGate(logger, detector, state, config.Gate),
		worker:    worker,
		annotator: annotator,
		config:    config,
		now:       time.Now,
	}
}

// Start the camera and the detection loop.
// If the camera fails to start, the status becomes "error", and the error is returned.
func (m *Monitor) Start() error {
	if err := m.source.Start(); err != nil {
		m.state.SetStatus(defs.StatusError)
		return fmt.Errorf("Error starting camera: %w", err)
	}
	m.fps = m.source.FPS()
	if m.fps <= 0 {
		m.fps = DefaultFPS
	}
	m.buffer = NewFrameBuffer(FrameBufferCapacity(m.fps, m.config.BufferSeconds))
	m.Log.Infof("Camera running at %.1f FPS. Pre-event buffer holds %v frames", m.fps, m.buffer.Capacity())

	m.state.SetStatus(defs.StatusMonitoring)
	m.mustStop.Store(false)
	m.looperStopped = make(chan bool)
	go m.loop()
	return nil
}

// Close stops the loop, and then the camera
func (m *Monitor) Close() {
	m.Log.Infof("Monitor shutting down")
	if m.looperStopped != nil {
		m.mustStop.Store(true)
		<-m.looperStopped
	}
	m.source.Stop()
	m.Log.Infof("Monitor is closed")
}

// Number of frames that have passed through the loop
func (m *Monitor) FrameCount() int64 {
	return m.frameCounter.Load()
}

// The frame rate that sizes the pre-event buffer
func (m *Monitor) FPS() float64 {
	return m.fps
}

func (m *Monitor) Gate() *Gate {
	return m.gate
}

func (m *Monitor) BufferLen() int {
	if m.buffer == nil {
		return 0
	}
	return m.buffer.Len()
}

// Loop runs until Close()
func (m *Monitor) loop() {
	for !m.mustStop.Load() {
		frame := m.source.Read()
		if frame == nil {
			time.Sleep(loopSleep)
			continue
		}
		m.processFrame(frame)
		time.Sleep(loopSleep)
	}
	close(m.looperStopped)
}

// processFrame does everything the loop does with one frame, except for sleeping
func (m *Monitor) processFrame(frame *camera.Frame) {
	n := m.frameCounter.Add(1)

	// The gate runs before the frame joins the buffer, so that the pre-event buffer
	// holds the frames before the trigger, and the clip ends with the trigger frame.
	if m.gate.Process(n, frame) {
		job := incident.Job{
			Trigger: frame,
			Buffer:  m.buffer.Snapshot(),
			FPS:     m.fps,
			At:      m.now(),
		}
		if !m.worker.Submit(job) {
			m.Log.Errorf("Incident worker rejected job for frame %v", frame.Index)
			m.state.EndIncident()
		}
	}
	m.buffer.Add(frame)

	m.updateLiveView(n, frame)
}

func (m *Monitor) updateLiveView(n int64, frame *camera.Frame) {
	if m.annotator == nil {
		m.state.SetCurrentFrame(frame)
		return
	}
	var objects []nn.ObjectDetection
	if last := m.state.LastDetection(); last != nil {
		objects = last.Objects
	}
	processing := "No"
	if m.state.IsBusy() {
		processing = "Yes"
	}
	stats := m.state.Stats()
	lines := []string{
		fmt.Sprintf("%v Weapon Detection | Frame: %v | Processing: %v", m.config.ModeName, n, processing),
		fmt.Sprintf("Total Threats: %v | Status: %v", stats.TotalViolations, stats.CurrentStatus),
	}
	annotated, err := m.annotator.Annotate(frame, objects, lines)
	if err != nil {
		if time.Since(m.lastErrAt) > 15*time.Second {
			m.Log.Errorf("Error drawing overlay: %v", err)
			m.lastErrAt = time.Now()
		}
		annotated = frame
	}
	m.state.SetCurrentFrame(annotated)
}
