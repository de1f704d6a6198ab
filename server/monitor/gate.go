package monitor

import (
	"context"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/threatwatch/pkg/nn"
	"github.com/cyclopcam/threatwatch/pkg/perfstats"
	"github.com/cyclopcam/threatwatch/server/camera"
)

type GateConfig struct {
	SampleStride    int // Run detection on every Nth frame
	Classes         nn.ClassMap
	Params          *nn.DetectionParams
	TriggerCooldown time.Duration
	DetectTimeout   time.Duration
}

// Gate runs the detector on sampled frames, and decides whether a frame starts an incident
type Gate struct {
	Log      logs.Log
	detector nn.ObjectDetector
	state    *State
	config   GateConfig
	now      func() time.Time

	InferenceTime   perfstats.SyncTimeAccumulator
	RecentInference perfstats.MovingAverage
	lastErrAt       time.Time
}

// Returns true if we should run detection on the given frame number
func ShouldSample(frameNumber int64, stride int) bool {
	if stride <= 1 {
		return true
	}
	return frameNumber%int64(stride) == 0
}

func NewGate(log logs.Log, detector nn.ObjectDetector, state *State, config GateConfig) *Gate {
	if config.Params == nil {
		config.Params = nn.NewDetectionParams()
	}
	if len(config.Params.Classes) == 0 {
		config.Params.Classes = config.Classes.DetectClasses()
	}
	if config.DetectTimeout == 0 {
		config.DetectTimeout = 5 * time.Second
	}
	return &Gate{
		Log:      logs.NewPrefixLogger(log, "Gate"),
		detector: detector,
		state:    state,
		config:   config,
		now:      time.Now,
	}
}

// Process evaluates one frame. If the frame is sampled, the detector runs and the latest
// detection result is updated. Returns true if the frame was admitted as a new incident,
// in which case the caller owns the busy flag, and must hand the incident to the worker
// (or release the flag).
func (g *Gate) Process(frameNumber int64, frame *camera.Frame) bool {
	if !ShouldSample(frameNumber, g.config.SampleStride) {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.config.DetectTimeout)
	start := time.Now()
	objects, err := g.detector.DetectObjects(ctx, frame.Image, g.config.Params)
	cancel()
	if err != nil {
		if time.Since(g.lastErrAt) > 15*time.Second {
			g.Log.Errorf("Error detecting objects: %v", err)
			g.lastErrAt = time.Now()
		}
		return false
	}
	elapsed := time.Since(start)
	g.InferenceTime.AddSample(elapsed)
	g.RecentInference.Update(elapsed)

	objects = g.config.Params.Filter(objects)
	g.state.SetLastDetection(&nn.DetectionResult{
		ImageWidth:  frame.Width(),
		ImageHeight: frame.Height(),
		Objects:     objects,
		FrameIndex:  frame.Index,
		FramePTS:    frame.CapturedAt,
	})

	// Cheap checks first, so that we don't run the proximity rule while an incident is in progress.
	// TryBeginIncident is the authoritative check.
	if g.state.IsBusy() {
		return false
	}

	assoc, found := nn.FindViolation(objects, g.config.Classes.Subject, g.config.Classes.Restricted)
	if !found {
		return false
	}
	if !g.state.TryBeginIncident(g.now(), g.config.TriggerCooldown) {
		return false
	}
	g.Log.Warnf("Threat detected on frame %v: %v at %v is associated with %v at %v (centers %.0f px apart)",
		frame.Index,
		g.config.Classes.Name(objects[assoc.Subject].Class), objects[assoc.Subject].Box,
		g.config.Classes.Name(objects[assoc.Object].Class), objects[assoc.Object].Box,
		assoc.Distance)
	return true
}
