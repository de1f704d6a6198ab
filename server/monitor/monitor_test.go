package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/threatwatch/pkg/nn"
	"github.com/cyclopcam/threatwatch/server/defs"
	"github.com/stretchr/testify/require"
)

type monitorRig struct {
	monitor   *Monitor
	source    *fakeSource
	detector  *fakeDetector
	state     *State
	worker    *fakeSubmitter
	annotator *fakeAnnotator
}

func newMonitorRig(t *testing.T, fps float64, nFrames int, bufferSeconds float64) *monitorRig {
	r := &monitorRig{
		source:    newFakeSource(fps, nFrames),
		detector:  &fakeDetector{objects: harmlessObjects()},
		state:     NewState(DefaultSummaryHistorySize, DefaultRecentIncidentsSize),
		annotator: &fakeAnnotator{},
	}
	r.worker = &fakeSubmitter{state: r.state}
	r.monitor = NewMonitor(logs.NewTestingLog(t), r.source, r.detector, r.state, r.worker, r.annotator, Config{
		Gate: GateConfig{
			SampleStride:    3,
			Classes:         nn.DefaultClassMap(),
			TriggerCooldown: time.Hour,
		},
		BufferSeconds: bufferSeconds,
	})
	return r
}

// Feed frames directly, without the loop goroutine or its sleeps
func (r *monitorRig) feed(t *testing.T, n int) {
	for i := 0; i < n; i++ {
		f := r.source.Read()
		require.NotNil(t, f)
		r.monitor.processFrame(f)
	}
}

func TestMonitorStartFailure(t *testing.T) {
	r := newMonitorRig(t, 30, 0, 12)
	r.source.startErr = errors.New("no such device")
	require.Error(t, r.monitor.Start())
	require.Equal(t, defs.StatusError, r.state.Status())
	r.monitor.Close()
	require.True(t, r.source.stopped)
}

func TestMonitorLoop(t *testing.T) {
	r := newMonitorRig(t, 30, 20, 12)
	require.NoError(t, r.monitor.Start())
	require.Equal(t, defs.StatusMonitoring, r.state.Status())
	require.Equal(t, 360, r.monitor.buffer.Capacity())
	require.Eventually(t, func() bool { return r.monitor.FrameCount() == 20 }, 5*time.Second, time.Millisecond)
	r.monitor.Close()
	require.True(t, r.source.stopped)
	require.Equal(t, 20, r.monitor.BufferLen())
	// Frames 3,6,...,18
	require.Equal(t, 6, r.detector.numCalls())
	require.NotNil(t, r.state.CurrentFrame())
}

func TestMonitorDefaultFPS(t *testing.T) {
	r := newMonitorRig(t, 0, 0, 1)
	require.NoError(t, r.monitor.Start())
	r.monitor.Close()
	require.Equal(t, float64(DefaultFPS), r.monitor.FPS())
	require.Equal(t, 30, r.monitor.buffer.Capacity())
}

func TestMonitorTrigger(t *testing.T) {
	// 10 FPS * 0.5 seconds = 5 frame buffer
	r := newMonitorRig(t, 10, 12, 0.5)
	r.monitor.fps = 10
	r.monitor.buffer = NewFrameBuffer(FrameBufferCapacity(10, 0.5))
	r.state.SetStatus(defs.StatusMonitoring)

	r.feed(t, 8)
	require.Equal(t, 0, r.worker.numJobs())

	r.detector.set(violatingObjects())
	r.feed(t, 1) // frame 9 is sampled
	require.Equal(t, 1, r.worker.numJobs())
	require.True(t, r.state.IsBusy())

	job := r.worker.jobs[0]
	require.Equal(t, int64(9), job.Trigger.Index)
	require.Equal(t, 10.0, job.FPS)
	// The pre-event buffer holds the frames before the trigger, oldest first
	idx := []int64{}
	for _, f := range job.Buffer {
		idx = append(idx, f.Index)
	}
	require.Equal(t, []int64{4, 5, 6, 7, 8}, idx)

	// Still busy, so frame 12 does not trigger
	r.feed(t, 3)
	require.Equal(t, 1, r.worker.numJobs())

	lines := r.annotator.lastLines()
	require.Equal(t, "Basic Mode Weapon Detection | Frame: 12 | Processing: Yes", lines[0])
	require.Equal(t, "Total Threats: 0 | Status: monitoring", lines[1])
}

func TestMonitorRejectedSubmitReleasesBusy(t *testing.T) {
	r := newMonitorRig(t, 10, 3, 1)
	r.monitor.fps = 10
	r.monitor.buffer = NewFrameBuffer(10)
	r.worker.reject = true
	r.detector.set(violatingObjects())
	r.feed(t, 3)
	require.False(t, r.state.IsBusy())
}

func TestMonitorOverlayFailure(t *testing.T) {
	r := newMonitorRig(t, 10, 1, 1)
	r.monitor.fps = 10
	r.monitor.buffer = NewFrameBuffer(10)
	r.annotator.fail = true
	r.feed(t, 1)
	// We still show the raw frame
	require.Equal(t, int64(1), r.state.CurrentFrame().Index)
}
