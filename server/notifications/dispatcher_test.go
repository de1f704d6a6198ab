package notifications

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/threatwatch/server/camera"
	"github.com/cyclopcam/threatwatch/server/defs"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	srv      *httptest.Server
	status   atomic.Int32
	received atomic.Int32
	ids      chan string // Summary of each request, in arrival order
	hold     chan bool   // If not nil, each request waits until this is closed
	waiting  atomic.Int32
}

func newFakeSink(t *testing.T) *fakeSink {
	s := &fakeSink{ids: make(chan string, 10)}
	s.status.Store(http.StatusCreated)
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := int(s.status.Load())
		if s.hold != nil {
			s.waiting.Add(1)
			<-s.hold
		}
		require.NoError(t, r.ParseMultipartForm(10<<20))
		require.Equal(t, "WEAPON_DETECTED", r.FormValue("violation_type"))
		require.Equal(t, "CAM-01", r.FormValue("camera_id"))
		require.NotEmpty(t, r.FormValue("summary"))

		snap, snapHeader, err := r.FormFile("snapshot")
		require.NoError(t, err)
		require.Equal(t, "snapshot.jpg", snapHeader.Filename)
		require.Equal(t, "image/jpeg", snapHeader.Header.Get("Content-Type"))
		jpg, _ := io.ReadAll(snap)
		require.Equal(t, byte(0xff), jpg[0])

		clip, clipHeader, err := r.FormFile("clip")
		require.NoError(t, err)
		require.Equal(t, "violation_100.avi", clipHeader.Filename)
		b, _ := io.ReadAll(clip)
		require.Equal(t, "not really a video", string(b))

		s.received.Add(1)
		s.ids <- r.FormValue("summary")
		w.WriteHeader(status)
		w.Write([]byte(`{"detail": "whatever"}`))
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func setup(t *testing.T, url string) (*Dispatcher, *time.Time, defs.IncidentRecord, *camera.Frame, string) {
	clipPath := filepath.Join(t.TempDir(), "violation_100.avi")
	require.NoError(t, os.WriteFile(clipPath, []byte("not really a video"), 0644))
	now := time.Unix(1000, 0)
	d := NewDispatcher(logs.NewTestingLog(t), url, 30*time.Second, 5*time.Second)
	d.now = func() time.Time { return now }
	record := defs.IncidentRecord{ID: 1, Summary: "Armed individual", Type: "WEAPON_DETECTED", Severity: "CRITICAL", CameraID: "CAM-01"}
	frame := camera.NewFrame(1, now, cimg.NewImage(64, 48, cimg.PixelFormatRGB))
	return d, &now, record, frame, clipPath
}

func TestCooldown(t *testing.T) {
	sink := newFakeSink(t)
	d, now, record, frame, clipPath := setup(t, sink.srv.URL)

	require.Equal(t, ResultSent, d.Send(record, frame, clipPath))
	*now = now.Add(10 * time.Second)
	require.Equal(t, ResultCooldown, d.Send(record, frame, clipPath))
	*now = now.Add(20 * time.Second)
	require.Equal(t, ResultSent, d.Send(record, frame, clipPath))
	require.Equal(t, int32(2), sink.received.Load())
}

func TestFailureDoesNotAdvanceCooldown(t *testing.T) {
	sink := newFakeSink(t)
	d, now, record, frame, clipPath := setup(t, sink.srv.URL)

	sink.status.Store(http.StatusBadRequest)
	require.Equal(t, ResultFailed, d.Send(record, frame, clipPath))

	// The very next incident may try again
	sink.status.Store(http.StatusCreated)
	*now = now.Add(time.Second)
	require.Equal(t, ResultSent, d.Send(record, frame, clipPath))

	// 200 is not 201
	*now = now.Add(time.Minute)
	sink.status.Store(http.StatusOK)
	require.Equal(t, ResultFailed, d.Send(record, frame, clipPath))
	require.Equal(t, int32(3), sink.received.Load())
}

func TestMissingClipAndUnreachable(t *testing.T) {
	d, _, record, frame, clipPath := setup(t, "http://127.0.0.1:1/api/alerts/create/")
	require.Equal(t, ResultFailed, d.Send(record, frame, clipPath))
	require.Equal(t, ResultFailed, d.Send(record, frame, clipPath+".missing"))
}

func TestDispatchAsync(t *testing.T) {
	sink := newFakeSink(t)
	d, _, record, frame, clipPath := setup(t, sink.srv.URL)
	d.Dispatch(record, frame, clipPath)
	d.Close()
	<-d.ShutdownComplete
	require.Equal(t, int32(1), sink.received.Load())
}

// An alert that arrives while another is being sent must wait for it, instead of being dropped
func TestQueuedBehindFailedSend(t *testing.T) {
	sink := newFakeSink(t)
	sink.hold = make(chan bool)
	d, _, record, frame, clipPath := setup(t, sink.srv.URL)

	sink.status.Store(http.StatusInternalServerError)
	first := make(chan Result, 1)
	go func() { first <- d.Send(record, frame, clipPath) }()
	require.Eventually(t, func() bool { return sink.waiting.Load() == 1 }, 5*time.Second, time.Millisecond)

	// The first alert is now stuck inside the alert service, and is going to fail
	sink.status.Store(http.StatusCreated)
	second := record
	second.ID = 2
	second.Summary = "Second incident"
	secondResult := make(chan Result, 1)
	go func() { secondResult <- d.Send(second, frame, clipPath) }()
	// Give the second send time to queue up behind the first
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), sink.waiting.Load())

	close(sink.hold)
	require.Equal(t, ResultFailed, <-first)
	require.Equal(t, ResultSent, <-secondResult)
	require.Equal(t, "Armed individual", <-sink.ids)
	require.Equal(t, "Second incident", <-sink.ids)
	require.Equal(t, int32(2), sink.received.Load())
}

func TestQueuedBehindSuccessfulSend(t *testing.T) {
	sink := newFakeSink(t)
	sink.hold = make(chan bool)
	d, _, record, frame, clipPath := setup(t, sink.srv.URL)

	first := make(chan Result, 1)
	go func() { first <- d.Send(record, frame, clipPath) }()
	require.Eventually(t, func() bool { return sink.waiting.Load() == 1 }, 5*time.Second, time.Millisecond)

	secondResult := make(chan Result, 1)
	go func() { secondResult <- d.Send(record, frame, clipPath) }()
	time.Sleep(50 * time.Millisecond)

	close(sink.hold)
	require.Equal(t, ResultSent, <-first)
	// The first one got through, so the second is inside the cooldown
	require.Equal(t, ResultCooldown, <-secondResult)
	require.Equal(t, int32(1), sink.received.Load())
}
