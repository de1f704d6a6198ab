package incident

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/threatwatch/pkg/perfstats"
	"github.com/cyclopcam/threatwatch/server/camera"
	"github.com/cyclopcam/threatwatch/server/caption"
	"github.com/cyclopcam/threatwatch/server/defs"
	"github.com/cyclopcam/threatwatch/server/events"
)

// Tracker is the part of the shared state that the worker reads and writes.
// The busy flag is set by the admission check before a Job is submitted, and
// the worker always clears it with EndIncident.
type Tracker interface {
	IsBusy() bool
	StartIncident(now time.Time) int64
	EndIncident()
	SetStatus(status defs.Status)
	Stats() defs.Stats
	Summaries() []string
	AddSummary(summary string)
	AddIncident(r defs.IncidentRecord)
}

type ClipWriter interface {
	WriteClip(buffer []*camera.Frame, trigger *camera.Frame, fps float64, at time.Time) (string, error)
}

// Clip is an encoded clip that we can read frames out of
type Clip interface {
	FrameCount() int
	ReadFrame(idx int) (*camera.Frame, error)
	Close() error
}

type ClipOpener func(path string) (Clip, error)

// Dispatcher sends a finished incident downstream. It must not block.
type Dispatcher interface {
	Dispatch(record defs.IncidentRecord, keyframe *camera.Frame, clipPath string)
}

// Job is everything the worker needs to process one incident
type Job struct {
	Trigger *camera.Frame   // The frame on which the violation was detected
	Buffer  []*camera.Frame // Pre-event frames, oldest first
	FPS     float64
	At      time.Time // Time of the trigger
}

type Config struct {
	CameraID            string
	ViolationType       string
	Severity            string
	SimilarityThreshold float64
	MaxSummaryAttempts  int
	Keywords            Keywords
}

func DefaultConfig() Config {
	return Config{
		CameraID:            "CAM-01",
		ViolationType:       "WEAPON_DETECTED",
		Severity:            "CRITICAL",
		SimilarityThreshold: DefaultSimilarityThreshold,
		MaxSummaryAttempts:  DefaultMaxSummaryAttempts,
		Keywords:            DefaultKeywords(),
	}
}

// Worker processes incidents one at a time, on its own goroutine
type Worker struct {
	Log logs.Log

	// Time taken by each incident, from trigger to completion
	Duration perfstats.SyncTimeAccumulator

	config     Config
	tracker    Tracker
	clips      ClipWriter
	openClip   ClipOpener
	captions   caption.Provider
	dispatcher Dispatcher
	emitter    events.Emitter
	now        func() time.Time
	randIntN   func(n int) int

	jobs    chan Job
	stopped chan bool
}

func NewWorker(log logs.Log, config Config, tracker Tracker, clips ClipWriter, openClip ClipOpener, captions caption.Provider, dispatcher Dispatcher, emitter events.Emitter) *Worker {
	w := &Worker{
		Log:        logs.NewPrefixLogger(log, "Incident"),
		config:     config,
		tracker:    tracker,
		clips:      clips,
		openClip:   openClip,
		captions:   captions,
		dispatcher: dispatcher,
		emitter:    emitter,
		now:        time.Now,
		randIntN:   rand.IntN,
		jobs:       make(chan Job, 1),
		stopped:    make(chan bool),
	}
	go w.run()
	return w
}

// Submit queues a job. Returns false if a job is already queued, in which case
// the caller still owns the busy flag and must release it.
func (w *Worker) Submit(job Job) bool {
	select {
	case w.jobs <- job:
		return true
	default:
		return false
	}
}

// Close waits for the current job (if any) to finish, and stops the worker.
// Submit may not be called after Close.
func (w *Worker) Close() {
	close(w.jobs)
	<-w.stopped
}

func (w *Worker) run() {
	for job := range w.jobs {
		w.process(job)
	}
	close(w.stopped)
}

func (w *Worker) emitStatus(status string, message string) {
	w.emitter.Emit(events.NewStatusUpdate(status, message, w.tracker.Stats()))
}

func (w *Worker) process(job Job) {
	start := w.now()

	// Whatever happens below, the busy flag must be released, or we'll never trigger again
	defer w.tracker.EndIncident()
	defer func() {
		if r := recover(); r != nil {
			w.Log.Errorf("Incident processing failed: %v", r)
			w.tracker.SetStatus(defs.StatusError)
			w.emitStatus(string(defs.StatusError), fmt.Sprintf("Violation processing error: %v", r))
		}
	}()

	if !w.tracker.IsBusy() {
		w.Log.Warnf("Incident job received without the busy flag. Skipping")
		return
	}

	id := w.tracker.StartIncident(job.At)
	w.Log.Infof("Processing violation #%v", id)
	w.emitStatus(events.StatusProcessingViolation, fmt.Sprintf("Processing violation #%v...", id))

	clipPath, err := w.clips.WriteClip(job.Buffer, job.Trigger, job.FPS, job.At)
	if err != nil {
		w.Log.Errorf("Skipping alert, because clip saving failed: %v", err)
		w.tracker.SetStatus(defs.StatusMonitoring)
		w.emitStatus(string(defs.StatusError), "Failed to save violation clip")
		return
	}

	history := w.tracker.Summaries()
	summary, rejected := Dedupe(func(attempt int) string {
		return w.summarize(clipPath)
	}, history, w.config.SimilarityThreshold, w.config.MaxSummaryAttempts, func() string {
		return UniqueFallback(id, w.now())
	})
	if rejected != 0 {
		w.Log.Infof("Rejected %v summaries for being too similar to previous ones", rejected)
	}
	w.tracker.AddSummary(summary)

	record := defs.IncidentRecord{
		ID:        id,
		Timestamp: job.At,
		Summary:   summary,
		Type:      w.config.ViolationType,
		Severity:  w.config.Severity,
		CameraID:  w.config.CameraID,
		ClipPath:  clipPath,
	}
	w.tracker.AddIncident(record)

	w.dispatcher.Dispatch(record, job.Trigger, clipPath)
	w.emitter.Emit(events.NewViolation(record))

	w.tracker.SetStatus(defs.StatusMonitoring)
	w.emitStatus(string(defs.StatusMonitoring), "Violation processed successfully")

	w.Duration.AddSample(w.now().Sub(start))
	w.Log.Infof("Violation #%v: %v", id, summary)
}

// summarize captions keyframes of the clip, and composes them into a summary.
// It never fails. If the clip can't be analyzed, we get one of the fixed fallback descriptions.
func (w *Worker) summarize(clipPath string) string {
	defer w.captions.ClearCache()
	summary, err := w.analyzeClip(clipPath)
	if err != nil {
		w.Log.Warnf("Clip analysis failed: %v", err)
		return ErrorFallback(w.now())
	}
	return summary
}

func (w *Worker) analyzeClip(clipPath string) (string, error) {
	clip, err := w.openClip(clipPath)
	if err != nil {
		return "", err
	}
	defer clip.Close()

	n := clip.FrameCount()
	if n == 0 {
		return "", fmt.Errorf("Clip has no frames")
	}

	keyframes := []*camera.Frame{}
	for _, idx := range KeyframePositions(n) {
		f, err := clip.ReadFrame(idx)
		if err != nil {
			w.Log.Warnf("Failed to read keyframe %v: %v", idx, err)
			continue
		}
		keyframes = append(keyframes, f)
	}
	if len(keyframes) == 0 {
		return "", fmt.Errorf("Could not extract any keyframes")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	analysis := &Analysis{}
	for i, f := range keyframes {
		c := w.captions.Generate(ctx, f, PromptFor(i))
		analysis.Add(c, w.config.Keywords)
	}
	w.Log.Infof("Analysis of %v keyframes: %v", len(keyframes), analysis)

	return ComposeSummary(analysis, w.now(), w.randIntN(len(SeverityPhrases))), nil
}
