package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/threatwatch/pkg/nn"
	"github.com/cyclopcam/threatwatch/server/camera"
	"github.com/cyclopcam/threatwatch/server/caption"
	"github.com/cyclopcam/threatwatch/server/config"
	"github.com/cyclopcam/threatwatch/server/defs"
	"github.com/cyclopcam/threatwatch/server/detector"
	"github.com/cyclopcam/threatwatch/server/events"
	"github.com/cyclopcam/threatwatch/server/incident"
	"github.com/cyclopcam/threatwatch/server/monitor"
	"github.com/cyclopcam/threatwatch/server/notifications"
	"github.com/cyclopcam/threatwatch/server/videox"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
)

const (
	ServerFlagHotReloadWWW = 1 << iota // Don't embed the dashboard. Read it from the filesystem on each request.
)

type Server struct {
	Log              logs.Log
	Config           *config.Config
	State            *monitor.State
	HotReloadWWW     bool
	ShutdownComplete chan error // Receives a value when Shutdown() is complete

	detector    nn.ObjectDetector
	healthCheck func(ctx context.Context) error
	captions    caption.Provider
	monitor     *monitor.Monitor
	worker      *incident.Worker
	dispatcher  *notifications.Dispatcher // nil if alerts are disabled
	hub         *events.Hub
	emitter     events.Emitter // hub, plus Redis if configured
	redisClient *redis.Client
	redisSink   *events.RedisSink
	signalIn    chan os.Signal
	httpServer  *http.Server
	httpRouter  *httprouter.Router
	wsUpgrader  websocket.Upgrader
}

// NewServer wires up the camera, the detector sidecar, the incident pipeline, and the HTTP API.
// Nothing is started until StartMonitor() and ListenHTTP().
func NewServer(logger logs.Log, cfg *config.Config, flags int) (*Server, error) {
	source := videox.NewCapture(logger, videox.CaptureConfig{
		Device: cfg.Camera.Device,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
		FPS:    cfg.Camera.FPS,
	})
	det := detector.NewClient(logger, cfg.Detection.URL)
	return newServer(logger, cfg, flags, source, det, det.Health)
}

// newServer is NewServer with the camera and the detector injected
func newServer(logger logs.Log, cfg *config.Config, flags int, source camera.Source, det nn.ObjectDetector, healthCheck func(ctx context.Context) error) (*Server, error) {
	s := &Server{
		Log:              logger,
		Config:           cfg,
		State:            monitor.NewState(monitor.DefaultSummaryHistorySize, monitor.DefaultRecentIncidentsSize),
		HotReloadWWW:     (flags & ServerFlagHotReloadWWW) != 0,
		ShutdownComplete: make(chan error, 1),
		detector:         det,
		healthCheck:      healthCheck,
		hub:              events.NewHub(logger),
	}
	s.hub.Greeting = func() events.Event {
		stats := s.State.Stats()
		return events.Event{
			Type: events.TypeStatus,
			Data: &events.StatusUpdate{
				Status:  string(stats.CurrentStatus),
				Message: "Connected to weapon detection system",
				Stats:   stats,
			},
		}
	}

	s.emitter = s.hub
	if cfg.Events.RedisAddr != "" {
		s.redisClient = redis.NewClient(&redis.Options{Addr: cfg.Events.RedisAddr})
		s.redisSink = events.NewRedisSink(logger, s.redisClient, cfg.Events.RedisChannel)
		s.emitter = events.Multi{s.hub, s.redisSink}
		logger.Infof("Publishing events to Redis %v, channel %v", cfg.Events.RedisAddr, cfg.Events.RedisChannel)
	}

	modeName := "Basic Mode"
	if cfg.Caption.URL != "" {
		s.captions = caption.NewVLMProvider(logger, cfg.Caption.URL, cfg.Caption.MaxNewTokens)
		modeName = "VLM"
	} else {
		s.captions = caption.NewFallbackProvider()
		logger.Infof("No caption service configured. Using built-in descriptions")
	}

	var dispatcher incident.Dispatcher = nopDispatcher{}
	if cfg.Alerts.URL != "" {
		s.dispatcher = notifications.NewDispatcher(logger, cfg.Alerts.URL,
			secondsToDuration(cfg.Alerts.CooldownSeconds),
			secondsToDuration(cfg.Alerts.TimeoutSeconds))
		dispatcher = s.dispatcher
	} else {
		logger.Warnf("No alert URL configured. Incidents will not be sent anywhere")
	}

	incCfg := incident.DefaultConfig()
	incCfg.CameraID = cfg.Camera.ID
	incCfg.ViolationType = cfg.Incident.ViolationType
	incCfg.Severity = cfg.Incident.Severity
	clipWriter := videox.NewClipWriter(logger, cfg.Incident.ClipDir)
	s.worker = incident.NewWorker(logger, incCfg, s.State, clipWriter, openClip, s.captions, dispatcher, s.emitter)

	classes := cfg.Detection.Classes
	params := nn.NewDetectionParams()
	params.ProbabilityThreshold = cfg.Detection.ProbabilityThreshold
	params.NmsIouThreshold = cfg.Detection.NmsIouThreshold
	params.Classes = classes.DetectClasses()

	s.monitor = monitor.NewMonitor(logger, source, det, s.State, s.worker, videox.NewAnnotator(classes), monitor.Config{
		Gate: monitor.GateConfig{
			SampleStride:    cfg.Detection.SampleStride,
			Classes:         classes,
			Params:          params,
			TriggerCooldown: secondsToDuration(cfg.Incident.TriggerCooldownSeconds),
		},
		BufferSeconds: cfg.Incident.BufferSeconds,
		ModeName:      modeName,
	})

	s.logClassMapping()

	if err := s.setupHttpRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) logClassMapping() {
	c := s.Config.Detection.Classes
	s.Log.Infof("Subject class: %v (%v). Restricted object class: %v (%v)", c.Subject, c.Name(c.Subject), c.Restricted, c.Name(c.Restricted))
	for _, id := range c.Ignored {
		s.Log.Infof("Class %v (%v) is recognized by the model, but ignored", id, c.Name(id))
	}
}

// StartMonitor checks that the detector is alive, and starts the camera and the detection loop.
// On failure the status becomes "error", and the HTTP API keeps running.
func (s *Server) StartMonitor() error {
	if s.healthCheck != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := s.healthCheck(ctx)
		cancel()
		if err != nil {
			s.State.SetStatus(defs.StatusError)
			s.emitStatus(defs.StatusError, "Object detector is not available")
			return fmt.Errorf("Object detector is not available: %w", err)
		}
	}
	if err := s.monitor.Start(); err != nil {
		s.emitStatus(defs.StatusError, "Failed to open camera")
		return err
	}
	s.emitStatus(defs.StatusMonitoring, "Monitoring started")
	return nil
}

func (s *Server) emitStatus(status defs.Status, message string) {
	s.emitter.Emit(events.NewStatusUpdate(string(status), message, s.State.Stats()))
}

// port example: ":8080"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) ListenForKillSignals() {
	s.Log.Infof("ListenForKillSignals starting")
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. ListenForKillSignals will exit after shutdown", sig.String())
			s.Shutdown()
		} else {
			// This path gets hit when Shutdown() is called by something other than ourselves, and Shutdown() closes the signalIn channel.
			s.Log.Infof("signalIn closed. ListenForKillSignals will exit now")
		}
	}()
}

// Shutdown stops the HTTP server, the detection loop and camera, and then waits for
// any incident in progress to finish, and for outstanding alerts to be sent.
func (s *Server) Shutdown() {
	s.Log.Infof("Shutdown")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
	}

	var err error
	if s.httpServer != nil {
		s.Log.Infof("Closing HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = s.httpServer.Shutdown(ctx)
		cancel()
	}

	s.monitor.Close()
	s.detector.Close()
	s.worker.Close()
	if s.dispatcher != nil {
		s.dispatcher.Close()
	}
	if s.redisSink != nil {
		s.redisSink.Close()
		s.redisClient.Close()
	}

	if err != nil {
		s.Log.Warnf("Shutdown complete, with error: %v", err)
	} else {
		s.Log.Infof("Shutdown complete")
	}
	s.ShutdownComplete <- err
}

func openClip(path string) (incident.Clip, error) {
	clip, err := videox.OpenClip(path)
	if err != nil {
		return nil, err
	}
	return clip, nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(record defs.IncidentRecord, keyframe *camera.Frame, clipPath string) {}
