package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/threatwatch/server/defs"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

// Number of incidents returned by /api/violations
const recentViolationsLimit = 10

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type pingJSON struct {
		Time int64 `json:"time"`
	}
	ping := &pingJSON{
		Time: time.Now().Unix(),
	}
	www.SendJSON(w, ping)
}

func (s *Server) httpStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type statusJSON struct {
		defs.Stats
		Processing        bool    `json:"processing"`
		FrameCount        int64   `json:"frame_count"`
		FPS               float64 `json:"fps"`
		BufferedFrames    int     `json:"buffered_frames"`
		InferenceMS       float64 `json:"inference_ms"`        // Average over all time
		RecentInferenceMS float64 `json:"recent_inference_ms"` // Moving average
		EventClients      int     `json:"event_clients"`
	}
	gate := s.monitor.Gate()
	inferenceTime := gate.InferenceTime.Get()
	st := &statusJSON{
		Stats:             s.State.Stats(),
		Processing:        s.State.IsBusy(),
		FrameCount:        s.monitor.FrameCount(),
		FPS:               s.monitor.FPS(),
		BufferedFrames:    s.monitor.BufferLen(),
		InferenceMS:       inferenceTime.Average().Seconds() * 1000,
		RecentInferenceMS: gate.RecentInference.Get().Seconds() * 1000,
		EventClients:      s.hub.NumClients(),
	}
	www.SendJSON(w, st)
}

func (s *Server) httpViolations(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type violationsJSON struct {
		Violations []defs.IncidentRecord `json:"violations"`
		Stats      defs.Stats            `json:"stats"`
	}
	recent := s.State.RecentIncidents()
	if len(recent) > recentViolationsLimit {
		recent = recent[len(recent)-recentViolationsLimit:]
	}
	www.SendJSON(w, &violationsJSON{
		Violations: recent,
		Stats:      s.State.Stats(),
	})
}

// Returns the parts of the config that the dashboard shows
func (s *Server) httpConfig(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type configJSON struct {
		CameraID               string   `json:"camera_id"`
		SampleStride           int      `json:"sample_stride"`
		TriggerCooldownSeconds float64  `json:"trigger_cooldown_seconds"`
		AlertCooldownSeconds   float64  `json:"alert_cooldown_seconds"`
		BufferSeconds          float64  `json:"buffer_seconds"`
		Classes                []string `json:"classes"`
	}
	c := s.Config
	www.SendJSON(w, &configJSON{
		CameraID:               c.Camera.ID,
		SampleStride:           c.Detection.SampleStride,
		TriggerCooldownSeconds: c.Incident.TriggerCooldownSeconds,
		AlertCooldownSeconds:   c.Alerts.CooldownSeconds,
		BufferSeconds:          c.Incident.BufferSeconds,
		Classes: []string{
			c.Detection.Classes.Name(c.Detection.Classes.Subject),
			c.Detection.Classes.Name(c.Detection.Classes.Restricted),
		},
	})
}
