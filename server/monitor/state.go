package monitor

import (
	"sync"
	"time"

	"github.com/cyclopcam/threatwatch/pkg/nn"
	"github.com/cyclopcam/threatwatch/server/camera"
	"github.com/cyclopcam/threatwatch/server/defs"
)

const DefaultSummaryHistorySize = 20
const DefaultRecentIncidentsSize = 10

// State is the single owner of everything that is shared between the detection loop,
// the incident worker, and the HTTP API. Nothing outside of State touches these fields,
// and every accessor returns a copy.
type State struct {
	// Guards busy, trigger cooldown, counter, and status. The busy check-and-set and the
	// busy release both happen under this lock.
	incidentLock    sync.Mutex
	busy            bool
	lastTriggerAt   time.Time
	totalIncidents  int64
	lastIncidentAt  time.Time
	status          defs.Status
	incidentsActive int // Only ever 0 or 1. Tests assert on the maximum.
	maxActive       int

	historyLock sync.Mutex
	summaries   boundedRing[string]
	recent      boundedRing[defs.IncidentRecord]

	frameLock     sync.Mutex
	currentFrame  *camera.Frame // Latest annotated frame, for the live view
	lastDetection *nn.DetectionResult
}

func NewState(summaryHistorySize, recentIncidentsSize int) *State {
	return &State{
		status:    defs.StatusInitializing,
		summaries: newBoundedRing[string](summaryHistorySize),
		recent:    newBoundedRing[defs.IncidentRecord](recentIncidentsSize),
	}
}

// TryBeginIncident is the admission check. If no incident is in progress, and at least
// 'cooldown' has elapsed since the previous trigger, then the busy flag is set, the trigger
// time is recorded, and we return true.
func (s *State) TryBeginIncident(now time.Time, cooldown time.Duration) bool {
	s.incidentLock.Lock()
	defer s.incidentLock.Unlock()
	if s.busy {
		return false
	}
	if !s.lastTriggerAt.IsZero() && now.Sub(s.lastTriggerAt) < cooldown {
		return false
	}
	s.busy = true
	s.lastTriggerAt = now
	s.incidentsActive++
	s.maxActive = max(s.maxActive, s.incidentsActive)
	return true
}

// IsBusy returns true while an incident is being processed
func (s *State) IsBusy() bool {
	s.incidentLock.Lock()
	defer s.incidentLock.Unlock()
	return s.busy
}

// StartIncident increments the incident counter, and flips the status to violation_detected.
// Returns the new counter value, which is the incident ID.
func (s *State) StartIncident(now time.Time) int64 {
	s.incidentLock.Lock()
	defer s.incidentLock.Unlock()
	s.totalIncidents++
	s.lastIncidentAt = now
	s.status = defs.StatusViolationDetected
	return s.totalIncidents
}

// EndIncident clears the busy flag. It is safe to call when not busy.
func (s *State) EndIncident() {
	s.incidentLock.Lock()
	defer s.incidentLock.Unlock()
	if s.busy {
		s.incidentsActive--
	}
	s.busy = false
}

func (s *State) SetStatus(status defs.Status) {
	s.incidentLock.Lock()
	defer s.incidentLock.Unlock()
	s.status = status
}

func (s *State) Status() defs.Status {
	s.incidentLock.Lock()
	defer s.incidentLock.Unlock()
	return s.status
}

func (s *State) Stats() defs.Stats {
	s.incidentLock.Lock()
	defer s.incidentLock.Unlock()
	st := defs.Stats{
		TotalViolations: s.totalIncidents,
		CurrentStatus:   s.status,
	}
	if !s.lastIncidentAt.IsZero() {
		t := s.lastIncidentAt
		st.LastViolationTime = &t
	}
	return st
}

// Returns the highest number of incidents that were ever in progress at the same time
func (s *State) MaxConcurrentIncidents() int {
	s.incidentLock.Lock()
	defer s.incidentLock.Unlock()
	return s.maxActive
}

// Returns the prior summaries, oldest first
func (s *State) Summaries() []string {
	s.historyLock.Lock()
	defer s.historyLock.Unlock()
	return s.summaries.Items()
}

func (s *State) AddSummary(summary string) {
	s.historyLock.Lock()
	defer s.historyLock.Unlock()
	s.summaries.Add(summary)
}

func (s *State) AddIncident(r defs.IncidentRecord) {
	s.historyLock.Lock()
	defer s.historyLock.Unlock()
	s.recent.Add(r)
}

// Returns the most recent incidents, oldest first
func (s *State) RecentIncidents() []defs.IncidentRecord {
	s.historyLock.Lock()
	defer s.historyLock.Unlock()
	return s.recent.Items()
}

func (s *State) SetCurrentFrame(f *camera.Frame) {
	s.frameLock.Lock()
	defer s.frameLock.Unlock()
	s.currentFrame = f
}

// Returns the latest annotated frame, or nil.
// Frames are immutable once published, so the caller may read it without holding any lock.
func (s *State) CurrentFrame() *camera.Frame {
	s.frameLock.Lock()
	defer s.frameLock.Unlock()
	return s.currentFrame
}

func (s *State) SetLastDetection(r *nn.DetectionResult) {
	s.frameLock.Lock()
	defer s.frameLock.Unlock()
	s.lastDetection = r.Clone()
}

// Returns a copy of the most recent detection result, or nil
func (s *State) LastDetection() *nn.DetectionResult {
	s.frameLock.Lock()
	defer s.frameLock.Unlock()
	return s.lastDetection.Clone()
}
