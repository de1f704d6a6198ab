package events

import (
	"sync"

	"github.com/cyclopcam/threatwatch/server/defs"
)

// Event types
// SYNC-EVENT-TYPES
const (
	TypeStatus            = "status"             // Greeting sent to a newly connected client
	TypeStatusUpdate      = "status_update"      // Progress of the detector and the incident pipeline
	TypeViolationDetected = "violation_detected" // A new incident record
)

// Status values of a status_update event, in addition to the defs.Status values
const StatusProcessingViolation = "processing_violation"

// Event is what listeners receive. On the wire it is {"type": ..., "data": ...}
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type StatusUpdate struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	Stats   defs.Stats `json:"stats"`
}

func NewStatusUpdate(status string, message string, stats defs.Stats) Event {
	return Event{
		Type: TypeStatusUpdate,
		Data: &StatusUpdate{
			Status:  status,
			Message: message,
			Stats:   stats,
		},
	}
}

func NewViolation(record defs.IncidentRecord) Event {
	return Event{
		Type: TypeViolationDetected,
		Data: &record,
	}
}

// Emitter delivers events on a best-effort basis.
// Emit must not block on slow listeners.
type Emitter interface {
	Emit(ev Event)
}

// Multi sends every event to all of its emitters
type Multi []Emitter

func (m Multi) Emit(ev Event) {
	for _, e := range m {
		e.Emit(ev)
	}
}

// Recorder keeps every event. Useful for tests, and for anybody who wants to inspect the event stream.
type Recorder struct {
	lock   sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, ev)
}

// Returns a copy of all events so far
func (r *Recorder) Events() []Event {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]Event(nil), r.events...)
}

// Returns the status field of every status_update event, in order
func (r *Recorder) Statuses() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := []string{}
	for _, ev := range r.events {
		if su, ok := ev.Data.(*StatusUpdate); ok && ev.Type == TypeStatusUpdate {
			out = append(out, su.Status)
		}
	}
	return out
}
