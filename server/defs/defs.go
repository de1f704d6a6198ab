package defs

import (
	"fmt"
	"time"
)

// defs contains some definitions that are shared by all systems

type Status string

const (
	StatusInitializing      Status = "initializing"
	StatusMonitoring        Status = "monitoring"
	StatusViolationDetected Status = "violation_detected"
	StatusError             Status = "error"
)

var AllStatuses = []Status{StatusInitializing, StatusMonitoring, StatusViolationDetected, StatusError}

func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("Unknown status '%v'", s)
}

// Stats is the public summary of the detector's state
type Stats struct {
	TotalViolations   int64      `json:"total_violations"`
	LastViolationTime *time.Time `json:"last_violation_time"` // nil until the first incident
	CurrentStatus     Status     `json:"current_status"`
}

// IncidentRecord is created once per incident that produced a clip, and never modified afterwards
type IncidentRecord struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Summary   string    `json:"summary"`
	Type      string    `json:"type"`     // eg WEAPON_DETECTED
	Severity  string    `json:"severity"` // eg CRITICAL
	CameraID  string    `json:"camera_id"`
	ClipPath  string    `json:"-"`
}
