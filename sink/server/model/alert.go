package model

import "github.com/cyclopcam/dbh"

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// Alert is one incident that a camera reported to us
type Alert struct {
	BaseModel
	CreatedAt     dbh.IntTime `json:"created_at"`
	ViolationType string      `json:"violation_type"`
	CameraID      string      `json:"camera_id"`
	Summary       string      `json:"summary"`
	SnapshotName  string      `json:"-"` // Blob name, empty if no snapshot was sent
	SnapshotSize  int64       `json:"snapshot_size"`
	ClipName      string      `json:"-"` // Blob name, empty if no clip was sent
	ClipSize      int64       `json:"clip_size"`
	ClipType      string      `json:"-"` // Content-Type of the clip
}
