package ws

import (
	"time"

	"zvision/internal/pipeline"
)

// FootfallMessage announces a classified entry or exit event
type FootfallMessage struct {
	Type         string    `json:"type"` // "footfall"
	EventID      string    `json:"event_id"`
	CameraID     string    `json:"camera_id"`
	EventType    string    `json:"event_type"` // "entry", "exit", "unknown"
	Direction    string    `json:"direction"`
	Timestamp    time.Time `json:"timestamp"`
	SnapshotPath string    `json:"snapshot_path,omitempty"`
}

// PresenceMessage announces a presence state change
type PresenceMessage struct {
	Type      string    `json:"type"` // "presence"
	CameraID  string    `json:"camera_id"`
	State     string    `json:"state"` // "idle", "present"
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotMessage announces a newly stored evidence snapshot
type SnapshotMessage struct {
	Type      string    `json:"type"` // "snapshot"
	CameraID  string    `json:"camera_id"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// NewFootfallMessage converts a pipeline event for broadcast
func NewFootfallMessage(event *pipeline.FootfallEvent) *FootfallMessage {
	return &FootfallMessage{
		Type:         "footfall",
		EventID:      event.ID,
		CameraID:     event.CameraID,
		EventType:    string(event.Type),
		Direction:    string(event.Direction),
		Timestamp:    event.Timestamp,
		SnapshotPath: event.SnapshotPath,
	}
}

// NewPresenceMessage converts a presence update for broadcast
func NewPresenceMessage(update pipeline.PresenceUpdate) *PresenceMessage {
	return &PresenceMessage{
		Type:      "presence",
		CameraID:  update.CameraID,
		State:     string(update.State),
		Timestamp: update.Timestamp,
	}
}

// NewSnapshotMessage converts a snapshot record for broadcast
func NewSnapshotMessage(record pipeline.SnapshotRecord) *SnapshotMessage {
	return &SnapshotMessage{
		Type:      "snapshot",
		CameraID:  record.CameraID,
		Path:      record.Path,
		Timestamp: record.Timestamp,
	}
}
