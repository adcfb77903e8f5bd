package pipeline

import (
	"fmt"
	"time"
)

// Direction describes the inferred horizontal direction of travel
type Direction string

const (
	DirectionUnknown     Direction = "unknown"
	DirectionLeftToRight Direction = "left_to_right"
	DirectionRightToLeft Direction = "right_to_left"
)

// EntryDirection configures which direction of travel counts as an entry
type EntryDirection string

const (
	// EntryDirectionNone - camera emits generic presence events only
	EntryDirectionNone EntryDirection = ""
	// EntryDirectionLTR - left-to-right movement is an entry
	EntryDirectionLTR EntryDirection = "LTR"
	// EntryDirectionRTL - right-to-left movement is an entry
	EntryDirectionRTL EntryDirection = "RTL"
)

// EventType classifies a completed presence session
type EventType string

const (
	EventEntry   EventType = "entry"
	EventExit    EventType = "exit"
	EventUnknown EventType = "unknown"
)

// PresenceState is the committed state of the per-camera presence machine
type PresenceState string

const (
	StateIdle    PresenceState = "idle"
	StatePresent PresenceState = "present"
)

// Frame is a single captured video frame. Frames are immutable once
// produced: the capture loop hands them off and never touches them again.
type Frame struct {
	CameraID  string    // Camera identifier
	Data      []byte    // JPEG frame data
	Seq       uint64    // Strictly increasing per-camera sequence number
	Timestamp time.Time // Capture timestamp
	Width     int       // Frame width (if known)
	Height    int       // Frame height (if known)
}

// BBox is a detection bounding box in frame-pixel coordinates
type BBox struct {
	X1 float32 `json:"x1"` // Left
	Y1 float32 `json:"y1"` // Top
	X2 float32 `json:"x2"` // Right
	Y2 float32 `json:"y2"` // Bottom
}

// CenterX returns the horizontal coordinate of the box center
func (b BBox) CenterX() float32 { return (b.X1 + b.X2) / 2 }

// CenterY returns the vertical coordinate of the box center
func (b BBox) CenterY() float32 { return (b.Y1 + b.Y2) / 2 }

// RawDetection is a single detector result for one frame. RawDetections
// live for one scheduler tick and are not retained.
type RawDetection struct {
	Class      string  `json:"class"`
	Confidence float32 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// Rect is an axis-aligned zone rectangle in frame-pixel coordinates,
// with X1 < X2 and Y1 < Y2.
type Rect struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Contains reports whether the point lies inside the rectangle.
// Bounds are inclusive so a centroid exactly on the edge still counts.
func (r Rect) Contains(x, y float32) bool {
	return x >= float32(r.X1) && x <= float32(r.X2) &&
		y >= float32(r.Y1) && y <= float32(r.Y2)
}

// Width returns the rectangle width in pixels
func (r Rect) Width() int { return r.X2 - r.X1 }

// Validate checks the rectangle against a frame resolution
func (r Rect) Validate(frameWidth, frameHeight int) error {
	if r.X1 >= r.X2 || r.Y1 >= r.Y2 {
		return fmt.Errorf("degenerate zone rectangle (%d,%d)-(%d,%d)", r.X1, r.Y1, r.X2, r.Y2)
	}
	if r.X1 < 0 || r.Y1 < 0 || r.X2 > frameWidth || r.Y2 > frameHeight {
		return fmt.Errorf("zone rectangle (%d,%d)-(%d,%d) outside frame %dx%d",
			r.X1, r.Y1, r.X2, r.Y2, frameWidth, frameHeight)
	}
	return nil
}

// FootfallEvent is emitted when a presence session ends. It is immutable
// once created.
type FootfallEvent struct {
	ID           string    `json:"id"`
	CameraID     string    `json:"camera_id"`
	Type         EventType `json:"type"`
	Direction    Direction `json:"direction"`
	Timestamp    time.Time `json:"timestamp"`
	SnapshotPath string    `json:"snapshot_path,omitempty"`
}

// SnapshotRecord describes a persisted evidence image
type SnapshotRecord struct {
	CameraID  string    `json:"camera_id"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Seq       uint64    `json:"seq"`
}

// PresenceUpdate announces a committed presence transition. Both the
// start and the end of a session produce one.
type PresenceUpdate struct {
	CameraID  string        `json:"camera_id"`
	State     PresenceState `json:"state"`
	Timestamp time.Time     `json:"timestamp"`
}

// PresenceSnapshot is a point-in-time copy of a camera's presence state,
// safe to hand to readers outside the owning detection worker.
type PresenceSnapshot struct {
	CameraID      string        `json:"camera_id"`
	State         PresenceState `json:"state"`
	Direction     Direction     `json:"direction"`
	MissCount     int           `json:"miss_count"`
	HistoryLen    int           `json:"history_len"`
	LastDetection time.Time     `json:"last_detection"`
}

// SourceHealth is a point-in-time copy of a frame source's health
type SourceHealth struct {
	CameraID       string    `json:"camera_id"`
	Healthy        bool      `json:"healthy"`
	Running        bool      `json:"running"`
	FramesCaptured uint64    `json:"frames_captured"`
	ReadFailures   uint64    `json:"read_failures"`
	Reconnects     uint64    `json:"reconnects"`
	LastFrameTime  time.Time `json:"last_frame_time"`
}

// CameraConfig describes one camera. Nil detection fields mean
// "inherit from the global defaults".
type CameraConfig struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Source         string         `json:"source"` // device path, rtsp/http URL or file path
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	FPS            int            `json:"fps"`
	Enabled        bool           `json:"enabled"`
	Zone           *Rect          `json:"zone,omitempty"`
	EntryDirection EntryDirection `json:"entry_direction,omitempty"`
	LoopFile       bool           `json:"loop_file,omitempty"` // file sources: restart at end-of-stream

	Confidence     *float32       `json:"confidence,omitempty"`
	IdleInterval   *time.Duration `json:"idle_interval,omitempty"`
	ActiveInterval *time.Duration `json:"active_interval,omitempty"`
	DebounceMisses *int           `json:"debounce_misses,omitempty"`
}

// GlobalConfig holds the detection defaults shared by all cameras
type GlobalConfig struct {
	Confidence       float32       `json:"confidence"`
	IdleInterval     time.Duration `json:"idle_interval"`
	ActiveInterval   time.Duration `json:"active_interval"`
	DebounceMisses   int           `json:"debounce_misses"`
	HistorySize      int           `json:"history_size"`
	HistoryMin       int           `json:"history_min"`
	DirectionMinPx   float32       `json:"direction_min_px"`
	DirectionFrac    float32       `json:"direction_frac"`
	SnapshotInterval time.Duration `json:"snapshot_interval"`
}

// DefaultGlobalConfig returns sensible detection defaults
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		Confidence:       0.25,
		IdleInterval:     time.Second,
		ActiveInterval:   200 * time.Millisecond,
		DebounceMisses:   5,
		HistorySize:      20,
		HistoryMin:       5,
		DirectionMinPx:   20,
		DirectionFrac:    0.05,
		SnapshotInterval: time.Second,
	}
}

// EffectiveConfig is the merged per-camera detection configuration
type EffectiveConfig struct {
	CameraID         string
	Confidence       float32
	IdleInterval     time.Duration
	ActiveInterval   time.Duration
	DebounceMisses   int
	HistorySize      int
	HistoryMin       int
	DirectionMinPx   float32
	DirectionFrac    float32
	SnapshotInterval time.Duration
}

// Merge applies the camera's overrides to the global defaults
func (c *CameraConfig) Merge(global GlobalConfig) EffectiveConfig {
	effective := EffectiveConfig{
		CameraID:         c.ID,
		Confidence:       global.Confidence,
		IdleInterval:     global.IdleInterval,
		ActiveInterval:   global.ActiveInterval,
		DebounceMisses:   global.DebounceMisses,
		HistorySize:      global.HistorySize,
		HistoryMin:       global.HistoryMin,
		DirectionMinPx:   global.DirectionMinPx,
		DirectionFrac:    global.DirectionFrac,
		SnapshotInterval: global.SnapshotInterval,
	}

	if c.Confidence != nil {
		effective.Confidence = *c.Confidence
	}
	if c.IdleInterval != nil {
		effective.IdleInterval = *c.IdleInterval
	}
	if c.ActiveInterval != nil {
		effective.ActiveInterval = *c.ActiveInterval
	}
	if c.DebounceMisses != nil {
		effective.DebounceMisses = *c.DebounceMisses
	}

	return effective
}

// ParseEntryDirection validates a persisted entry-direction value
func ParseEntryDirection(s string) (EntryDirection, error) {
	switch EntryDirection(s) {
	case EntryDirectionNone, EntryDirectionLTR, EntryDirectionRTL:
		return EntryDirection(s), nil
	default:
		return EntryDirectionNone, fmt.Errorf("unknown entry direction %q", s)
	}
}
