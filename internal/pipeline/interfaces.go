package pipeline

import (
	"context"
)

// FrameSource owns a capture handle to one camera stream and keeps the
// newest decoded frame available in a single-slot buffer.
type FrameSource interface {
	// Start begins continuous acquisition
	Start() error

	// Latest returns the newest available frame without consuming it.
	// Returns false until the first frame has been captured.
	Latest() (*Frame, bool)

	// Stop terminates acquisition and releases the stream handle
	Stop()

	// Health returns a point-in-time copy of the source's health
	Health() SourceHealth
}

// SourceFactory builds a frame source for a camera configuration.
// The registry uses it so tests can substitute scripted sources.
type SourceFactory func(cfg CameraConfig) FrameSource

// Detector is the boundary to the external object-detection model.
// Implementations are stateless per call and may be slow; callers must
// tolerate variable latency without blocking other cameras.
type Detector interface {
	// Detect runs detection on a frame and returns raw detections with
	// confidence at or above the threshold
	Detect(ctx context.Context, frame *Frame, confidence float32) ([]RawDetection, error)

	// IsHealthy returns true if the detector is operational
	IsHealthy() bool
}

// EventSink receives pipeline output. Sinks are called synchronously from
// the owning detection worker, so implementations must not block; delivery
// is an at-least-once attempt per transition, not a durability guarantee.
type EventSink interface {
	// OnPresence is called when a camera commits a presence transition
	OnPresence(update PresenceUpdate)

	// OnFootfall is called with the classified event at session end
	OnFootfall(event *FootfallEvent)

	// OnSnapshot is called after an evidence image is persisted
	OnSnapshot(record SnapshotRecord)
}

// SnapshotWriter persists evidence images with a bounded per-camera
// footprint
type SnapshotWriter interface {
	// Capture writes the frame as an image and returns its storage path
	Capture(cameraID string, frame *Frame) (string, error)
}
