package pipeline

import (
	"sync"
	"time"
)

// Transition is the outcome of one presence-machine update
type Transition int

const (
	// TransitionNone - no committed state change this tick
	TransitionNone Transition = iota
	// TransitionStart - IDLE → PRESENT committed
	TransitionStart
	// TransitionEnd - PRESENT → IDLE committed after the debounce ran out
	TransitionEnd
)

type centroid struct {
	x, y float32
	at   time.Time
}

// PresenceTracker is the debounced per-camera presence state machine with
// centroid-history direction inference. It is written only by the camera's
// detection worker; Snapshot gives other goroutines a consistent copy.
type PresenceTracker struct {
	cameraID string
	cfg      EffectiveConfig

	mu            sync.RWMutex
	state         PresenceState
	missCount     int
	direction     Direction
	history       []centroid
	lastDetection time.Time
}

// NewPresenceTracker creates a tracker in the IDLE state
func NewPresenceTracker(cameraID string, cfg EffectiveConfig) *PresenceTracker {
	return &PresenceTracker{
		cameraID: cameraID,
		cfg:      cfg,
		state:    StateIdle,
	}
}

// Update feeds one tick's observation into the machine. detected reports
// whether a qualifying person was seen; cx/cy is its centroid (ignored
// when detected is false). zoneWidth is the width in pixels of the active
// zone (the ROI if set, otherwise the full frame) and scales the direction
// threshold so inference stays resolution-independent.
func (t *PresenceTracker) Update(detected bool, cx, cy float32, zoneWidth int, now time.Time) Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	if detected {
		t.missCount = 0
		t.lastDetection = now

		if t.state == StateIdle {
			t.state = StatePresent
			t.history = t.history[:0]
			t.direction = DirectionUnknown
			t.appendCentroid(cx, cy, now)
			return TransitionStart
		}

		t.appendCentroid(cx, cy, now)
		t.updateDirection(zoneWidth)
		return TransitionNone
	}

	if t.state != StatePresent {
		return TransitionNone
	}

	// Anti-flicker: a person must stay missing for the full debounce run
	// before the session ends.
	t.missCount++
	if t.missCount < t.cfg.DebounceMisses {
		return TransitionNone
	}

	t.state = StateIdle
	t.missCount = 0
	return TransitionEnd
}

// FinalDirection returns the direction committed for the session that just
// ended and clears tracking state. Call only after Update returned
// TransitionEnd, before the next Update.
func (t *PresenceTracker) FinalDirection() Direction {
	t.mu.Lock()
	defer t.mu.Unlock()

	dir := t.direction
	t.direction = DirectionUnknown
	t.history = t.history[:0]
	return dir
}

// State returns the current committed state
func (t *PresenceTracker) State() PresenceState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Snapshot returns a consistent copy of the tracker state
func (t *PresenceTracker) Snapshot() PresenceSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return PresenceSnapshot{
		CameraID:      t.cameraID,
		State:         t.state,
		Direction:     t.direction,
		MissCount:     t.missCount,
		HistoryLen:    len(t.history),
		LastDetection: t.lastDetection,
	}
}

func (t *PresenceTracker) appendCentroid(cx, cy float32, now time.Time) {
	t.history = append(t.history, centroid{x: cx, y: cy, at: now})
	if len(t.history) > t.cfg.HistorySize {
		t.history = t.history[len(t.history)-t.cfg.HistorySize:]
	}
}

// updateDirection compares the newest centroid against the oldest retained
// one. A single two-point comparison, not a fitted trend: cheap, and good
// enough for a person crossing a doorway zone. Sub-threshold movement keeps
// the previous direction so a momentary pause never erases a confident
// reading.
func (t *PresenceTracker) updateDirection(zoneWidth int) {
	if len(t.history) < t.cfg.HistoryMin {
		return
	}

	oldest := t.history[0].x
	newest := t.history[len(t.history)-1].x
	delta := newest - oldest

	threshold := t.cfg.DirectionFrac * float32(zoneWidth)
	if threshold < t.cfg.DirectionMinPx {
		threshold = t.cfg.DirectionMinPx
	}

	switch {
	case delta > threshold:
		t.direction = DirectionLeftToRight
	case delta < -threshold:
		t.direction = DirectionRightToLeft
	}
}
