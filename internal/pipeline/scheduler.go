package pipeline

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheduler runs the detection loop for a single camera. Each tick it
// grabs the latest frame, runs the detector, updates presence, and
// publishes events. The cadence adapts to presence state: a relaxed
// interval while the zone is empty, a tight one while someone is inside.
type Scheduler struct {
	cameraID string
	cfg      EffectiveConfig

	source    FrameSource
	detector  Detector
	tracker   *PresenceTracker
	bus       *EventBus
	snapshots SnapshotWriter

	mu       sync.RWMutex
	zone     *Rect
	entryDir EntryDirection

	lastSnapshot     time.Time
	lastSnapshotPath string

	stopCh  chan struct{}
	stopped sync.Once
	doneCh  chan struct{}
}

// NewScheduler creates a detection scheduler for one camera. It does not
// start ticking until Start is called.
func NewScheduler(cfg CameraConfig, eff EffectiveConfig, source FrameSource, detector Detector, bus *EventBus, snapshots SnapshotWriter) *Scheduler {
	return &Scheduler{
		cameraID:  cfg.ID,
		cfg:       eff,
		source:    source,
		detector:  detector,
		tracker:   NewPresenceTracker(cfg.ID, eff),
		bus:       bus,
		snapshots: snapshots,
		zone:      cfg.Zone,
		entryDir:  cfg.EntryDirection,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the tick loop on its own goroutine
func (sc *Scheduler) Start() {
	go sc.run()
}

// Stop terminates the tick loop and waits for it to exit
func (sc *Scheduler) Stop() {
	sc.stopped.Do(func() {
		close(sc.stopCh)
	})
	<-sc.doneCh
}

// SetZone updates the detection zone and entry direction. Takes effect on
// the next tick.
func (sc *Scheduler) SetZone(zone *Rect, entryDir EntryDirection) {
	sc.mu.Lock()
	sc.zone = zone
	sc.entryDir = entryDir
	sc.mu.Unlock()
}

// Zone returns the current detection zone and entry direction
func (sc *Scheduler) Zone() (*Rect, EntryDirection) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.zone, sc.entryDir
}

// Status returns the tracker's current presence snapshot
func (sc *Scheduler) Status() PresenceSnapshot {
	return sc.tracker.Snapshot()
}

// noFrameRetry is the wait before re-checking a source that has not yet
// produced a frame, much shorter than either detection interval
const noFrameRetry = 100 * time.Millisecond

func (sc *Scheduler) run() {
	defer close(sc.doneCh)

	for {
		// Interval is re-evaluated every tick so a presence change shifts
		// cadence immediately.
		interval := sc.cfg.IdleInterval
		if sc.tracker.State() == StatePresent {
			interval = sc.cfg.ActiveInterval
		}

		select {
		case <-sc.stopCh:
			return
		case <-time.After(interval):
		}

		for !sc.tick() {
			select {
			case <-sc.stopCh:
				return
			case <-time.After(noFrameRetry):
			}
		}
	}
}

// tick runs one detection pass. It reports false when the source had no
// frame yet, so the loop retries shortly instead of sleeping a full
// interval.
func (sc *Scheduler) tick() bool {
	frame, ok := sc.source.Latest()
	if !ok {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	detections, err := sc.detector.Detect(ctx, frame, sc.cfg.Confidence)
	cancel()
	if err != nil {
		// A failed inference counts as a no-detection tick so a flaky
		// detector degrades into debounced absence instead of a stuck state.
		log.Printf("[Scheduler] Camera %s: detection failed: %v", sc.cameraID, err)
		detections = nil
	}

	sc.mu.RLock()
	zone := sc.zone
	entryDir := sc.entryDir
	sc.mu.RUnlock()

	result := FilterPersons(detections, sc.cfg.Confidence, zone, frame.Width)
	now := frame.Timestamp

	transition := sc.tracker.Update(result.Detected, result.CenterX, result.CenterY, result.ZoneWidth, now)

	switch transition {
	case TransitionStart:
		log.Printf("[Scheduler] Camera %s: presence started", sc.cameraID)
		sc.captureSnapshot(frame, now)
		sc.bus.PublishPresence(PresenceUpdate{CameraID: sc.cameraID, State: StatePresent, Timestamp: now})

	case TransitionEnd:
		direction := sc.tracker.FinalDirection()
		eventType := ClassifyFootfall(entryDir, direction)

		// Final evidence image for the session that just ended
		sc.captureSnapshot(frame, now)

		sc.mu.RLock()
		snapshotPath := sc.lastSnapshotPath
		sc.mu.RUnlock()

		event := &FootfallEvent{
			ID:           uuid.New().String(),
			CameraID:     sc.cameraID,
			Type:         eventType,
			Direction:    direction,
			Timestamp:    now,
			SnapshotPath: snapshotPath,
		}
		log.Printf("[Scheduler] Camera %s: footfall %s (direction: %s)", sc.cameraID, eventType, direction)
		sc.bus.PublishFootfall(event)
		sc.bus.PublishPresence(PresenceUpdate{CameraID: sc.cameraID, State: StateIdle, Timestamp: now})

	default:
		// Periodic snapshots while the zone stays occupied
		if sc.tracker.State() == StatePresent && result.Detected {
			sc.mu.RLock()
			due := now.Sub(sc.lastSnapshot) >= sc.cfg.SnapshotInterval
			sc.mu.RUnlock()
			if due {
				sc.captureSnapshot(frame, now)
			}
		}
	}

	return true
}

func (sc *Scheduler) captureSnapshot(frame *Frame, now time.Time) {
	if sc.snapshots == nil {
		return
	}
	path, err := sc.snapshots.Capture(sc.cameraID, frame)
	if err != nil {
		log.Printf("[Scheduler] Camera %s: snapshot failed: %v", sc.cameraID, err)
		return
	}

	sc.mu.Lock()
	sc.lastSnapshot = now
	sc.lastSnapshotPath = path
	sc.mu.Unlock()

	sc.bus.PublishSnapshot(SnapshotRecord{
		CameraID:  sc.cameraID,
		Path:      path,
		Timestamp: now,
		Seq:       frame.Seq,
	})
}
