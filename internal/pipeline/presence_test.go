package pipeline

import (
	"testing"
	"time"
)

func testEffectiveConfig() EffectiveConfig {
	return EffectiveConfig{
		CameraID:         "cam1",
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

func TestPresenceStartTransition(t *testing.T) {
	tracker := NewPresenceTracker("cam1", testEffectiveConfig())

	if got := tracker.State(); got != StateIdle {
		t.Fatalf("initial state = %v, want %v", got, StateIdle)
	}

	transition := tracker.Update(true, 100, 100, 600, time.Now())
	if transition != TransitionStart {
		t.Errorf("first detection transition = %v, want TransitionStart", transition)
	}
	if got := tracker.State(); got != StatePresent {
		t.Errorf("state after detection = %v, want %v", got, StatePresent)
	}
}

func TestPresenceDebounce(t *testing.T) {
	tracker := NewPresenceTracker("cam1", testEffectiveConfig())
	now := time.Now()

	tracker.Update(true, 100, 100, 600, now)

	// Four misses in a row must not end the session
	for i := 0; i < 4; i++ {
		transition := tracker.Update(false, 0, 0, 600, now)
		if transition != TransitionNone {
			t.Fatalf("miss %d transition = %v, want TransitionNone", i+1, transition)
		}
		if got := tracker.State(); got != StatePresent {
			t.Fatalf("state after miss %d = %v, want %v", i+1, got, StatePresent)
		}
	}

	// The fifth consecutive miss commits the end
	transition := tracker.Update(false, 0, 0, 600, now)
	if transition != TransitionEnd {
		t.Errorf("fifth miss transition = %v, want TransitionEnd", transition)
	}
	if got := tracker.State(); got != StateIdle {
		t.Errorf("state after debounce = %v, want %v", got, StateIdle)
	}
}

func TestPresenceDetectionResetsMissCount(t *testing.T) {
	tracker := NewPresenceTracker("cam1", testEffectiveConfig())
	now := time.Now()

	tracker.Update(true, 100, 100, 600, now)

	for i := 0; i < 4; i++ {
		tracker.Update(false, 0, 0, 600, now)
	}
	// Recovery hit resets the budget
	if transition := tracker.Update(true, 110, 100, 600, now); transition != TransitionNone {
		t.Fatalf("recovery transition = %v, want TransitionNone", transition)
	}

	for i := 0; i < 4; i++ {
		if transition := tracker.Update(false, 0, 0, 600, now); transition != TransitionNone {
			t.Fatalf("post-recovery miss %d ended the session early", i+1)
		}
	}
	if got := tracker.State(); got != StatePresent {
		t.Errorf("state = %v, want %v", got, StatePresent)
	}
}

func TestPresenceMissesWhileIdleIgnored(t *testing.T) {
	tracker := NewPresenceTracker("cam1", testEffectiveConfig())
	now := time.Now()

	for i := 0; i < 10; i++ {
		if transition := tracker.Update(false, 0, 0, 600, now); transition != TransitionNone {
			t.Fatalf("idle miss produced transition %v", transition)
		}
	}
	if got := tracker.State(); got != StateIdle {
		t.Errorf("state = %v, want %v", got, StateIdle)
	}
}

func TestDirectionLeftToRight(t *testing.T) {
	tracker := NewPresenceTracker("cam1", testEffectiveConfig())
	now := time.Now()

	// Six points moving 300px right across a 600px zone
	for i := 0; i < 6; i++ {
		tracker.Update(true, float32(100+i*60), 200, 600, now)
	}

	if got := tracker.Snapshot().Direction; got != DirectionLeftToRight {
		t.Errorf("direction = %v, want %v", got, DirectionLeftToRight)
	}
}

func TestDirectionRightToLeft(t *testing.T) {
	tracker := NewPresenceTracker("cam1", testEffectiveConfig())
	now := time.Now()

	for i := 0; i < 6; i++ {
		tracker.Update(true, float32(400-i*60), 200, 600, now)
	}

	if got := tracker.Snapshot().Direction; got != DirectionRightToLeft {
		t.Errorf("direction = %v, want %v", got, DirectionRightToLeft)
	}
}

func TestDirectionNeedsMinimumHistory(t *testing.T) {
	tracker := NewPresenceTracker("cam1", testEffectiveConfig())
	now := time.Now()

	// Four points is below the minimum, no matter how far they move
	for i := 0; i < 4; i++ {
		tracker.Update(true, float32(100+i*100), 200, 600, now)
	}

	if got := tracker.Snapshot().Direction; got != DirectionUnknown {
		t.Errorf("direction with short history = %v, want %v", got, DirectionUnknown)
	}
}

func TestDirectionRetainedWhenMovementStalls(t *testing.T) {
	tracker := NewPresenceTracker("cam1", testEffectiveConfig())
	now := time.Now()

	// Clear rightward movement first
	for i := 0; i < 6; i++ {
		tracker.Update(true, float32(100+i*60), 200, 600, now)
	}
	if got := tracker.Snapshot().Direction; got != DirectionLeftToRight {
		t.Fatalf("setup direction = %v, want %v", got, DirectionLeftToRight)
	}

	// Enough stationary points to flush the moving ones out of the window
	for i := 0; i < 25; i++ {
		tracker.Update(true, 400, 200, 600, now)
	}

	if got := tracker.Snapshot().Direction; got != DirectionLeftToRight {
		t.Errorf("direction after stall = %v, want retained %v", got, DirectionLeftToRight)
	}
}

func TestDirectionHistoryBounded(t *testing.T) {
	cfg := testEffectiveConfig()
	tracker := NewPresenceTracker("cam1", cfg)
	now := time.Now()

	for i := 0; i < 50; i++ {
		tracker.Update(true, float32(i), 200, 600, now)
	}

	if got := tracker.Snapshot().HistoryLen; got != cfg.HistorySize {
		t.Errorf("history length = %d, want %d", got, cfg.HistorySize)
	}
}

func TestFinalDirectionClearsState(t *testing.T) {
	tracker := NewPresenceTracker("cam1", testEffectiveConfig())
	now := time.Now()

	for i := 0; i < 6; i++ {
		tracker.Update(true, float32(100+i*60), 200, 600, now)
	}
	for i := 0; i < 5; i++ {
		tracker.Update(false, 0, 0, 600, now)
	}

	if got := tracker.FinalDirection(); got != DirectionLeftToRight {
		t.Errorf("final direction = %v, want %v", got, DirectionLeftToRight)
	}
	snap := tracker.Snapshot()
	if snap.Direction != DirectionUnknown {
		t.Errorf("direction after FinalDirection = %v, want %v", snap.Direction, DirectionUnknown)
	}
	if snap.HistoryLen != 0 {
		t.Errorf("history length after FinalDirection = %d, want 0", snap.HistoryLen)
	}
}

func TestNewSessionStartsClean(t *testing.T) {
	tracker := NewPresenceTracker("cam1", testEffectiveConfig())
	now := time.Now()

	// First session moving right
	for i := 0; i < 6; i++ {
		tracker.Update(true, float32(100+i*60), 200, 600, now)
	}
	for i := 0; i < 5; i++ {
		tracker.Update(false, 0, 0, 600, now)
	}
	tracker.FinalDirection()

	// A new session must not inherit the previous direction or history
	tracker.Update(true, 300, 200, 600, now)
	snap := tracker.Snapshot()
	if snap.Direction != DirectionUnknown {
		t.Errorf("new session direction = %v, want %v", snap.Direction, DirectionUnknown)
	}
	if snap.HistoryLen != 1 {
		t.Errorf("new session history length = %d, want 1", snap.HistoryLen)
	}
}
