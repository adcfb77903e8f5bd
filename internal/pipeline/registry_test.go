package pipeline

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestRegistry() (*Registry, map[string]*stubSource) {
	sources := make(map[string]*stubSource)
	factory := func(cfg CameraConfig) FrameSource {
		s := &stubSource{}
		sources[cfg.ID] = s
		return s
	}

	global := DefaultGlobalConfig()
	global.IdleInterval = 10 * time.Millisecond
	global.ActiveInterval = 5 * time.Millisecond

	detector := &scriptedDetector{healthy: true}
	registry := NewRegistry(factory, detector, NewEventBus(), &fakeSnapshotWriter{}, global)
	return registry, sources
}

func testCamera(id string) CameraConfig {
	return CameraConfig{
		ID: id, Name: "Test " + id, Source: "rtsp://cam.local/" + id,
		Width: 640, Height: 480, FPS: 10, Enabled: true,
	}
}

func TestRegistryAddCamera(t *testing.T) {
	registry, _ := newTestRegistry()

	if err := registry.AddCamera(testCamera("cam1")); err != nil {
		t.Fatalf("AddCamera failed: %v", err)
	}
	if err := registry.AddCamera(testCamera("cam1")); err == nil {
		t.Errorf("duplicate AddCamera succeeded, want error")
	}

	if err := registry.AddCamera(CameraConfig{Source: "rtsp://x"}); err == nil {
		t.Errorf("AddCamera without id succeeded, want error")
	}
	if err := registry.AddCamera(CameraConfig{ID: "cam2"}); err == nil {
		t.Errorf("AddCamera without source succeeded, want error")
	}
}

func TestRegistryAddCameraValidatesZone(t *testing.T) {
	registry, _ := newTestRegistry()

	cfg := testCamera("cam1")
	cfg.Zone = &Rect{X1: 100, Y1: 100, X2: 50, Y2: 200}
	if err := registry.AddCamera(cfg); err == nil {
		t.Errorf("AddCamera with degenerate zone succeeded, want error")
	}

	cfg.Zone = &Rect{X1: 0, Y1: 0, X2: 700, Y2: 400}
	if err := registry.AddCamera(cfg); err == nil {
		t.Errorf("AddCamera with out-of-frame zone succeeded, want error")
	}
}

func TestRegistryLifecycle(t *testing.T) {
	registry, sources := newTestRegistry()

	cfg := testCamera("cam1")
	if err := registry.AddCamera(cfg); err != nil {
		t.Fatalf("AddCamera failed: %v", err)
	}

	status, err := registry.Status("cam1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Running {
		t.Errorf("camera running before StartCamera")
	}

	if err := registry.StartCamera("cam1"); err != nil {
		t.Fatalf("StartCamera failed: %v", err)
	}
	if _, ok := sources["cam1"]; !ok {
		t.Fatalf("factory not invoked on start")
	}

	// Starting again is a no-op
	if err := registry.StartCamera("cam1"); err != nil {
		t.Errorf("second StartCamera failed: %v", err)
	}

	status, _ = registry.Status("cam1")
	if !status.Running {
		t.Errorf("camera not running after StartCamera")
	}

	if err := registry.StopCamera("cam1"); err != nil {
		t.Fatalf("StopCamera failed: %v", err)
	}
	status, _ = registry.Status("cam1")
	if status.Running {
		t.Errorf("camera still running after StopCamera")
	}

	// Camera stays registered after stop
	if _, err := registry.Get("cam1"); err != nil {
		t.Errorf("camera unregistered by StopCamera: %v", err)
	}
}

func TestRegistryRemoveCamera(t *testing.T) {
	registry, _ := newTestRegistry()

	registry.AddCamera(testCamera("cam1"))
	registry.StartCamera("cam1")

	if err := registry.RemoveCamera("cam1"); err != nil {
		t.Fatalf("RemoveCamera failed: %v", err)
	}
	if _, err := registry.Get("cam1"); err == nil {
		t.Errorf("camera still registered after RemoveCamera")
	}
	if err := registry.RemoveCamera("cam1"); err == nil {
		t.Errorf("removing missing camera succeeded, want error")
	}
}

func TestRegistrySetROI(t *testing.T) {
	registry, _ := newTestRegistry()
	registry.AddCamera(testCamera("cam1"))

	zone := Rect{X1: 100, Y1: 50, X2: 500, Y2: 400}
	if err := registry.SetROI("cam1", zone, EntryDirectionLTR); err != nil {
		t.Fatalf("SetROI failed: %v", err)
	}

	cfg, _ := registry.Get("cam1")
	if cfg.Zone == nil || *cfg.Zone != zone {
		t.Errorf("zone = %v, want %v", cfg.Zone, zone)
	}
	if cfg.EntryDirection != EntryDirectionLTR {
		t.Errorf("entry direction = %v, want %v", cfg.EntryDirection, EntryDirectionLTR)
	}

	if err := registry.SetROI("cam1", Rect{X1: 500, Y1: 50, X2: 100, Y2: 400}, EntryDirectionLTR); err == nil {
		t.Errorf("SetROI with degenerate zone succeeded, want error")
	}
	if err := registry.SetROI("missing", zone, EntryDirectionLTR); err == nil {
		t.Errorf("SetROI on missing camera succeeded, want error")
	}

	if err := registry.ClearROI("cam1"); err != nil {
		t.Fatalf("ClearROI failed: %v", err)
	}
	cfg, _ = registry.Get("cam1")
	if cfg.Zone != nil {
		t.Errorf("zone = %v after ClearROI, want nil", cfg.Zone)
	}
	if cfg.EntryDirection != EntryDirectionNone {
		t.Errorf("entry direction = %v after ClearROI, want none", cfg.EntryDirection)
	}
}

func TestRegistryLatestFrame(t *testing.T) {
	registry, sources := newTestRegistry()
	registry.AddCamera(testCamera("cam1"))

	if _, err := registry.LatestFrame("cam1"); err == nil {
		t.Errorf("LatestFrame before start succeeded, want error")
	}

	registry.StartCamera("cam1")
	if _, err := registry.LatestFrame("cam1"); err == nil || !strings.Contains(err.Error(), "no frame") {
		t.Errorf("LatestFrame without frames = %v, want no-frame error", err)
	}

	sources["cam1"].setFrame("cam1", 640)
	frame, err := registry.LatestFrame("cam1")
	if err != nil {
		t.Fatalf("LatestFrame failed: %v", err)
	}
	if frame.CameraID != "cam1" {
		t.Errorf("frame camera = %s, want cam1", frame.CameraID)
	}

	registry.Close()
}

func TestRegistryIDsSorted(t *testing.T) {
	registry, _ := newTestRegistry()
	for _, id := range []string{"cam3", "cam1", "cam2"} {
		registry.AddCamera(testCamera(id))
	}

	ids := registry.IDs()
	want := []string{"cam1", "cam2", "cam3"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids = %v, want %v", ids, want)
			break
		}
	}
}

// countingSource pairs lifecycle calls so leak checks can match them up
type countingSource struct {
	stubSource
	starts atomic.Int32
	stops  atomic.Int32
}

func (s *countingSource) Start() error {
	s.starts.Add(1)
	return nil
}

func (s *countingSource) Stop() {
	s.stops.Add(1)
}

func TestRegistryConcurrentStartStop(t *testing.T) {
	var (
		mu      sync.Mutex
		created []*countingSource
	)
	factory := func(cfg CameraConfig) FrameSource {
		s := &countingSource{}
		mu.Lock()
		created = append(created, s)
		mu.Unlock()
		return s
	}

	global := DefaultGlobalConfig()
	global.IdleInterval = time.Millisecond
	global.ActiveInterval = time.Millisecond

	registry := NewRegistry(factory, &scriptedDetector{healthy: true}, NewEventBus(), &fakeSnapshotWriter{}, global)
	if err := registry.AddCamera(testCamera("cam1")); err != nil {
		t.Fatalf("AddCamera failed: %v", err)
	}

	// Hammer start and stop of the same camera from racing goroutines.
	// Whatever interleaving wins, every pipeline the factory produced must
	// be stopped exactly as often as it was started once the dust settles.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			registry.StartCamera("cam1")
		}()
		go func() {
			defer wg.Done()
			registry.StopCamera("cam1")
		}()
	}
	wg.Wait()
	registry.StopCamera("cam1")

	status, err := registry.Status("cam1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Running {
		t.Errorf("camera reported running after final StopCamera")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, s := range created {
		starts, stops := s.starts.Load(), s.stops.Load()
		if starts != 1 {
			t.Errorf("source %d started %d times, want 1", i, starts)
		}
		if stops != starts {
			t.Errorf("source %d: %d starts but %d stops, workers leaked", i, starts, stops)
		}
	}
}

func TestRegistryStartAllSkipsDisabled(t *testing.T) {
	registry, sources := newTestRegistry()

	enabled := testCamera("cam1")
	disabled := testCamera("cam2")
	disabled.Enabled = false
	registry.AddCamera(enabled)
	registry.AddCamera(disabled)

	registry.StartAll()
	defer registry.Close()

	if _, ok := sources["cam1"]; !ok {
		t.Errorf("enabled camera not started")
	}
	if _, ok := sources["cam2"]; ok {
		t.Errorf("disabled camera started")
	}
}
