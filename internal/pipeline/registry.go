package pipeline

import (
	"fmt"
	"log"
	"sort"
	"sync"
)

// cameraEntry bundles the per-camera workers. Each camera owns its own
// source and scheduler goroutines; nothing here is shared across cameras.
type cameraEntry struct {
	cfg       CameraConfig
	source    FrameSource
	scheduler *Scheduler
	running   bool

	// stopDone is non-nil while a stop of this camera is in flight and is
	// closed once its workers have fully exited. A start for the same id
	// waits on it so the old pipeline can never be confused with the new.
	stopDone chan struct{}
}

// Registry manages the set of active cameras. All lifecycle operations are
// serialized under one mutex; the per-camera pipelines themselves never
// contend with each other.
type Registry struct {
	mu      sync.Mutex
	cameras map[string]*cameraEntry

	factory   SourceFactory
	detector  Detector
	bus       *EventBus
	snapshots SnapshotWriter
	global    GlobalConfig
}

// NewRegistry creates an empty camera registry
func NewRegistry(factory SourceFactory, detector Detector, bus *EventBus, snapshots SnapshotWriter, global GlobalConfig) *Registry {
	return &Registry{
		cameras:   make(map[string]*cameraEntry),
		factory:   factory,
		detector:  detector,
		bus:       bus,
		snapshots: snapshots,
		global:    global,
	}
}

// AddCamera registers a camera without starting it
func (r *Registry) AddCamera(cfg CameraConfig) error {
	if cfg.ID == "" {
		return fmt.Errorf("camera id is required")
	}
	if cfg.Source == "" {
		return fmt.Errorf("camera %s: source is required", cfg.ID)
	}
	if cfg.Zone != nil {
		if err := cfg.Zone.Validate(cfg.Width, cfg.Height); err != nil {
			return fmt.Errorf("camera %s: %w", cfg.ID, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.cameras[cfg.ID]; exists {
		return fmt.Errorf("camera %s already registered", cfg.ID)
	}

	r.cameras[cfg.ID] = &cameraEntry{cfg: cfg}
	log.Printf("[Registry] Camera %s registered (source: %s)", cfg.ID, cfg.Source)
	return nil
}

// RemoveCamera stops and unregisters a camera
func (r *Registry) RemoveCamera(id string) error {
	r.mu.Lock()
	entry, ok := r.cameras[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("camera %s not found", id)
	}
	delete(r.cameras, id)
	scheduler, source := entry.scheduler, entry.source
	running := entry.running
	entry.running = false
	entry.scheduler, entry.source = nil, nil
	r.mu.Unlock()

	if running {
		stopWorkers(scheduler, source)
	}
	log.Printf("[Registry] Camera %s removed", id)
	return nil
}

// StartCamera launches the camera's acquisition and detection workers.
// Starting an already running camera is a no-op; a start that lands while
// a stop of the same camera is still in flight waits for the stop to
// finish before bringing up the new pipeline.
func (r *Registry) StartCamera(id string) error {
	r.mu.Lock()
	entry, ok := r.cameras[id]
	for ok && entry.stopDone != nil {
		done := entry.stopDone
		r.mu.Unlock()
		<-done
		r.mu.Lock()
		entry, ok = r.cameras[id]
	}
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("camera %s not found", id)
	}
	defer r.mu.Unlock()

	if entry.running {
		return nil
	}

	eff := entry.cfg.Merge(r.global)
	entry.source = r.factory(entry.cfg)
	entry.scheduler = NewScheduler(entry.cfg, eff, entry.source, r.detector, r.bus, r.snapshots)

	if err := entry.source.Start(); err != nil {
		entry.source = nil
		entry.scheduler = nil
		return fmt.Errorf("starting camera %s: %w", id, err)
	}
	entry.scheduler.Start()
	entry.running = true

	log.Printf("[Registry] Camera %s started", id)
	return nil
}

// StopCamera halts the camera's workers. The camera stays registered.
func (r *Registry) StopCamera(id string) error {
	r.mu.Lock()
	entry, ok := r.cameras[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("camera %s not found", id)
	}
	if !entry.running {
		r.mu.Unlock()
		return nil
	}
	entry.running = false
	scheduler, source := entry.scheduler, entry.source
	entry.scheduler, entry.source = nil, nil
	done := make(chan struct{})
	entry.stopDone = done
	r.mu.Unlock()

	// The workers can take a while to wind down (an in-flight detector
	// call finishes first), so they are stopped outside the lock.
	stopWorkers(scheduler, source)

	r.mu.Lock()
	if entry.stopDone == done {
		entry.stopDone = nil
	}
	r.mu.Unlock()
	close(done)

	log.Printf("[Registry] Camera %s stopped", id)
	return nil
}

func stopWorkers(scheduler *Scheduler, source FrameSource) {
	if scheduler != nil {
		scheduler.Stop()
	}
	if source != nil {
		source.Stop()
	}
}

// StartAll starts every enabled registered camera, logging failures
// instead of aborting, so one bad camera does not block the rest
func (r *Registry) StartAll() {
	for _, id := range r.IDs() {
		r.mu.Lock()
		entry, ok := r.cameras[id]
		enabled := ok && entry.cfg.Enabled
		r.mu.Unlock()
		if !enabled {
			continue
		}
		if err := r.StartCamera(id); err != nil {
			log.Printf("[Registry] Camera %s failed to start: %v", id, err)
		}
	}
}

// Close stops all running cameras
func (r *Registry) Close() {
	for _, id := range r.IDs() {
		r.StopCamera(id)
	}
}

// SetROI updates a camera's detection zone and entry direction. The change
// applies on the camera's next detection tick without restarting it.
func (r *Registry) SetROI(id string, zone Rect, entryDir EntryDirection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cameras[id]
	if !ok {
		return fmt.Errorf("camera %s not found", id)
	}
	if err := zone.Validate(entry.cfg.Width, entry.cfg.Height); err != nil {
		return fmt.Errorf("camera %s: %w", id, err)
	}

	z := zone
	entry.cfg.Zone = &z
	entry.cfg.EntryDirection = entryDir
	if entry.scheduler != nil {
		entry.scheduler.SetZone(&z, entryDir)
	}
	log.Printf("[Registry] Camera %s: zone set to (%d,%d)-(%d,%d) entry=%s",
		id, zone.X1, zone.Y1, zone.X2, zone.Y2, entryDir)
	return nil
}

// ClearROI removes a camera's detection zone; detection falls back to the
// full frame and footfall classification returns unknown
func (r *Registry) ClearROI(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cameras[id]
	if !ok {
		return fmt.Errorf("camera %s not found", id)
	}

	entry.cfg.Zone = nil
	entry.cfg.EntryDirection = EntryDirectionNone
	if entry.scheduler != nil {
		entry.scheduler.SetZone(nil, EntryDirectionNone)
	}
	log.Printf("[Registry] Camera %s: zone cleared", id)
	return nil
}

// CameraStatus is the combined runtime view of one camera
type CameraStatus struct {
	Config   CameraConfig     `json:"config"`
	Running  bool             `json:"running"`
	Presence PresenceSnapshot `json:"presence"`
	Health   SourceHealth     `json:"health"`
}

// Status reports a camera's configuration, presence state and source health
func (r *Registry) Status(id string) (CameraStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cameras[id]
	if !ok {
		return CameraStatus{}, fmt.Errorf("camera %s not found", id)
	}

	status := CameraStatus{
		Config:  entry.cfg,
		Running: entry.running,
		Presence: PresenceSnapshot{
			CameraID: id,
			State:    StateIdle,
		},
		Health: SourceHealth{CameraID: id},
	}
	if entry.scheduler != nil {
		status.Presence = entry.scheduler.Status()
	}
	if entry.source != nil {
		status.Health = entry.source.Health()
	}
	return status, nil
}

// Get returns a camera's configuration
func (r *Registry) Get(id string) (CameraConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cameras[id]
	if !ok {
		return CameraConfig{}, fmt.Errorf("camera %s not found", id)
	}
	return entry.cfg, nil
}

// IDs returns the registered camera ids in stable order
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.cameras))
	for id := range r.cameras {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LatestFrame returns the camera's most recent captured frame. Used by the
// live view endpoints so streaming never opens a second capture process.
func (r *Registry) LatestFrame(id string) (*Frame, error) {
	r.mu.Lock()
	entry, ok := r.cameras[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("camera %s not found", id)
	}
	source := entry.source
	r.mu.Unlock()

	if source == nil {
		return nil, fmt.Errorf("camera %s is not running", id)
	}
	frame, ok := source.Latest()
	if !ok {
		return nil, fmt.Errorf("camera %s has no frame yet", id)
	}
	return frame, nil
}
