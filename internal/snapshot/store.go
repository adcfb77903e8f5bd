// Package snapshot persists evidence frames captured during presence
// sessions, keeping a bounded number of files per camera.
package snapshot

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"zvision/internal/pipeline"
)

// Store writes JPEG snapshots under baseDir/<cameraID>/ and evicts the
// oldest files once a camera exceeds its limit. Filenames embed the camera
// id and a zero-padded counter, so lexical order is creation order.
type Store struct {
	baseDir      string
	maxPerCamera int

	mu       sync.Mutex
	counters map[string]uint64
}

// NewStore creates the snapshot store rooted at baseDir. Counters resume
// past existing files so a restart never reuses a filename.
func NewStore(baseDir string, maxPerCamera int) (*Store, error) {
	if maxPerCamera < 1 {
		return nil, fmt.Errorf("snapshot limit must be positive, got %d", maxPerCamera)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}

	store := &Store{
		baseDir:      baseDir,
		maxPerCamera: maxPerCamera,
		counters:     make(map[string]uint64),
	}
	if err := store.recoverCounters(); err != nil {
		return nil, err
	}
	return store, nil
}

// Dir returns the store's base directory
func (s *Store) Dir() string { return s.baseDir }

// Capture writes the frame to the camera's snapshot directory and evicts
// the oldest files beyond the per-camera limit. Returns the written path.
func (s *Store) Capture(cameraID string, frame *pipeline.Frame) (string, error) {
	if frame == nil || len(frame.Data) == 0 {
		return "", fmt.Errorf("camera %s: empty frame", cameraID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.baseDir, cameraID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating camera snapshot directory: %w", err)
	}

	s.counters[cameraID]++
	name := fmt.Sprintf("%s_%09d_%s.jpg", cameraID, s.counters[cameraID],
		frame.Timestamp.UTC().Format("20060102T150405"))
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, frame.Data, 0o644); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}

	if err := s.enforceLimit(dir); err != nil {
		log.Printf("[Snapshot] Camera %s: eviction failed: %v", cameraID, err)
	}
	return path, nil
}

// List returns the camera's snapshot paths in creation order, oldest first.
// A camera with no snapshots yields an empty list, not an error.
func (s *Store) List(cameraID string) ([]string, error) {
	dir := filepath.Join(s.baseDir, cameraID)
	names, err := listJPEGs(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// Resolve maps a camera id and bare filename to a path inside the store,
// rejecting names that escape the camera's directory
func (s *Store) Resolve(cameraID, name string) (string, error) {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid snapshot name %q", name)
	}
	path := filepath.Join(s.baseDir, cameraID, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("snapshot %s/%s not found", cameraID, name)
	}
	return path, nil
}

// Sweep re-applies the per-camera limit across every camera directory.
// Run periodically to cover files left behind by crashes.
func (s *Store) Sweep() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("reading snapshot directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := s.enforceLimit(filepath.Join(s.baseDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// RunSweeper sweeps on the given interval until stop is closed
func (s *Store) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.Sweep(); err != nil {
				log.Printf("[Snapshot] Sweep failed: %v", err)
			}
		}
	}
}

// enforceLimit removes the oldest files beyond the limit. Callers hold s.mu.
func (s *Store) enforceLimit(dir string) error {
	names, err := listJPEGs(dir)
	if err != nil {
		return err
	}
	excess := len(names) - s.maxPerCamera
	for i := 0; i < excess; i++ {
		if err := os.Remove(filepath.Join(dir, names[i])); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("evicting snapshot %s: %w", names[i], err)
		}
	}
	return nil
}

// recoverCounters resumes each camera's counter past its newest file
func (s *Store) recoverCounters() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("reading snapshot directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		cameraID := entry.Name()
		names, err := listJPEGs(filepath.Join(s.baseDir, cameraID))
		if err != nil || len(names) == 0 {
			continue
		}
		if n, ok := parseCounter(names[len(names)-1]); ok {
			s.counters[cameraID] = n
		}
	}
	return nil
}

// parseCounter extracts the counter from "<cam>_<counter>_<timestamp>.jpg"
func parseCounter(name string) (uint64, bool) {
	parts := strings.Split(strings.TrimSuffix(name, ".jpg"), "_")
	if len(parts) < 3 {
		return 0, false
	}
	n, err := strconv.ParseUint(parts[len(parts)-2], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func listJPEGs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jpg") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

var _ pipeline.SnapshotWriter = (*Store)(nil)
