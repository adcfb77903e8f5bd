package snapshot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"zvision/internal/pipeline"
)

func testFrame(cameraID string, seq uint64) *pipeline.Frame {
	return &pipeline.Frame{
		CameraID:  cameraID,
		Data:      []byte{0xFF, 0xD8, byte(seq), 0xFF, 0xD9},
		Seq:       seq,
		Timestamp: time.Date(2026, 8, 30, 10, 0, int(seq), 0, time.UTC),
	}
}

func TestStoreCaptureAndList(t *testing.T) {
	store, err := NewStore(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	path, err := store.Capture("cam1", testFrame("cam1", 1))
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if !strings.Contains(filepath.Base(path), "cam1") {
		t.Errorf("filename %s does not embed camera id", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	if len(data) != 5 {
		t.Errorf("snapshot size = %d, want 5", len(data))
	}

	paths, err := store.List("cam1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(paths) != 1 || paths[0] != path {
		t.Errorf("List = %v, want [%s]", paths, path)
	}
}

func TestStoreEvictsOldest(t *testing.T) {
	store, err := NewStore(t.TempDir(), 3)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	var all []string
	for seq := uint64(1); seq <= 5; seq++ {
		path, err := store.Capture("cam1", testFrame("cam1", seq))
		if err != nil {
			t.Fatalf("Capture %d failed: %v", seq, err)
		}
		all = append(all, path)
	}

	paths, err := store.List("cam1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("kept %d snapshots, want 3", len(paths))
	}
	// The three newest survive, in creation order
	for i, want := range all[2:] {
		if paths[i] != want {
			t.Errorf("kept snapshot %d = %s, want %s", i, paths[i], want)
		}
	}
	// The two oldest are gone
	for _, evicted := range all[:2] {
		if _, err := os.Stat(evicted); !os.IsNotExist(err) {
			t.Errorf("snapshot %s not evicted", evicted)
		}
	}
}

func TestStoreCamerasIsolated(t *testing.T) {
	store, err := NewStore(t.TempDir(), 2)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	// Filling cam1 past its limit must not touch cam2
	store.Capture("cam2", testFrame("cam2", 1))
	for seq := uint64(1); seq <= 4; seq++ {
		store.Capture("cam1", testFrame("cam1", seq))
	}

	cam1, _ := store.List("cam1")
	cam2, _ := store.List("cam2")
	if len(cam1) != 2 {
		t.Errorf("cam1 kept %d snapshots, want 2", len(cam1))
	}
	if len(cam2) != 1 {
		t.Errorf("cam2 kept %d snapshots, want 1", len(cam2))
	}
}

func TestStoreListUnknownCamera(t *testing.T) {
	store, err := NewStore(t.TempDir(), 3)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	paths, err := store.List("nope")
	if err != nil {
		t.Errorf("List for unknown camera = %v, want nil error", err)
	}
	if len(paths) != 0 {
		t.Errorf("List for unknown camera = %v, want empty", paths)
	}
}

func TestStoreCountersSurviveRestart(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir, 10)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	first, err := store.Capture("cam1", testFrame("cam1", 1))
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	reopened, err := NewStore(dir, 10)
	if err != nil {
		t.Fatalf("reopening store failed: %v", err)
	}
	second, err := reopened.Capture("cam1", testFrame("cam1", 2))
	if err != nil {
		t.Fatalf("Capture after reopen failed: %v", err)
	}
	if first == second {
		t.Errorf("reopened store reused filename %s", first)
	}

	paths, _ := reopened.List("cam1")
	if len(paths) != 2 {
		t.Fatalf("kept %d snapshots after reopen, want 2", len(paths))
	}
	if paths[0] != first || paths[1] != second {
		t.Errorf("order after reopen = %v, want [%s %s]", paths, first, second)
	}
}

func TestStoreResolve(t *testing.T) {
	store, err := NewStore(t.TempDir(), 3)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	path, _ := store.Capture("cam1", testFrame("cam1", 1))
	name := filepath.Base(path)

	resolved, err := store.Resolve("cam1", name)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved != path {
		t.Errorf("Resolve = %s, want %s", resolved, path)
	}

	if _, err := store.Resolve("cam1", "../"+name); err == nil {
		t.Errorf("Resolve accepted a path traversal")
	}
	if _, err := store.Resolve("cam1", "missing.jpg"); err == nil {
		t.Errorf("Resolve succeeded for a missing file")
	}
}

func TestStoreSweep(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, 2)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	// Simulate leftovers from a previous run exceeding the limit
	camDir := filepath.Join(dir, "cam1")
	os.MkdirAll(camDir, 0o755)
	for _, name := range []string{"cam1_000000001_x.jpg", "cam1_000000002_x.jpg", "cam1_000000003_x.jpg", "cam1_000000004_x.jpg"} {
		os.WriteFile(filepath.Join(camDir, name), []byte{0xFF}, 0o644)
	}

	if err := store.Sweep(); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	paths, _ := store.List("cam1")
	if len(paths) != 2 {
		t.Fatalf("kept %d snapshots after sweep, want 2", len(paths))
	}
	if filepath.Base(paths[0]) != "cam1_000000003_x.jpg" {
		t.Errorf("oldest kept = %s, want cam1_000000003_x.jpg", filepath.Base(paths[0]))
	}
}
