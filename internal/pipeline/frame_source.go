package pipeline

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ReconnectConfig controls how a frame source recovers from acquisition
// failures
type ReconnectConfig struct {
	MaxAttempts int           // consecutive failed reconnects before the camera is marked unhealthy
	Delay       time.Duration // initial backoff delay
	MaxDelay    time.Duration // backoff cap
	Warmup      time.Duration // settle time after a reopen before frames count
}

// DefaultReconnectConfig returns the default reconnection policy
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxAttempts: 5,
		Delay:       time.Second,
		MaxDelay:    30 * time.Second,
		Warmup:      500 * time.Millisecond,
	}
}

// backoffDelay is Delay * 2^(attempt-1), capped at MaxDelay
func backoffDelay(attempt int, cfg ReconnectConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := cfg.Delay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}
	return delay
}

// frameSlot is a single-slot latest-wins buffer. Installing a frame
// discards whatever was there; reading never consumes.
type frameSlot struct {
	mu    sync.RWMutex
	frame *Frame
}

func (s *frameSlot) install(f *Frame) {
	s.mu.Lock()
	s.frame = f
	s.mu.Unlock()
}

func (s *frameSlot) latest() (*Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return nil, false
	}
	return s.frame, true
}

// FFmpegSource captures frames from a camera using an ffmpeg subprocess
// decoding the stream to an MJPEG pipe. It handles USB devices (v4l2),
// RTSP/HTTP network streams, still-image HTTP endpoints and video files.
type FFmpegSource struct {
	cfg CameraConfig
	rc  ReconnectConfig

	slot    frameSlot
	seq     atomic.Uint64
	running atomic.Bool
	stopCh  chan struct{}
	stopped sync.Once
	doneCh  chan struct{}

	cmdMu sync.Mutex
	cmd   *exec.Cmd

	healthMu sync.RWMutex
	health   SourceHealth
}

// NewFFmpegSource creates a frame source for the camera. The source does
// nothing until Start is called.
func NewFFmpegSource(cfg CameraConfig, rc ReconnectConfig) *FFmpegSource {
	return &FFmpegSource{
		cfg:    cfg,
		rc:     rc,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		health: SourceHealth{CameraID: cfg.ID, Healthy: true},
	}
}

// NewSource is the SourceFactory used in production wiring
func NewSource(rc ReconnectConfig) SourceFactory {
	return func(cfg CameraConfig) FrameSource {
		return NewFFmpegSource(cfg, rc)
	}
}

// Start begins continuous acquisition on a dedicated goroutine
func (s *FFmpegSource) Start() error {
	if s.running.Swap(true) {
		return fmt.Errorf("frame source for camera %s already started", s.cfg.ID)
	}
	go s.run()
	return nil
}

// Latest returns the newest captured frame without consuming it
func (s *FFmpegSource) Latest() (*Frame, bool) {
	return s.slot.latest()
}

// Stop terminates acquisition and releases the stream handle. Safe to call
// more than once.
func (s *FFmpegSource) Stop() {
	s.stopped.Do(func() {
		close(s.stopCh)
		s.killProcess()
	})
	<-s.doneCh
}

// Health returns a copy of the source's health counters
func (s *FFmpegSource) Health() SourceHealth {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	health := s.health
	health.Running = s.running.Load()
	return health
}

func (s *FFmpegSource) run() {
	defer s.running.Store(false)
	defer close(s.doneCh)

	log.Printf("[FrameSource] Camera %s: acquisition started (source: %s)", s.cfg.ID, s.cfg.Source)

	attempts := 0
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		// Warm up after a reopen so the stream settles before the first read
		if attempts > 0 && s.rc.Warmup > 0 {
			select {
			case <-time.After(s.rc.Warmup):
			case <-s.stopCh:
				return
			}
		}

		gotFrames, err := s.captureOnce()

		select {
		case <-s.stopCh:
			return
		default:
		}

		if err == nil {
			// Clean end-of-stream: only file sources finish, and only when
			// not configured to loop.
			log.Printf("[FrameSource] Camera %s: stream ended", s.cfg.ID)
			return
		}

		s.recordFailure()
		if gotFrames {
			attempts = 0
		}
		attempts++

		if attempts > s.rc.MaxAttempts {
			log.Printf("[FrameSource] Camera %s: giving up after %d reconnect attempts, marking unhealthy",
				s.cfg.ID, s.rc.MaxAttempts)
			s.markUnhealthy()
			return
		}

		delay := backoffDelay(attempts, s.rc)
		log.Printf("[FrameSource] Camera %s: read failed (%v), reconnect %d/%d in %v",
			s.cfg.ID, err, attempts, s.rc.MaxAttempts, delay)
		s.recordReconnect()

		select {
		case <-time.After(delay):
		case <-s.stopCh:
			return
		}
	}
}

// captureOnce runs one acquisition session until the stream ends, errors
// out, or the source is stopped. gotFrames reports whether at least one
// frame arrived, so the caller can reset its failure budget after a
// recovered session.
func (s *FFmpegSource) captureOnce() (gotFrames bool, err error) {
	if s.isHTTPImageEndpoint() {
		return s.captureHTTPImages()
	}
	return s.captureFFmpeg()
}

func (s *FFmpegSource) isHTTPImageEndpoint() bool {
	src := s.cfg.Source
	return (strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")) &&
		(strings.Contains(src, ".jpg") || strings.Contains(src, ".jpeg") || strings.Contains(src, "image"))
}

// captureHTTPImages polls a still-image HTTP endpoint at the configured rate
func (s *FFmpegSource) captureHTTPImages() (bool, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	fps := s.cfg.FPS
	if fps <= 0 {
		fps = 1
	}
	interval := time.Second / time.Duration(fps)
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	got := false
	failures := 0
	for {
		select {
		case <-s.stopCh:
			return got, fmt.Errorf("stopped")
		case <-ticker.C:
			resp, err := client.Get(s.cfg.Source)
			if err != nil {
				failures++
				if failures >= 3 {
					return got, fmt.Errorf("polling %s: %w", s.cfg.Source, err)
				}
				continue
			}

			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				failures++
				if failures >= 3 {
					return got, fmt.Errorf("reading frame body: %w", err)
				}
				continue
			}

			failures = 0
			got = true
			s.installFrame(data)
		}
	}
}

// ffmpegArgs builds the decode command line for the source kind
func (s *FFmpegSource) ffmpegArgs() []string {
	src := s.cfg.Source
	rate := fmt.Sprintf("%d", s.cfg.FPS)

	switch {
	case strings.HasPrefix(src, "rtsp://"):
		return []string{
			"-rtsp_transport", "tcp",
			"-i", src,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", rate,
			"-q:v", "5",
			"-",
		}
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return []string{
			"-i", src,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", rate,
			"-q:v", "5",
			"-",
		}
	case strings.HasPrefix(src, "/dev/"):
		return []string{
			"-f", "v4l2",
			"-video_size", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
			"-framerate", rate,
			"-i", src,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "5",
			"-",
		}
	default:
		// Video file. -re plays at the file's native frame interval instead
		// of decoding as fast as possible.
		args := []string{"-re"}
		if s.cfg.LoopFile {
			args = append(args, "-stream_loop", "-1")
		}
		return append(args,
			"-i", src,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "5",
			"-",
		)
	}
}

func (s *FFmpegSource) captureFFmpeg() (bool, error) {
	cmd := exec.Command("ffmpeg", s.ffmpegArgs()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return false, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return false, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("starting ffmpeg: %w", err)
	}

	s.cmdMu.Lock()
	s.cmd = cmd
	s.cmdMu.Unlock()

	// Drain stderr so ffmpeg never blocks on a full pipe
	go func() {
		io.Copy(io.Discard, stderr)
	}()

	defer func() {
		s.killProcess()
		cmd.Wait()
	}()

	frameBuffer := make([]byte, 0, 1024*1024)
	chunk := make([]byte, 8192)
	got := false

	for {
		select {
		case <-s.stopCh:
			return got, fmt.Errorf("stopped")
		default:
		}

		n, err := stdout.Read(chunk)
		if n > 0 {
			frameBuffer = append(frameBuffer, chunk[:n]...)
			for {
				frame := extractJPEGFrame(&frameBuffer)
				if frame == nil {
					break
				}
				got = true
				s.installFrame(frame)
			}
		}
		if err != nil {
			if err == io.EOF && s.isFileSource() && !s.cfg.LoopFile {
				return got, nil
			}
			return got, fmt.Errorf("reading stream: %w", err)
		}
	}
}

func (s *FFmpegSource) isFileSource() bool {
	src := s.cfg.Source
	return !strings.HasPrefix(src, "rtsp://") &&
		!strings.HasPrefix(src, "http://") &&
		!strings.HasPrefix(src, "https://") &&
		!strings.HasPrefix(src, "/dev/")
}

// installFrame replaces the slot content with a new frame. The previous
// frame is simply dropped; acquisition never waits for a consumer.
func (s *FFmpegSource) installFrame(data []byte) {
	now := time.Now()
	frame := &Frame{
		CameraID:  s.cfg.ID,
		Data:      data,
		Seq:       s.seq.Add(1),
		Timestamp: now,
		Width:     s.cfg.Width,
		Height:    s.cfg.Height,
	}
	s.slot.install(frame)

	s.healthMu.Lock()
	s.health.FramesCaptured++
	s.health.LastFrameTime = now
	s.healthMu.Unlock()
}

func (s *FFmpegSource) killProcess() {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
}

func (s *FFmpegSource) recordFailure() {
	s.healthMu.Lock()
	s.health.ReadFailures++
	s.healthMu.Unlock()
}

func (s *FFmpegSource) recordReconnect() {
	s.healthMu.Lock()
	s.health.Reconnects++
	s.healthMu.Unlock()
}

func (s *FFmpegSource) markUnhealthy() {
	s.healthMu.Lock()
	s.health.Healthy = false
	s.healthMu.Unlock()
}

// extractJPEGFrame pulls one complete JPEG (SOI..EOI) out of the buffer,
// advancing it past the extracted frame. Returns nil when no complete
// frame is buffered yet.
func extractJPEGFrame(buffer *[]byte) []byte {
	if len(*buffer) < 4 {
		return nil
	}

	startIdx := -1
	for i := 0; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD8 {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return nil
	}

	endIdx := -1
	for i := startIdx + 2; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD9 {
			endIdx = i + 2
			break
		}
	}
	if endIdx == -1 {
		return nil
	}

	frame := make([]byte, endIdx-startIdx)
	copy(frame, (*buffer)[startIdx:endIdx])
	*buffer = (*buffer)[endIdx:]

	return frame
}

// Ensure FFmpegSource implements FrameSource
var _ FrameSource = (*FFmpegSource)(nil)
