// Package stream serves live MJPEG views and still frames over HTTP,
// reading from the capture pipeline instead of opening its own streams.
package stream

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"log"
	"net/http"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"zvision/internal/pipeline"
)

// FrameProvider supplies the latest captured frame and status per camera
type FrameProvider interface {
	LatestFrame(id string) (*pipeline.Frame, error)
	Status(id string) (pipeline.CameraStatus, error)
}

// LiveHandler streams a camera's frames as multipart MJPEG.
// Expected URL format: /video/stream/{camera_id}?overlay=1
type LiveHandler struct {
	provider FrameProvider
}

// NewLiveHandler creates an MJPEG streaming handler
func NewLiveHandler(provider FrameProvider) *LiveHandler {
	return &LiveHandler{provider: provider}
}

func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cameraID := r.PathValue("camera_id")
	if _, err := h.provider.Status(cameraID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	withOverlay := r.URL.Query().Get("overlay") == "1"
	log.Printf("[Stream] Client connected to camera %s (overlay: %v)", cameraID, withOverlay)

	// Poll the pipeline's frame slot and forward only new frames
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-r.Context().Done():
			log.Printf("[Stream] Client disconnected from camera %s", cameraID)
			return
		case <-ticker.C:
			frame, err := h.provider.LatestFrame(cameraID)
			if err != nil || frame.Seq == lastSeq {
				continue
			}
			lastSeq = frame.Seq

			data := frame.Data
			if withOverlay {
				data = h.annotate(cameraID, frame)
			}

			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(data))
			w.Write(data)
			fmt.Fprintf(w, "\r\n")
			flusher.Flush()
		}
	}
}

func (h *LiveHandler) annotate(cameraID string, frame *pipeline.Frame) []byte {
	status, err := h.provider.Status(cameraID)
	if err != nil {
		return frame.Data
	}
	return drawOverlay(frame.Data, status.Config.Zone, overlayLabel(cameraID, status, frame.Timestamp))
}

func overlayLabel(cameraID string, status pipeline.CameraStatus, at time.Time) string {
	return fmt.Sprintf("%s | %s | %s", cameraID, status.Presence.State, at.Format("15:04:05"))
}

// FrameHandler serves a camera's latest frame as a single JPEG.
// Expected URL format: /video/frame/{camera_id}?overlay=1
type FrameHandler struct {
	provider FrameProvider
}

// NewFrameHandler creates a still-frame handler
func NewFrameHandler(provider FrameProvider) *FrameHandler {
	return &FrameHandler{provider: provider}
}

func (h *FrameHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cameraID := r.PathValue("camera_id")
	frame, err := h.provider.LatestFrame(cameraID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	data := frame.Data
	if r.URL.Query().Get("overlay") == "1" {
		if status, err := h.provider.Status(cameraID); err == nil {
			data = drawOverlay(data, status.Config.Zone, overlayLabel(cameraID, status, frame.Timestamp))
		}
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

var (
	zoneColor  = color.RGBA{0, 255, 0, 255}
	labelColor = color.RGBA{255, 255, 255, 255}
)

// drawOverlay draws the detection zone and a status label on a JPEG frame.
// Decode failures fall back to the raw frame.
func drawOverlay(jpegData []byte, zone *pipeline.Rect, label string) []byte {
	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return jpegData
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	if zone != nil {
		drawBox(rgba, zone.X1, zone.Y1, zone.X2-zone.X1, zone.Y2-zone.Y1, zoneColor, 2)
	}
	drawLabel(rgba, 5, 5, label, labelColor)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: 85}); err != nil {
		return jpegData
	}
	return buf.Bytes()
}

// drawBox draws a rectangle outline on the image
func drawBox(img *image.RGBA, x, y, w, h int, c color.RGBA, thickness int) {
	bounds := img.Bounds()

	for t := 0; t < thickness; t++ {
		for i := x; i < x+w && i < bounds.Max.X; i++ {
			if y+t >= 0 && y+t < bounds.Max.Y && i >= 0 {
				img.Set(i, y+t, c)
			}
			if y+h-t >= 0 && y+h-t < bounds.Max.Y && i >= 0 {
				img.Set(i, y+h-t, c)
			}
		}
		for j := y; j < y+h && j < bounds.Max.Y; j++ {
			if x+t >= 0 && x+t < bounds.Max.X && j >= 0 {
				img.Set(x+t, j, c)
			}
			if x+w-t >= 0 && x+w-t < bounds.Max.X && j >= 0 {
				img.Set(x+w-t, j, c)
			}
		}
	}
}

// drawLabel draws text with a dark background box
func drawLabel(img *image.RGBA, x, y int, label string, c color.RGBA) {
	if y < 10 {
		y = 10
	}
	if x < 0 {
		x = 0
	}

	bgColor := color.RGBA{0, 0, 0, 180}
	textWidth := len(label) * 7
	for dy := -2; dy < 12; dy++ {
		for dx := -2; dx < textWidth+2; dx++ {
			px, py := x+dx, y+dy
			if px >= 0 && px < img.Bounds().Max.X && py >= 0 && py < img.Bounds().Max.Y {
				img.Set(px, py, bgColor)
			}
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}
	d.DrawString(label)
}
