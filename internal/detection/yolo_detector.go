// Package detection talks to the external YOLO inference service over HTTP
package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"zvision/internal/pipeline"
)

// YOLODetector sends frames to the inference service and translates its
// responses into pipeline detections. One instance is shared by every
// camera; the HTTP client handles concurrent requests.
type YOLODetector struct {
	endpoint string
	client   *http.Client

	mu          sync.RWMutex
	enabled     bool
	healthCheck time.Time
}

// wireDetection is one detection as the inference service reports it
type wireDetection struct {
	Class      string    `json:"class"`
	Confidence float32   `json:"confidence"`
	BBox       []float32 `json:"bbox"` // [x1, y1, x2, y2]
}

// wireResult is the inference service's detection response
type wireResult struct {
	Detections      []wireDetection `json:"detections"`
	Count           int             `json:"count"`
	InferenceTimeMs float32         `json:"inference_time_ms"`
	Device          string          `json:"device"`
}

// healthResponse is the inference service's health check response
type healthResponse struct {
	Status      string `json:"status"`
	Device      string `json:"device"`
	ModelLoaded bool   `json:"model_loaded"`
}

// NewYOLODetector creates a detector client for the given service endpoint
func NewYOLODetector(endpoint string) *YOLODetector {
	return &YOLODetector{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 15 * time.Second, // GPU inference can be slow on cold start
		},
		enabled: true,
	}
}

// IsHealthy checks whether the inference service is reachable and has its
// model loaded. Positive results are cached for 30 seconds.
func (yd *YOLODetector) IsHealthy() bool {
	yd.mu.RLock()
	if yd.enabled && time.Since(yd.healthCheck) < 30*time.Second {
		yd.mu.RUnlock()
		return true
	}
	yd.mu.RUnlock()

	resp, err := yd.client.Get(yd.endpoint + "/health")
	if err != nil {
		yd.setEnabled(false)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var health healthResponse
		if err := json.NewDecoder(resp.Body).Decode(&health); err == nil && health.ModelLoaded {
			yd.mu.Lock()
			yd.enabled = true
			yd.healthCheck = time.Now()
			yd.mu.Unlock()
			return true
		}
	}

	yd.setEnabled(false)
	return false
}

// Endpoint returns the configured service endpoint
func (yd *YOLODetector) Endpoint() string { return yd.endpoint }

func (yd *YOLODetector) setEnabled(enabled bool) {
	yd.mu.Lock()
	yd.enabled = enabled
	yd.mu.Unlock()
}

// Detect uploads the frame and returns the reported detections. The
// confidence threshold is forwarded so the service can prune server-side.
func (yd *YOLODetector) Detect(ctx context.Context, frame *pipeline.Frame, confidence float32) ([]pipeline.RawDetection, error) {
	if frame == nil || len(frame.Data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fw, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, err
	}
	fw.Write(frame.Data)
	writer.WriteField("conf_threshold", fmt.Sprintf("%.3f", confidence))
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, yd.endpoint+"/detect", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := yd.client.Do(req)
	if err != nil {
		yd.setEnabled(false)
		return nil, fmt.Errorf("calling inference service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference service returned %d: %s", resp.StatusCode, msg)
	}

	var result wireResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding inference response: %w", err)
	}

	detections := make([]pipeline.RawDetection, 0, len(result.Detections))
	for _, det := range result.Detections {
		if len(det.BBox) != 4 {
			continue
		}
		detections = append(detections, pipeline.RawDetection{
			Class:      det.Class,
			Confidence: det.Confidence,
			BBox: pipeline.BBox{
				X1: det.BBox[0], Y1: det.BBox[1],
				X2: det.BBox[2], Y2: det.BBox[3],
			},
		})
	}
	return detections, nil
}

var _ pipeline.Detector = (*YOLODetector)(nil)
