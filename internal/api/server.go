// Package api exposes the HTTP control surface: camera management, zone
// configuration, event queries, analytics and live views.
package api

import (
	"encoding/json"
	"net/http"

	"zvision/internal/auth"
	"zvision/internal/database"
	"zvision/internal/middleware"
	"zvision/internal/pipeline"
	"zvision/internal/snapshot"
	"zvision/internal/stream"
	"zvision/internal/ws"
)

// Server wires the HTTP handlers to the pipeline and storage layers
type Server struct {
	registry      *pipeline.Registry
	db            *database.Database
	snapshots     *snapshot.Store
	hub           *ws.EventHub
	detector      pipeline.Detector
	authenticator *auth.Authenticator
}

// NewServer creates the API server
func NewServer(registry *pipeline.Registry, db *database.Database, snapshots *snapshot.Store,
	hub *ws.EventHub, detector pipeline.Detector, authenticator *auth.Authenticator) *Server {
	return &Server{
		registry:      registry,
		db:            db,
		snapshots:     snapshots,
		hub:           hub,
		detector:      detector,
		authenticator: authenticator,
	}
}

// Routes builds the full route table. Everything under /api except login
// and health requires a valid token when auth is enabled.
func (s *Server) Routes() http.Handler {
	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/cameras", s.handleListCameras)
	protected.HandleFunc("POST /api/cameras", s.handleCreateCamera)
	protected.HandleFunc("GET /api/cameras/{id}", s.handleGetCamera)
	protected.HandleFunc("DELETE /api/cameras/{id}", s.handleDeleteCamera)
	protected.HandleFunc("POST /api/cameras/{id}/start", s.handleStartCamera)
	protected.HandleFunc("POST /api/cameras/{id}/stop", s.handleStopCamera)
	protected.HandleFunc("GET /api/cameras/{id}/status", s.handleCameraStatus)
	protected.HandleFunc("PUT /api/cameras/{id}/roi", s.handleSetROI)
	protected.HandleFunc("DELETE /api/cameras/{id}/roi", s.handleClearROI)
	protected.HandleFunc("GET /api/cameras/{id}/snapshots", s.handleListSnapshots)
	protected.HandleFunc("GET /api/cameras/{id}/snapshots/{name}", s.handleGetSnapshot)
	protected.HandleFunc("GET /api/events", s.handleListEvents)
	protected.HandleFunc("GET /api/analytics/counts", s.handleAnalyticsCounts)
	protected.HandleFunc("GET /api/analytics/hourly", s.handleAnalyticsHourly)
	protected.HandleFunc("GET /api/analytics/summary", s.handleAnalyticsSummary)

	requireAuth := middleware.Auth(s.authenticator)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("/api/", requireAuth(protected))
	mux.Handle("GET /ws/events/{camera_id}", ws.NewHandler(s.hub))
	mux.Handle("GET /video/stream/{camera_id}", stream.NewLiveHandler(s.registry))
	mux.Handle("GET /video/frame/{camera_id}", stream.NewFrameHandler(s.registry))
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
