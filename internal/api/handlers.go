package api

import (
	"encoding/json"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"zvision/internal/auth"
	"zvision/internal/database"
	"zvision/internal/pipeline"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, expiresAt, err := s.authenticator.Authenticate(req.Username, req.Password)
	if err == auth.ErrAuthDisabled {
		writeError(w, http.StatusBadRequest, "authentication is disabled")
		return
	}
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"detector_healthy": s.detector.IsHealthy(),
		"cameras":          len(s.registry.IDs()),
		"ws_clients":       s.hub.ClientCount(),
	})
}

func (s *Server) handleListCameras(w http.ResponseWriter, r *http.Request) {
	statuses := make([]pipeline.CameraStatus, 0)
	for _, id := range s.registry.IDs() {
		if status, err := s.registry.Status(id); err == nil {
			statuses = append(statuses, status)
		}
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleCreateCamera(w http.ResponseWriter, r *http.Request) {
	var cfg pipeline.CameraConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.Height <= 0 {
		cfg.Height = 480
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 10
	}

	if err := s.registry.AddCamera(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.db.SaveCamera(&cfg); err != nil {
		s.registry.RemoveCamera(cfg.ID)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if cfg.Enabled {
		if err := s.registry.StartCamera(cfg.ID); err != nil {
			log.Printf("[API] Camera %s added but failed to start: %v", cfg.ID, err)
		}
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleGetCamera(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleDeleteCamera(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.RemoveCamera(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := s.db.DeleteCamera(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartCamera(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.StartCamera(id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleStopCamera(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.StopCamera(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleCameraStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.registry.Status(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type roiRequest struct {
	X1             int    `json:"x1"`
	Y1             int    `json:"y1"`
	X2             int    `json:"x2"`
	Y2             int    `json:"y2"`
	EntryDirection string `json:"entry_direction"`
}

func (s *Server) handleSetROI(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req roiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	entryDir, err := pipeline.ParseEntryDirection(req.EntryDirection)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	zone := pipeline.Rect{X1: req.X1, Y1: req.Y1, X2: req.X2, Y2: req.Y2}
	if err := s.registry.SetROI(id, zone, entryDir); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
		} else {
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	if err := s.db.UpdateROI(id, &zone, entryDir); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleClearROI(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.ClearROI(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := s.db.UpdateROI(id, nil, pipeline.EntryDirectionNone); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	paths, err := s.snapshots.List(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	names := make([]string, len(paths))
	for i, path := range paths {
		names[i] = filepath.Base(path)
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	path, err := s.snapshots.Resolve(r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, path)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	cameraID := r.URL.Query().Get("camera")

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = &parsed
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := s.db.ListFootfallEvents(cameraID, since, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []*pipeline.FootfallEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// timeWindow parses from/to query params, defaulting to the last 24 hours
func timeWindow(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.Add(-24 * time.Hour)
	to := now

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, err
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, err
		}
		to = parsed
	}
	return from, to, nil
}

func (s *Server) handleAnalyticsCounts(w http.ResponseWriter, r *http.Request) {
	from, to, err := timeWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from/to must be RFC3339")
		return
	}

	counts, err := s.db.CountEvents(r.URL.Query().Get("camera"), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"counts":    counts,
		"occupancy": counts.Occupancy(),
		"from":      from,
		"to":        to,
	})
}

func (s *Server) handleAnalyticsHourly(w http.ResponseWriter, r *http.Request) {
	from, to, err := timeWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from/to must be RFC3339")
		return
	}

	series, err := s.db.HourlySeries(r.URL.Query().Get("camera"), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if series == nil {
		series = []database.HourlyBucket{}
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := timeWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from/to must be RFC3339")
		return
	}

	perCamera, err := s.db.CountsByCamera(from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if perCamera == nil {
		perCamera = []database.EventCounts{}
	}

	total := database.EventCounts{}
	for _, counts := range perCamera {
		total.Entries += counts.Entries
		total.Exits += counts.Exits
		total.Unknown += counts.Unknown
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cameras":   perCamera,
		"total":     total,
		"occupancy": total.Occupancy(),
		"from":      from,
		"to":        to,
	})
}
