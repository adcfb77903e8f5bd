// Package database persists camera configuration and footfall events in
// SQLite.
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"zvision/internal/pipeline"
)

// Database handles SQLite database operations
type Database struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for concurrent reads while the event sink writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Migrate runs database migrations
func (d *Database) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS cameras (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			source TEXT NOT NULL,
			width INTEGER DEFAULT 640,
			height INTEGER DEFAULT 480,
			fps INTEGER DEFAULT 10,
			enabled INTEGER DEFAULT 1,
			loop_file INTEGER DEFAULT 0,
			roi_x1 INTEGER,
			roi_y1 INTEGER,
			roi_x2 INTEGER,
			roi_y2 INTEGER,
			entry_direction TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS footfall_events (
			id TEXT PRIMARY KEY,
			camera_id TEXT NOT NULL,
			type TEXT NOT NULL,
			direction TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			snapshot_path TEXT,
			FOREIGN KEY (camera_id) REFERENCES cameras(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_footfall_camera_time ON footfall_events(camera_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_footfall_time ON footfall_events(timestamp DESC)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveCamera inserts or updates a camera configuration
func (d *Database) SaveCamera(cfg *pipeline.CameraConfig) error {
	var x1, y1, x2, y2 sql.NullInt64
	if cfg.Zone != nil {
		x1 = sql.NullInt64{Int64: int64(cfg.Zone.X1), Valid: true}
		y1 = sql.NullInt64{Int64: int64(cfg.Zone.Y1), Valid: true}
		x2 = sql.NullInt64{Int64: int64(cfg.Zone.X2), Valid: true}
		y2 = sql.NullInt64{Int64: int64(cfg.Zone.Y2), Valid: true}
	}

	query := `INSERT INTO cameras
		(id, name, source, width, height, fps, enabled, loop_file,
		 roi_x1, roi_y1, roi_x2, roi_y2, entry_direction)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			source = excluded.source,
			width = excluded.width,
			height = excluded.height,
			fps = excluded.fps,
			enabled = excluded.enabled,
			loop_file = excluded.loop_file,
			roi_x1 = excluded.roi_x1,
			roi_y1 = excluded.roi_y1,
			roi_x2 = excluded.roi_x2,
			roi_y2 = excluded.roi_y2,
			entry_direction = excluded.entry_direction`

	_, err := d.db.Exec(query, cfg.ID, cfg.Name, cfg.Source, cfg.Width, cfg.Height, cfg.FPS,
		boolToInt(cfg.Enabled), boolToInt(cfg.LoopFile), x1, y1, x2, y2, string(cfg.EntryDirection))
	if err != nil {
		return fmt.Errorf("failed to save camera: %w", err)
	}
	return nil
}

// GetCamera retrieves a camera by id, or nil when absent
func (d *Database) GetCamera(id string) (*pipeline.CameraConfig, error) {
	query := cameraSelect + ` WHERE id = ?`

	cfg, err := scanCamera(d.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get camera: %w", err)
	}
	return cfg, nil
}

// ListCameras returns all persisted cameras
func (d *Database) ListCameras() ([]*pipeline.CameraConfig, error) {
	rows, err := d.db.Query(cameraSelect + ` ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cameras: %w", err)
	}
	defer rows.Close()

	var cameras []*pipeline.CameraConfig
	for rows.Next() {
		cfg, err := scanCamera(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan camera: %w", err)
		}
		cameras = append(cameras, cfg)
	}
	return cameras, rows.Err()
}

// DeleteCamera deletes a camera and its stored events
func (d *Database) DeleteCamera(id string) error {
	if _, err := d.db.Exec("DELETE FROM footfall_events WHERE camera_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete camera events: %w", err)
	}
	if _, err := d.db.Exec("DELETE FROM cameras WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete camera: %w", err)
	}
	return nil
}

// UpdateROI updates only a camera's zone and entry direction. A nil zone
// clears both.
func (d *Database) UpdateROI(id string, zone *pipeline.Rect, entryDir pipeline.EntryDirection) error {
	var x1, y1, x2, y2 sql.NullInt64
	if zone != nil {
		x1 = sql.NullInt64{Int64: int64(zone.X1), Valid: true}
		y1 = sql.NullInt64{Int64: int64(zone.Y1), Valid: true}
		x2 = sql.NullInt64{Int64: int64(zone.X2), Valid: true}
		y2 = sql.NullInt64{Int64: int64(zone.Y2), Valid: true}
	}

	_, err := d.db.Exec(`UPDATE cameras SET
		roi_x1 = ?, roi_y1 = ?, roi_x2 = ?, roi_y2 = ?, entry_direction = ?
		WHERE id = ?`, x1, y1, x2, y2, string(entryDir), id)
	if err != nil {
		return fmt.Errorf("failed to update camera zone: %w", err)
	}
	return nil
}

const cameraSelect = `SELECT id, name, source, width, height, fps, enabled, loop_file,
	roi_x1, roi_y1, roi_x2, roi_y2, entry_direction FROM cameras`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCamera(row rowScanner) (*pipeline.CameraConfig, error) {
	var cfg pipeline.CameraConfig
	var enabled, loopFile int
	var x1, y1, x2, y2 sql.NullInt64
	var entryDir string

	err := row.Scan(&cfg.ID, &cfg.Name, &cfg.Source, &cfg.Width, &cfg.Height, &cfg.FPS,
		&enabled, &loopFile, &x1, &y1, &x2, &y2, &entryDir)
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1
	cfg.LoopFile = loopFile == 1
	if x1.Valid && y1.Valid && x2.Valid && y2.Valid {
		cfg.Zone = &pipeline.Rect{
			X1: int(x1.Int64), Y1: int(y1.Int64),
			X2: int(x2.Int64), Y2: int(y2.Int64),
		}
	}
	if parsed, err := pipeline.ParseEntryDirection(entryDir); err == nil {
		cfg.EntryDirection = parsed
	}
	return &cfg, nil
}

// SaveFootfallEvent persists a footfall event
func (d *Database) SaveFootfallEvent(event *pipeline.FootfallEvent) error {
	query := `INSERT INTO footfall_events (id, camera_id, type, direction, timestamp, snapshot_path)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`

	_, err := d.db.Exec(query, event.ID, event.CameraID, string(event.Type),
		string(event.Direction), event.Timestamp, event.SnapshotPath)
	if err != nil {
		return fmt.Errorf("failed to save footfall event: %w", err)
	}
	return nil
}

// ListFootfallEvents returns events newest first, optionally filtered by
// camera and start time
func (d *Database) ListFootfallEvents(cameraID string, since *time.Time, limit int) ([]*pipeline.FootfallEvent, error) {
	query := `SELECT id, camera_id, type, direction, timestamp, snapshot_path FROM footfall_events`
	var conditions []string
	var args []any

	if cameraID != "" {
		conditions = append(conditions, "camera_id = ?")
		args = append(args, cameraID)
	}
	if since != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *since)
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY timestamp DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list footfall events: %w", err)
	}
	defer rows.Close()

	var events []*pipeline.FootfallEvent
	for rows.Next() {
		var event pipeline.FootfallEvent
		var eventType, direction string
		var snapshotPath sql.NullString
		if err := rows.Scan(&event.ID, &event.CameraID, &eventType, &direction,
			&event.Timestamp, &snapshotPath); err != nil {
			return nil, fmt.Errorf("failed to scan footfall event: %w", err)
		}
		event.Type = pipeline.EventType(eventType)
		event.Direction = pipeline.Direction(direction)
		event.SnapshotPath = snapshotPath.String
		events = append(events, &event)
	}
	return events, rows.Err()
}

// DeleteOldEvents removes events older than the cutoff, returning the
// number deleted
func (d *Database) DeleteOldEvents(before time.Time) (int64, error) {
	result, err := d.db.Exec("DELETE FROM footfall_events WHERE timestamp < ?", before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}
	return result.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
