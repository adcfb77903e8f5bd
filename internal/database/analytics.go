package database

import (
	"fmt"
	"time"

	"zvision/internal/pipeline"
)

// EventCounts aggregates classified events over a time window
type EventCounts struct {
	CameraID string `json:"camera_id,omitempty"`
	Entries  int    `json:"entries"`
	Exits    int    `json:"exits"`
	Unknown  int    `json:"unknown"`
}

// Occupancy is entries minus exits, floored at zero
func (c EventCounts) Occupancy() int {
	occupancy := c.Entries - c.Exits
	if occupancy < 0 {
		occupancy = 0
	}
	return occupancy
}

// HourlyBucket is one hour of entry/exit activity
type HourlyBucket struct {
	Hour    string `json:"hour"` // "2006-01-02T15:00"
	Entries int    `json:"entries"`
	Exits   int    `json:"exits"`
}

// CountEvents tallies events by type for a camera (empty id means all
// cameras) within [from, to)
func (d *Database) CountEvents(cameraID string, from, to time.Time) (EventCounts, error) {
	query := `SELECT type, COUNT(*) FROM footfall_events WHERE timestamp >= ? AND timestamp < ?`
	args := []any{from, to}
	if cameraID != "" {
		query += " AND camera_id = ?"
		args = append(args, cameraID)
	}
	query += " GROUP BY type"

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return EventCounts{}, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := EventCounts{CameraID: cameraID}
	for rows.Next() {
		var eventType string
		var n int
		if err := rows.Scan(&eventType, &n); err != nil {
			return EventCounts{}, fmt.Errorf("failed to scan count: %w", err)
		}
		switch pipeline.EventType(eventType) {
		case pipeline.EventEntry:
			counts.Entries = n
		case pipeline.EventExit:
			counts.Exits = n
		default:
			counts.Unknown = n
		}
	}
	return counts, rows.Err()
}

// HourlySeries returns per-hour entry/exit counts for a camera (empty id
// means all cameras) within [from, to). Hours with no events are omitted.
func (d *Database) HourlySeries(cameraID string, from, to time.Time) ([]HourlyBucket, error) {
	query := `SELECT strftime('%Y-%m-%dT%H:00', timestamp) AS hour,
		SUM(CASE WHEN type = 'entry' THEN 1 ELSE 0 END),
		SUM(CASE WHEN type = 'exit' THEN 1 ELSE 0 END)
		FROM footfall_events WHERE timestamp >= ? AND timestamp < ?`
	args := []any{from, to}
	if cameraID != "" {
		query += " AND camera_id = ?"
		args = append(args, cameraID)
	}
	query += " GROUP BY hour ORDER BY hour"

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly series: %w", err)
	}
	defer rows.Close()

	var series []HourlyBucket
	for rows.Next() {
		var bucket HourlyBucket
		if err := rows.Scan(&bucket.Hour, &bucket.Entries, &bucket.Exits); err != nil {
			return nil, fmt.Errorf("failed to scan hourly bucket: %w", err)
		}
		series = append(series, bucket)
	}
	return series, rows.Err()
}

// CountsByCamera tallies events per camera within [from, to)
func (d *Database) CountsByCamera(from, to time.Time) ([]EventCounts, error) {
	query := `SELECT camera_id,
		SUM(CASE WHEN type = 'entry' THEN 1 ELSE 0 END),
		SUM(CASE WHEN type = 'exit' THEN 1 ELSE 0 END),
		SUM(CASE WHEN type = 'unknown' THEN 1 ELSE 0 END)
		FROM footfall_events WHERE timestamp >= ? AND timestamp < ?
		GROUP BY camera_id ORDER BY camera_id`

	rows, err := d.db.Query(query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query per-camera counts: %w", err)
	}
	defer rows.Close()

	var all []EventCounts
	for rows.Next() {
		var counts EventCounts
		if err := rows.Scan(&counts.CameraID, &counts.Entries, &counts.Exits, &counts.Unknown); err != nil {
			return nil, fmt.Errorf("failed to scan camera counts: %w", err)
		}
		all = append(all, counts)
	}
	return all, rows.Err()
}
