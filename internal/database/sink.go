package database

import (
	"log"

	"zvision/internal/pipeline"
)

// Sink subscribes the database to the pipeline event bus. Footfall events
// get persisted; presence and snapshot traffic passes through untouched
// since only committed events matter for analytics.
type Sink struct {
	db *Database
}

// NewSink wraps the database as a pipeline event sink
func NewSink(db *Database) *Sink {
	return &Sink{db: db}
}

func (s *Sink) OnFootfall(event *pipeline.FootfallEvent) {
	if err := s.db.SaveFootfallEvent(event); err != nil {
		log.Printf("[Database] Failed to persist event %s: %v", event.ID, err)
	}
}

func (s *Sink) OnPresence(pipeline.PresenceUpdate) {}

func (s *Sink) OnSnapshot(pipeline.SnapshotRecord) {}

var _ pipeline.EventSink = (*Sink)(nil)
