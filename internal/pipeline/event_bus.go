package pipeline

import (
	"sync"
)

// EventBus fans pipeline output out to registered sinks. Sinks are invoked
// synchronously so events from one camera arrive in transition order;
// implementations that need buffering do it on their side.
type EventBus struct {
	sinks map[*busSubscription]bool
	mu    sync.RWMutex
}

type busSubscription struct {
	cameraFilter string // empty means all cameras
	sink         EventSink
}

// NewEventBus creates an empty event bus
func NewEventBus() *EventBus {
	return &EventBus{
		sinks: make(map[*busSubscription]bool),
	}
}

// Subscribe registers a sink for all cameras. Returns an unsubscribe
// function.
func (b *EventBus) Subscribe(sink EventSink) func() {
	return b.subscribe("", sink)
}

// SubscribeCamera registers a sink for one camera's events only
func (b *EventBus) SubscribeCamera(cameraID string, sink EventSink) func() {
	return b.subscribe(cameraID, sink)
}

func (b *EventBus) subscribe(cameraID string, sink EventSink) func() {
	sub := &busSubscription{
		cameraFilter: cameraID,
		sink:         sink,
	}

	b.mu.Lock()
	b.sinks[sub] = true
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.sinks, sub)
		b.mu.Unlock()
	}
}

// PublishPresence delivers a presence transition to matching sinks
func (b *EventBus) PublishPresence(update PresenceUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.sinks {
		if sub.cameraFilter != "" && sub.cameraFilter != update.CameraID {
			continue
		}
		sub.sink.OnPresence(update)
	}
}

// PublishFootfall delivers a footfall event to matching sinks
func (b *EventBus) PublishFootfall(event *FootfallEvent) {
	if event == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.sinks {
		if sub.cameraFilter != "" && sub.cameraFilter != event.CameraID {
			continue
		}
		sub.sink.OnFootfall(event)
	}
}

// PublishSnapshot delivers a snapshot record to matching sinks
func (b *EventBus) PublishSnapshot(record SnapshotRecord) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.sinks {
		if sub.cameraFilter != "" && sub.cameraFilter != record.CameraID {
			continue
		}
		sub.sink.OnSnapshot(record)
	}
}

// SinkCount returns the number of registered sinks
func (b *EventBus) SinkCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sinks)
}

// Close drops all subscriptions
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.sinks {
		delete(b.sinks, sub)
	}
}
