package pipeline

// PersonClass is the detector class name for a person
const PersonClass = "person"

// FilterResult is the outcome of applying the zone filter to one tick's
// raw detections
type FilterResult struct {
	Detected  bool
	CenterX   float32
	CenterY   float32
	ZoneWidth int // ROI width if a zone is set, otherwise the frame width
}

// FilterPersons narrows raw detections to qualifying persons: class must be
// person, confidence at or above the threshold, and - when a zone is
// configured - the bounding-box center must fall inside it (inclusive).
// With no zone the whole frame qualifies. The first qualifying detection
// supplies the centroid.
func FilterPersons(detections []RawDetection, confidence float32, zone *Rect, frameWidth int) FilterResult {
	result := FilterResult{ZoneWidth: frameWidth}
	if zone != nil {
		result.ZoneWidth = zone.Width()
	}

	for _, det := range detections {
		if det.Class != PersonClass || det.Confidence < confidence {
			continue
		}

		cx, cy := det.BBox.CenterX(), det.BBox.CenterY()
		if zone != nil && !zone.Contains(cx, cy) {
			continue
		}

		result.Detected = true
		result.CenterX = cx
		result.CenterY = cy
		return result
	}

	return result
}

// ClassifyFootfall maps an inferred direction and the camera's configured
// entry direction to a domain event type. The mapping is total: every
// combination yields exactly one outcome, and swapping the entry direction
// swaps entry and exit.
func ClassifyFootfall(entry EntryDirection, direction Direction) EventType {
	if entry == EntryDirectionNone || direction == DirectionUnknown {
		return EventUnknown
	}

	entering := (direction == DirectionLeftToRight && entry == EntryDirectionLTR) ||
		(direction == DirectionRightToLeft && entry == EntryDirectionRTL)
	if entering {
		return EventEntry
	}
	return EventExit
}
