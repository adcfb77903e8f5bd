package pipeline

import "testing"

func personAt(cx, cy, conf float32) RawDetection {
	return RawDetection{
		Class:      PersonClass,
		Confidence: conf,
		BBox:       BBox{X1: cx - 20, Y1: cy - 50, X2: cx + 20, Y2: cy + 50},
	}
}

func TestFilterPersonsConfidenceThreshold(t *testing.T) {
	detections := []RawDetection{personAt(100, 100, 0.2)}

	result := FilterPersons(detections, 0.25, nil, 640)
	if result.Detected {
		t.Errorf("detection below confidence threshold counted")
	}

	// Exactly at the threshold still counts
	result = FilterPersons([]RawDetection{personAt(100, 100, 0.25)}, 0.25, nil, 640)
	if !result.Detected {
		t.Errorf("detection at confidence threshold dropped")
	}
}

func TestFilterPersonsClassFilter(t *testing.T) {
	detections := []RawDetection{
		{Class: "car", Confidence: 0.9, BBox: BBox{X1: 80, Y1: 50, X2: 120, Y2: 150}},
		{Class: "dog", Confidence: 0.8, BBox: BBox{X1: 200, Y1: 50, X2: 260, Y2: 150}},
	}

	result := FilterPersons(detections, 0.25, nil, 640)
	if result.Detected {
		t.Errorf("non-person detections counted as presence")
	}
}

func TestFilterPersonsZoneInclusiveBounds(t *testing.T) {
	zone := &Rect{X1: 100, Y1: 100, X2: 300, Y2: 300}

	tests := []struct {
		name string
		cx   float32
		cy   float32
		want bool
	}{
		{"inside", 200, 200, true},
		{"on left edge", 100, 200, true},
		{"on right edge", 300, 200, true},
		{"on corner", 100, 100, true},
		{"left of zone", 99, 200, false},
		{"below zone", 200, 301, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FilterPersons([]RawDetection{personAt(tt.cx, tt.cy, 0.9)}, 0.25, zone, 640)
			if result.Detected != tt.want {
				t.Errorf("centroid (%v,%v) detected = %v, want %v", tt.cx, tt.cy, result.Detected, tt.want)
			}
		})
	}
}

func TestFilterPersonsNoZoneUsesFullFrame(t *testing.T) {
	result := FilterPersons([]RawDetection{personAt(600, 50, 0.9)}, 0.25, nil, 640)
	if !result.Detected {
		t.Fatalf("detection dropped with no zone configured")
	}
	if result.ZoneWidth != 640 {
		t.Errorf("zone width = %d, want frame width 640", result.ZoneWidth)
	}
}

func TestFilterPersonsZoneWidth(t *testing.T) {
	zone := &Rect{X1: 100, Y1: 0, X2: 500, Y2: 400}
	result := FilterPersons([]RawDetection{personAt(200, 200, 0.9)}, 0.25, zone, 640)
	if !result.Detected {
		t.Fatalf("in-zone detection dropped")
	}
	if result.ZoneWidth != 400 {
		t.Errorf("zone width = %d, want 400", result.ZoneWidth)
	}
	if result.CenterX != 200 || result.CenterY != 200 {
		t.Errorf("centroid = (%v,%v), want (200,200)", result.CenterX, result.CenterY)
	}
}

func TestClassifyFootfall(t *testing.T) {
	tests := []struct {
		name      string
		entry     EntryDirection
		direction Direction
		want      EventType
	}{
		{"ltr entry, moving right", EntryDirectionLTR, DirectionLeftToRight, EventEntry},
		{"ltr entry, moving left", EntryDirectionLTR, DirectionRightToLeft, EventExit},
		{"ltr entry, unknown motion", EntryDirectionLTR, DirectionUnknown, EventUnknown},
		{"rtl entry, moving left", EntryDirectionRTL, DirectionRightToLeft, EventEntry},
		{"rtl entry, moving right", EntryDirectionRTL, DirectionLeftToRight, EventExit},
		{"rtl entry, unknown motion", EntryDirectionRTL, DirectionUnknown, EventUnknown},
		{"no entry config, moving right", EntryDirectionNone, DirectionLeftToRight, EventUnknown},
		{"no entry config, unknown motion", EntryDirectionNone, DirectionUnknown, EventUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyFootfall(tt.entry, tt.direction); got != tt.want {
				t.Errorf("ClassifyFootfall(%q, %q) = %v, want %v", tt.entry, tt.direction, got, tt.want)
			}
		})
	}
}

// Swapping the entry direction must flip every determinate classification
func TestClassifyFootfallSymmetry(t *testing.T) {
	for _, direction := range []Direction{DirectionLeftToRight, DirectionRightToLeft} {
		ltr := ClassifyFootfall(EntryDirectionLTR, direction)
		rtl := ClassifyFootfall(EntryDirectionRTL, direction)
		if ltr == rtl {
			t.Errorf("direction %v: LTR and RTL entry both classify as %v", direction, ltr)
		}
	}
}
