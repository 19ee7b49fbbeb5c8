package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/signalsfoundry/displacement-playback/model"
)

func floatPtr(v float64) *float64 { return &v }

func TestMarkerRadius(t *testing.T) {
	cases := []struct {
		name string
		loc  ResolvedLocation
		mode Mode
		want float64
	}{
		{"playback count", ResolvedLocation{ObservedCount: floatPtr(120)}, ModePlayback, 5120},
		{"playback zero", ResolvedLocation{ObservedCount: floatPtr(0)}, ModePlayback, BaseRadius},
		{"playback missing", ResolvedLocation{}, ModePlayback, BaseRadius},
		{"preview population", ResolvedLocation{Location: model.Location{Population: int64Ptr(20000)}}, ModePreview, 7000},
		{"preview missing", ResolvedLocation{}, ModePreview, BaseRadius},
		{"preview ignores count", ResolvedLocation{ObservedCount: floatPtr(999)}, ModePreview, BaseRadius},
	}
	for _, tc := range cases {
		if got := MarkerRadius(tc.loc, tc.mode); got != tc.want {
			t.Fatalf("%s: radius = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCategoryColorAndLabel(t *testing.T) {
	cases := []struct {
		typ   model.LocationType
		color string
		label string
	}{
		{model.LocationConflictZone, ColorConflictZone, "Conflict Zone"},
		{model.LocationTown, ColorTown, "Town"},
		{model.LocationForwardingHub, ColorForwardingHub, "Forwarding Hub"},
		{model.LocationCamp, ColorCamp, "Camp"},
		{"village", ColorUnknown, "Village"},
	}
	for _, tc := range cases {
		if got := CategoryColor(tc.typ); got != tc.color {
			t.Fatalf("CategoryColor(%s) = %q, want %q", tc.typ, got, tc.color)
		}
		if got := TypeLabel(tc.typ); got != tc.label {
			t.Fatalf("TypeLabel(%s) = %q, want %q", tc.typ, got, tc.label)
		}
	}
}

func TestProjectPlaybackFrame(t *testing.T) {
	cfg := scenarioConfig()
	cfg.Routes = append(cfg.Routes, model.Route{From: "C", To: "Nowhere", Distance: 10})
	frame := mustResolve(t, cfg, scenarioRows(), 1)
	validation := Alignment{ByDate: map[string][]ValidationPoint{
		"2023-01-02": {{LocationName: "C", ObservedCount: 25}, {LocationName: "B", ObservedCount: 99}},
	}}

	view := Project(cfg, &frame, validation, ModePlayback)
	if view.Mode != "playback" {
		t.Fatalf("mode = %q", view.Mode)
	}
	if len(view.Markers) != 3 {
		t.Fatalf("markers = %d, want 3", len(view.Markers))
	}

	a, b, c := view.Markers[0], view.Markers[1], view.Markers[2]
	if a.Color != ColorTown || a.Radius != 5080 {
		t.Fatalf("A marker = %+v, want town colour radius 5080", a)
	}
	if a.Popup.InitialPopulation != "20,000" || a.Popup.SimulatedCount != "80" {
		t.Fatalf("A popup = %+v", a.Popup)
	}
	if b.Popup.Validation != nil {
		t.Fatalf("validation shown on non-camp B: %+v", b.Popup)
	}
	if c.Popup.Validation == nil || *c.Popup.Validation != 25 {
		t.Fatalf("camp C validation = %v, want 25", c.Popup.Validation)
	}
	if c.Popup.InitialPopulation != "N/A" {
		t.Fatalf("camp C initial population = %q, want N/A", c.Popup.InitialPopulation)
	}

	if len(view.Segments) != 2 {
		t.Fatalf("segments = %d, want 2 (unresolved endpoint skipped)", len(view.Segments))
	}
	seg := view.Segments[0]
	if seg.Path[0] != a.Position || seg.Path[1] != b.Position {
		t.Fatalf("segment path = %+v", seg.Path)
	}
	if seg.Label != "A to B: 320 km" {
		t.Fatalf("segment label = %q", seg.Label)
	}
	if view.Center != a.Position {
		t.Fatalf("center = %+v, want most populous A %+v", view.Center, a.Position)
	}
}

func TestProjectPreviewUsesConfiguration(t *testing.T) {
	cfg := scenarioConfig()
	view := Project(cfg, nil, Alignment{}, ModePreview)

	if len(view.Markers) != len(cfg.Locations) {
		t.Fatalf("markers = %d", len(view.Markers))
	}
	a := view.Markers[0]
	if a.Color != ColorConflictZone || a.Radius != 7000 {
		t.Fatalf("preview A = %+v, want conflict colour radius 7000", a)
	}
	if a.Popup.SimulatedCount != "" || a.Popup.Validation != nil {
		t.Fatalf("preview popup carries playback fields: %+v", a.Popup)
	}
}

func TestProjectNilConfiguration(t *testing.T) {
	view := Project(nil, nil, Alignment{}, ModePreview)
	if len(view.Markers) != 0 || len(view.Segments) != 0 {
		t.Fatalf("expected empty view, got %+v", view)
	}
}

func TestMapCenter(t *testing.T) {
	if got := MapCenter(nil); got != (LatLng{}) {
		t.Fatalf("MapCenter(nil) = %+v", got)
	}
	locs := []ResolvedLocation{
		{Location: model.Location{Name: "x", Latitude: 1, Longitude: 1}},
		{Location: model.Location{Name: "y", Latitude: 2, Longitude: 2, Population: int64Ptr(5)}},
		{Location: model.Location{Name: "z", Latitude: 3, Longitude: 3, Population: int64Ptr(50)}},
	}
	if got := MapCenter(locs); got != (LatLng{Lat: 3, Lng: 3}) {
		t.Fatalf("MapCenter = %+v, want z", got)
	}
	if got := MapCenter(locs[:1]); got != (LatLng{Lat: 1, Lng: 1}) {
		t.Fatalf("MapCenter without populations = %+v, want first", got)
	}
}

func TestFormatCountRounds(t *testing.T) {
	if got := formatCount(floatPtr(1234.6)); got != "1,235" {
		t.Fatalf("formatCount = %q", got)
	}
	if got := formatCount(nil); got != "N/A" {
		t.Fatalf("formatCount(nil) = %q", got)
	}
	if got := formatPopulation(int64Ptr(0)); got != "N/A" {
		t.Fatalf("formatPopulation(0) = %q", got)
	}
}

// Sessions project from the playback ticker and from RPC callers at the same
// time; run with -race.
func TestProjectConcurrentCallers(t *testing.T) {
	cfg := scenarioConfig()
	frame := mustResolve(t, cfg, scenarioRows(), 0)

	const workers, rounds = 8, 200
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if got := TypeLabel(model.LocationForwardingHub); got != "Forwarding Hub" {
					errs <- fmt.Errorf("TypeLabel = %q", got)
					return
				}
				view := Project(cfg, &frame, Alignment{}, ModePlayback)
				if got := view.Markers[0].Popup.TypeLabel; got != "Conflict Zone" {
					errs <- fmt.Errorf("marker type label = %q", got)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent projection: %v", err)
	}
}
