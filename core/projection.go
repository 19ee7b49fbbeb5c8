package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/signalsfoundry/displacement-playback/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Mode selects between previewing a configuration and playing a result.
type Mode int

const (
	ModePreview Mode = iota
	ModePlayback
)

func (m Mode) String() string {
	if m == ModePlayback {
		return "playback"
	}
	return "preview"
}

const (
	// BaseRadius is the marker radius (metres) for a location with no count.
	BaseRadius = 5000.0
	// playbackScale weights simulated counts more heavily than preview
	// populations so displacement concentrations stand out.
	playbackScale = 1.0
	previewScale  = 0.1

	notAvailable = "N/A"
)

// Marker colours per resolved category.
const (
	ColorConflictZone  = "#E8833A"
	ColorTown          = "#3A7BD5"
	ColorForwardingHub = "#FFFFFF"
	ColorCamp          = "#4CAF50"
	ColorUnknown       = "black"
)

// MarkerPopup is the text shown when a location marker is selected.
type MarkerPopup struct {
	Title             string   `json:"title"`
	TypeLabel         string   `json:"type_label"`
	InitialPopulation string   `json:"initial_population"`
	SimulatedCount    string   `json:"simulated_count,omitempty"`
	Validation        *float64 `json:"validation,omitempty"`
}

// Marker is a sized, coloured circle for one location.
type Marker struct {
	Name     string             `json:"name"`
	Position LatLng             `json:"position"`
	Radius   float64            `json:"radius"`
	Color    string             `json:"color"`
	Type     model.LocationType `json:"type"`
	Popup    MarkerPopup        `json:"popup"`
}

// Segment is a straight line for one route.
type Segment struct {
	From          string    `json:"from"`
	To            string    `json:"to"`
	Path          [2]LatLng `json:"path"`
	DistanceKm    float64   `json:"distance_km"`
	GreatCircleKm float64   `json:"great_circle_km"`
	Label         string    `json:"label"`
}

// MapView is everything a map widget needs to draw one frame.
type MapView struct {
	Mode     string    `json:"mode"`
	Center   LatLng    `json:"center"`
	Markers  []Marker  `json:"markers"`
	Segments []Segment `json:"segments"`
}

// Project turns a frame (or, when frame is nil, the bare configuration) into
// map primitives. validation holds the aligned records; in playback mode
// camps show the record for the frame's date whose location name matches.
func Project(cfg *model.Configuration, frame *Frame, validation Alignment, mode Mode) MapView {
	view := MapView{Mode: mode.String()}
	if cfg == nil {
		return view
	}

	locations := configLocations(cfg)
	var records []ValidationPoint
	if frame != nil {
		locations = frame.Locations
		records = validation.At(frame.Date)
	}

	view.Center = MapCenter(locations)
	view.Markers = make([]Marker, 0, len(locations))
	for _, loc := range locations {
		pos := LatLng{Lat: loc.Latitude, Lng: loc.Longitude}

		marker := Marker{
			Name:     loc.Name,
			Position: pos,
			Radius:   MarkerRadius(loc, mode),
			Color:    CategoryColor(loc.Type),
			Type:     loc.Type,
			Popup: MarkerPopup{
				Title:             loc.Name,
				TypeLabel:         TypeLabel(loc.Type),
				InitialPopulation: formatPopulation(loc.Population),
			},
		}
		if mode == ModePlayback {
			marker.Popup.SimulatedCount = formatCount(loc.ObservedCount)
			if loc.Type == model.LocationCamp {
				if rec, ok := findValidation(records, loc.Name); ok {
					v := rec.ObservedCount
					marker.Popup.Validation = &v
				}
			}
		}
		view.Markers = append(view.Markers, marker)
	}

	view.Segments = make([]Segment, 0, len(cfg.Routes))
	for _, route := range cfg.Routes {
		fromLoc, okFrom := cfg.LocationByName(route.From)
		toLoc, okTo := cfg.LocationByName(route.To)
		if !okFrom || !okTo {
			continue
		}
		from := LatLng{Lat: fromLoc.Latitude, Lng: fromLoc.Longitude}
		to := LatLng{Lat: toLoc.Latitude, Lng: toLoc.Longitude}
		view.Segments = append(view.Segments, Segment{
			From:          route.From,
			To:            route.To,
			Path:          [2]LatLng{from, to},
			DistanceKm:    route.Distance,
			GreatCircleKm: GreatCircleKm(from, to),
			Label:         fmt.Sprintf("%s to %s: %s km", route.From, route.To, humanize.Commaf(route.Distance)),
		})
	}

	return view
}

// MarkerRadius grows with the relevant count: the simulated count in
// playback, the initial population in preview.
func MarkerRadius(loc ResolvedLocation, mode Mode) float64 {
	var count float64
	scale := previewScale
	if mode == ModePlayback {
		scale = playbackScale
		if loc.ObservedCount != nil {
			count = *loc.ObservedCount
		}
	} else if loc.Population != nil {
		count = float64(*loc.Population)
	}
	if count <= 0 {
		return BaseRadius
	}
	return BaseRadius + count*scale
}

// CategoryColor maps a resolved category to its marker colour.
func CategoryColor(t model.LocationType) string {
	switch t {
	case model.LocationConflictZone:
		return ColorConflictZone
	case model.LocationTown:
		return ColorTown
	case model.LocationForwardingHub:
		return ColorForwardingHub
	case model.LocationCamp:
		return ColorCamp
	default:
		return ColorUnknown
	}
}

// TypeLabel renders a category for display: "conflict_zone" -> "Conflict Zone".
// A Caser keeps state between calls, so each call builds its own.
func TypeLabel(t model.LocationType) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(t), "_", " "))
}

// MapCenter returns the position of the most populous location, the first
// location when none has a population, and the origin for an empty list.
func MapCenter(locations []ResolvedLocation) LatLng {
	if len(locations) == 0 {
		return LatLng{}
	}
	best := locations[0]
	var top int64
	for _, loc := range locations {
		if loc.Population != nil && *loc.Population > top {
			top = *loc.Population
			best = loc
		}
	}
	return LatLng{Lat: best.Latitude, Lng: best.Longitude}
}

func configLocations(cfg *model.Configuration) []ResolvedLocation {
	out := make([]ResolvedLocation, 0, len(cfg.Locations))
	for _, loc := range cfg.Locations {
		out = append(out, ResolvedLocation{Location: loc})
	}
	return out
}

func findValidation(records []ValidationPoint, name string) (ValidationPoint, bool) {
	for _, rec := range records {
		if rec.LocationName == name {
			return rec, true
		}
	}
	return ValidationPoint{}, false
}

func formatPopulation(p *int64) string {
	if p == nil || *p == 0 {
		return notAvailable
	}
	return humanize.Comma(*p)
}

func formatCount(c *float64) string {
	if c == nil || *c == 0 {
		return notAvailable
	}
	return humanize.Comma(int64(math.Round(*c)))
}
