package core

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/displacement-playback/model"
)

// ErrIndexOutOfRange indicates a frame was requested for a day index outside
// the result rows. Playback clamps before resolving, so only direct callers
// see it.
var ErrIndexOutOfRange = errors.New("frame index out of range")

// ResolvedLocation is a configuration location as displayed on one simulated
// day. Type holds the per-day category, which may differ from the
// configured one.
type ResolvedLocation struct {
	model.Location
	// ObservedCount is the simulated count for the day; nil when no result
	// column matched the location.
	ObservedCount *float64 `json:"observed_count,omitempty"`
	// Column is the result column ObservedCount was read from.
	Column string `json:"column,omitempty"`
}

// Frame is the render-ready state of every location for one day index.
type Frame struct {
	Index     int                `json:"index"`
	Date      string             `json:"date"`
	Locations []ResolvedLocation `json:"locations"`
}

// ResolveFrame joins the configuration with rows[i]. It returns one resolved
// location per configured location, in configuration order, and never
// mutates cfg or rows.
func ResolveFrame(cfg *model.Configuration, rows []model.DailyRow, i int) (Frame, error) {
	if cfg == nil {
		return Frame{}, fmt.Errorf("resolve frame: configuration is nil")
	}
	if i < 0 || i >= len(rows) {
		return Frame{}, fmt.Errorf("%w: index %d, %d rows", ErrIndexOutOfRange, i, len(rows))
	}

	row := rows[i]
	keys := row.Keys()
	frame := Frame{
		Index:     i,
		Date:      row.Date,
		Locations: make([]ResolvedLocation, 0, len(cfg.Locations)),
	}

	for _, loc := range cfg.Locations {
		resolved := ResolvedLocation{Location: loc}
		resolved.Type = ResolveCategory(cfg, loc, i)
		if col, ok := columnFor(loc.Name, keys); ok {
			count := row.Values[col]
			resolved.ObservedCount = &count
			resolved.Column = col
		}
		frame.Locations = append(frame.Locations, resolved)
	}

	return frame, nil
}

// ResolveCategory returns a location's category on day index i. A conflict
// zone only stays one while its conflict flag is set that day; otherwise it
// is shown as a town. Other categories are unchanged.
func ResolveCategory(cfg *model.Configuration, loc model.Location, i int) model.LocationType {
	if loc.Type != model.LocationConflictZone {
		return loc.Type
	}
	if cfg.ConflictActive(i, loc.Name) {
		return model.LocationConflictZone
	}
	return model.LocationTown
}
