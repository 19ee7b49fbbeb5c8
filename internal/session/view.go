package session

import (
	"fmt"

	"github.com/signalsfoundry/displacement-playback/core"
	"github.com/signalsfoundry/displacement-playback/model"
	"github.com/signalsfoundry/displacement-playback/timectrl"
)

// Scrubber describes the day slider: its bounds, current value and the
// validation dates marked on it.
type Scrubber struct {
	Min   int                 `json:"min"`
	Max   int                 `json:"max"`
	Value int                 `json:"value"`
	Marks []core.ScrubberMark `json:"marks"`
}

// View is everything a client needs to render a session at one instant.
type View struct {
	SessionID         string             `json:"session_id"`
	ResultID          string             `json:"result_id"`
	ResultName        string             `json:"result_name,omitempty"`
	ConfigurationID   string             `json:"configuration_id,omitempty"`
	ConfigurationName string             `json:"configuration_name,omitempty"`
	Region            string             `json:"region,omitempty"`
	Status            string             `json:"status"`
	Error             string             `json:"error,omitempty"`
	Playing           bool               `json:"playing"`
	Seq               uint64             `json:"seq"`
	// Generation increases on every load, so views from a replaced
	// playback order before those of its successor.
	Generation        uint64             `json:"generation"`
	DayLabel          string             `json:"day_label,omitempty"`
	Scrubber          Scrubber           `json:"scrubber"`
	Frame             *core.Frame        `json:"frame,omitempty"`
	Map               *core.MapView      `json:"map,omitempty"`
	DataSources       *model.DataSources `json:"data_sources,omitempty"`
	WarningCount      int                `json:"warning_count"`
}

// View resolves the frame for the current day and projects it. A result
// with no rows yields a preview of the configuration instead.
func (s *Session) View() View {
	s.mu.Lock()
	v := View{
		SessionID:    s.id,
		ResultID:     s.resultID,
		Status:       s.status.String(),
		Generation:   s.gen,
		WarningCount: len(s.warnings),
	}
	if s.loadErr != nil {
		v.Error = s.loadErr.Error()
	}
	if s.status != StatusReady {
		s.mu.Unlock()
		return v
	}
	result, cfg, alignment, playback := s.result, s.cfg, s.alignment, s.playback
	s.mu.Unlock()

	pos := playback.Position()
	v.ResultName = result.Name
	v.ConfigurationID = cfg.ID
	v.ConfigurationName = cfg.Name
	v.Region = cfg.Region
	v.DataSources = &cfg.DataSources
	v.Playing = pos.Playing
	v.Seq = pos.Seq
	v.Scrubber = Scrubber{Min: 0, Max: pos.Last(), Value: pos.Index, Marks: alignment.Marks}

	if len(result.Data) == 0 {
		view := core.Project(cfg, nil, alignment, core.ModePreview)
		v.Map = &view
		return v
	}

	frame, err := core.ResolveFrame(cfg, result.Data, pos.Index)
	if err != nil {
		// Position is clamped to the rows, so this only happens if the
		// controller and result disagree on length.
		v.Error = err.Error()
		return v
	}
	s.metrics.IncFramesResolved()
	view := core.Project(cfg, &frame, alignment, core.ModePlayback)
	v.Frame = &frame
	v.Map = &view
	v.DayLabel = DayLabel(pos.Index, rowDate(cfg, frame))
	return v
}

// rowDate is the frame's own date, or the date derived from the
// simulation start when the row carries none.
func rowDate(cfg *model.Configuration, frame core.Frame) string {
	if frame.Date != "" {
		return frame.Date
	}
	start, err := timectrl.ParseDate(cfg.SimPeriod.Date)
	if err != nil {
		return ""
	}
	return timectrl.DateAtIndex(start, frame.Index).Format(timectrl.DateLayout)
}

// DayLabel renders the scrubber caption, e.g. "Day 3: 2023-01-04".
func DayLabel(index int, date string) string {
	return fmt.Sprintf("Day %d: %s", index, timectrl.TruncateToDate(date))
}
