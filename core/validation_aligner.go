package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/signalsfoundry/displacement-playback/model"
	"github.com/signalsfoundry/displacement-playback/timectrl"
)

const (
	validationSourceSuffix    = ".csv"
	validationSourceDelimiter = "-"
)

// ValidationPoint is one ground-truth count for a location on a date.
type ValidationPoint struct {
	LocationName  string  `json:"location_name"`
	ObservedCount float64 `json:"observed_count"`
}

// ScrubberMark labels a validation date on the playback scrubber. Value is
// the 1-based day offset of Label from the simulation start.
type ScrubberMark struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

// Alignment is validation data re-keyed by calendar date. ByDate and Marks
// always cover the same set of dates.
type Alignment struct {
	ByDate   map[string][]ValidationPoint `json:"by_date"`
	Marks    []ScrubberMark               `json:"marks"`
	Warnings []DataWarning                `json:"warnings,omitempty"`
}

// At returns the validation points recorded for the calendar date of date.
func (a Alignment) At(date string) []ValidationPoint {
	if a.ByDate == nil {
		return nil
	}
	return a.ByDate[timectrl.TruncateToDate(date)]
}

// ValidationSourceLocation extracts the location embedded in a validation
// source name: "idp_B-CampX.csv" yields "CampX". Only the second
// "-"-separated segment is used, so names that themselves contain "-" are
// cut short.
func ValidationSourceLocation(source string) (string, bool) {
	stem := strings.TrimSuffix(source, validationSourceSuffix)
	parts := strings.Split(stem, validationSourceDelimiter)
	if len(parts) < 2 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AlignValidation groups every observation under its calendar date and
// emits one scrubber mark per distinct date, sorted by date. Sources whose
// name carries no location, and observations whose date does not parse,
// are dropped with a warning.
func AlignValidation(records model.Validation, start time.Time) Alignment {
	out := Alignment{ByDate: make(map[string][]ValidationPoint)}

	sources := make([]string, 0, len(records.Camps))
	for source := range records.Camps {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	offsets := make(map[string]int)
	for _, source := range sources {
		name, ok := ValidationSourceLocation(source)
		if !ok {
			out.Warnings = append(out.Warnings, DataWarning{
				Kind:    WarningValidationSource,
				Subject: source,
				Detail:  "source name does not embed a location name",
			})
			continue
		}

		for _, obs := range records.Camps[source] {
			date := timectrl.TruncateToDate(obs.Date)
			if _, known := offsets[date]; !known {
				day, err := timectrl.ParseDate(date)
				if err != nil {
					out.Warnings = append(out.Warnings, DataWarning{
						Kind:    WarningValidationDate,
						Subject: source,
						Detail:  fmt.Sprintf("observation date %q is not a calendar date", obs.Date),
					})
					continue
				}
				offsets[date] = timectrl.DayOffset(day, start)
			}
			out.ByDate[date] = append(out.ByDate[date], ValidationPoint{
				LocationName:  name,
				ObservedCount: obs.RefugeeNumbers,
			})
		}
	}

	dates := make([]string, 0, len(out.ByDate))
	for date := range out.ByDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	out.Marks = make([]ScrubberMark, 0, len(dates))
	for _, date := range dates {
		out.Marks = append(out.Marks, ScrubberMark{Value: offsets[date], Label: date})
	}

	return out
}
