package core

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/signalsfoundry/displacement-playback/model"
)

// WarningKind classifies a data-quality problem found in upstream inputs.
type WarningKind string

const (
	WarningAmbiguousColumn      WarningKind = "ambiguous_column"
	WarningUnmatchedLocation    WarningKind = "unmatched_location"
	WarningDuplicateLocation    WarningKind = "duplicate_location"
	WarningUnknownRouteEndpoint WarningKind = "unknown_route_endpoint"
	WarningConflictTableLength  WarningKind = "conflict_table_length"
	WarningRowCount             WarningKind = "row_count"
	WarningValidationSource     WarningKind = "validation_source"
	WarningValidationDate       WarningKind = "validation_date"
	WarningValidationLocation   WarningKind = "validation_location"
	WarningStartDate            WarningKind = "start_date"
)

// DataWarning is a non-fatal inconsistency in a configuration, result or
// validation series. The affected element is omitted or passed through; the
// warning exists so the problem is visible instead of silently absorbed.
type DataWarning struct {
	Kind    WarningKind `json:"kind"`
	Subject string      `json:"subject"`
	Detail  string      `json:"detail"`
}

func (w DataWarning) String() string {
	return fmt.Sprintf("%s %q: %s", w.Kind, w.Subject, w.Detail)
}

// CheckInputs reports every structural invariant a configuration/result pair
// violates. It never fails; callers log or surface the warnings.
func CheckInputs(cfg *model.Configuration, result *model.Result) []DataWarning {
	if cfg == nil {
		return nil
	}
	var warnings []DataWarning

	names := make([]string, 0, len(cfg.Locations))
	seen := make(map[string]bool, len(cfg.Locations))
	for _, loc := range cfg.Locations {
		if seen[loc.Name] {
			warnings = append(warnings, DataWarning{
				Kind:    WarningDuplicateLocation,
				Subject: loc.Name,
				Detail:  "location name appears more than once; lookups use the first",
			})
			continue
		}
		seen[loc.Name] = true
		names = append(names, loc.Name)
	}

	for _, route := range cfg.Routes {
		for _, end := range []string{route.From, route.To} {
			if seen[end] {
				continue
			}
			warnings = append(warnings, DataWarning{
				Kind:    WarningUnknownRouteEndpoint,
				Subject: route.From + " -> " + route.To,
				Detail:  withSuggestion(fmt.Sprintf("endpoint %q is not a known location", end), end, names),
			})
		}
	}

	if len(cfg.Conflicts) != cfg.SimPeriod.Length {
		warnings = append(warnings, DataWarning{
			Kind:    WarningConflictTableLength,
			Subject: cfg.ID,
			Detail:  fmt.Sprintf("conflict table has %d days, simulation period has %d", len(cfg.Conflicts), cfg.SimPeriod.Length),
		})
	}

	if result != nil {
		if len(result.Data) != cfg.SimPeriod.Length {
			warnings = append(warnings, DataWarning{
				Kind:    WarningRowCount,
				Subject: result.ID,
				Detail:  fmt.Sprintf("result has %d rows, simulation period has %d", len(result.Data), cfg.SimPeriod.Length),
			})
		}
		if len(result.Data) > 0 {
			_, bindWarnings := BindColumns(cfg.Locations, result.Data[0].Keys())
			warnings = append(warnings, bindWarnings...)
		}
	}

	for source := range cfg.Validation.Camps {
		name, ok := ValidationSourceLocation(source)
		if !ok || seen[name] {
			continue
		}
		warnings = append(warnings, DataWarning{
			Kind:    WarningValidationLocation,
			Subject: source,
			Detail:  withSuggestion(fmt.Sprintf("validation location %q is not a known location", name), name, names),
		})
	}

	return warnings
}

// withSuggestion appends the closest known name when one is near enough to
// be a likely typo.
func withSuggestion(detail, name string, candidates []string) string {
	if best, ok := closestName(name, candidates); ok {
		return fmt.Sprintf("%s (did you mean %q?)", detail, best)
	}
	return detail
}

func closestName(name string, candidates []string) (string, bool) {
	if name == "" {
		return "", false
	}
	limit := len(name) / 3
	if limit < 2 {
		limit = 2
	}
	best, bestDist := "", -1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(strings.ToLower(name), strings.ToLower(c))
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist < 0 || bestDist > limit {
		return "", false
	}
	return best, true
}
