package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/signalsfoundry/displacement-playback/model"
)

// columnFor picks the result column carrying a location's count. A column
// named exactly like the location wins. Otherwise the first column (in
// sorted key order) containing the name is used; this substring join is what
// upstream data provides, and it is ambiguous when one location name is
// contained in another. BindColumns reports those cases.
func columnFor(name string, keys []string) (string, bool) {
	if name == "" {
		return "", false
	}
	for _, k := range keys {
		if k == name {
			return k, true
		}
	}
	for _, k := range keys {
		if k != model.DateColumn && strings.Contains(k, name) {
			return k, true
		}
	}
	return "", false
}

// BindColumns maps every location name to the column columnFor selects for
// it, and reports ambiguous and unmatched joins. keys need not be sorted.
func BindColumns(locations []model.Location, keys []string) (map[string]string, []DataWarning) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	binding := make(map[string]string, len(locations))
	claims := make(map[string][]string)
	var warnings []DataWarning

	for _, loc := range locations {
		if _, done := binding[loc.Name]; done {
			continue
		}
		col, ok := columnFor(loc.Name, sorted)
		if !ok {
			warnings = append(warnings, DataWarning{
				Kind:    WarningUnmatchedLocation,
				Subject: loc.Name,
				Detail:  "no result column contains this location name",
			})
			continue
		}
		binding[loc.Name] = col
		claims[col] = append(claims[col], loc.Name)

		if col == loc.Name {
			continue
		}
		if matches := substringMatches(loc.Name, sorted); len(matches) > 1 {
			warnings = append(warnings, DataWarning{
				Kind:    WarningAmbiguousColumn,
				Subject: loc.Name,
				Detail:  fmt.Sprintf("name is contained in columns %s; using %q", strings.Join(matches, ", "), col),
			})
		}
	}

	cols := make([]string, 0, len(claims))
	for col := range claims {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		if owners := claims[col]; len(owners) > 1 {
			warnings = append(warnings, DataWarning{
				Kind:    WarningAmbiguousColumn,
				Subject: col,
				Detail:  fmt.Sprintf("column is claimed by locations %s", strings.Join(owners, ", ")),
			})
		}
	}

	return binding, warnings
}

func substringMatches(name string, keys []string) []string {
	var out []string
	for _, k := range keys {
		if k != model.DateColumn && strings.Contains(k, name) {
			out = append(out, k)
		}
	}
	return out
}
