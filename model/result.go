package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// DateColumn is the reserved row key that carries a row's calendar date.
const DateColumn = "Date"

// Result is a completed simulation as served under /simulation_results/{id}.
// Data is ordered: Data[i] is simulated day i counted from the
// configuration's start date.
type Result struct {
	ID           string     `json:"_id"`
	Name         string     `json:"name,omitempty"`
	SimulationID string     `json:"simulation_id"`
	Data         []DailyRow `json:"data"`
}

// DailyRow is one simulated day of output. Every numeric field of the JSON
// object becomes a column; the Date field is kept separately.
type DailyRow struct {
	Date   string
	Values map[string]float64
}

// Keys returns the row's column names in sorted order.
func (r DailyRow) Keys() []string {
	keys := make([]string, 0, len(r.Values))
	for k := range r.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UnmarshalJSON decodes a flat row object. Non-numeric fields other than
// Date are ignored.
func (r *DailyRow) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}

	r.Date = ""
	r.Values = make(map[string]float64, len(raw))
	for key, val := range raw {
		val = bytes.TrimSpace(val)
		if key == DateColumn {
			if err := json.Unmarshal(val, &r.Date); err != nil {
				return fmt.Errorf("decode row %s: %w", DateColumn, err)
			}
			continue
		}
		if len(val) == 0 || val[0] == '"' || val[0] == '{' || val[0] == '[' || val[0] == 'n' || val[0] == 't' || val[0] == 'f' {
			continue
		}
		var num float64
		if err := json.Unmarshal(val, &num); err != nil {
			return fmt.Errorf("decode row column %q: %w", key, err)
		}
		r.Values[key] = num
	}
	return nil
}

// MarshalJSON writes the row back as a flat object.
func (r DailyRow) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Values)+1)
	for k, v := range r.Values {
		out[k] = v
	}
	out[DateColumn] = r.Date
	return json.Marshal(out)
}
