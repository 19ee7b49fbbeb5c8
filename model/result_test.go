package model

import (
	"encoding/json"
	"testing"
)

func TestDailyRowUnmarshalSeparatesDate(t *testing.T) {
	var rows []DailyRow
	payload := `[{"pop_A":100,"pop_B":50.5,"Date":"2023-01-01","label":"x","flag":true,"missing":null}]`
	if err := json.Unmarshal([]byte(payload), &rows); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows len = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.Date != "2023-01-01" {
		t.Fatalf("Date = %q, want 2023-01-01", row.Date)
	}
	if len(row.Values) != 2 {
		t.Fatalf("Values = %v, want only the numeric columns", row.Values)
	}
	if row.Values["pop_B"] != 50.5 {
		t.Fatalf("pop_B = %v, want 50.5", row.Values["pop_B"])
	}
	keys := row.Keys()
	if keys[0] != "pop_A" || keys[1] != "pop_B" {
		t.Fatalf("Keys() = %v, want sorted [pop_A pop_B]", keys)
	}
}

func TestDailyRowRejectsNonObject(t *testing.T) {
	var row DailyRow
	if err := json.Unmarshal([]byte(`[1,2]`), &row); err == nil {
		t.Fatalf("expected error decoding array as row")
	}
}

func TestConfigurationConflictActive(t *testing.T) {
	cfg := &Configuration{
		Conflicts: []ConflictDay{{"A": 1}, {"A": 0}},
	}
	if !cfg.ConflictActive(0, "A") {
		t.Fatalf("day 0 should be active for A")
	}
	if cfg.ConflictActive(1, "A") {
		t.Fatalf("day 1 should be inactive for A")
	}
	if cfg.ConflictActive(5, "A") {
		t.Fatalf("days past the table should be inactive")
	}
	if cfg.ConflictActive(0, "B") {
		t.Fatalf("unknown location should be inactive")
	}
}

func TestConfigurationLocationByName(t *testing.T) {
	cfg := &Configuration{Locations: []Location{
		{Name: "A", Latitude: 1},
		{Name: "B", Latitude: 2},
		{Name: "A", Latitude: 3},
	}}
	cases := []struct {
		name     string
		found    bool
		latitude float64
	}{
		{"A", true, 1},
		{"B", true, 2},
		{"C", false, 0},
	}
	for _, tc := range cases {
		loc, ok := cfg.LocationByName(tc.name)
		if ok != tc.found || loc.Latitude != tc.latitude {
			t.Fatalf("LocationByName(%q) = %+v, %v; want latitude %v, %v", tc.name, loc, ok, tc.latitude, tc.found)
		}
	}

	var missing *Configuration
	if _, ok := missing.LocationByName("A"); ok {
		t.Fatalf("nil configuration found a location")
	}
}
