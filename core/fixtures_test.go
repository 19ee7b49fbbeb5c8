package core

import (
	"testing"
	"time"

	"github.com/signalsfoundry/displacement-playback/model"
)

func int64Ptr(v int64) *int64 { return &v }

// scenarioConfig is the three-location, two-day configuration used across
// the core tests: A is a conflict zone active only on day 0.
func scenarioConfig() *model.Configuration {
	return &model.Configuration{
		ID:        "cfg-1",
		Region:    "Ethiopia",
		SimPeriod: model.SimPeriod{Date: "2023-01-01", Length: 2},
		Locations: []model.Location{
			{Name: "A", Latitude: 9.0, Longitude: 38.7, Type: model.LocationConflictZone, Population: int64Ptr(20000)},
			{Name: "B", Latitude: 11.6, Longitude: 37.4, Type: model.LocationTown, Population: int64Ptr(5000)},
			{Name: "C", Latitude: 13.5, Longitude: 39.5, Type: model.LocationCamp},
		},
		Routes: []model.Route{
			{From: "A", To: "B", Distance: 320},
			{From: "B", To: "C", Distance: 250},
		},
		Conflicts: []model.ConflictDay{{"A": 1}, {"A": 0}},
	}
}

func scenarioRows() []model.DailyRow {
	return []model.DailyRow{
		{Date: "2023-01-01", Values: map[string]float64{"pop_A": 100, "pop_B": 50, "pop_C": 10}},
		{Date: "2023-01-02", Values: map[string]float64{"pop_A": 80, "pop_B": 60, "pop_C": 30}},
	}
}

func mustResolve(t *testing.T, cfg *model.Configuration, rows []model.DailyRow, i int) Frame {
	t.Helper()
	frame, err := ResolveFrame(cfg, rows, i)
	if err != nil {
		t.Fatalf("ResolveFrame(%d): %v", i, err)
	}
	return frame
}

func startDate() time.Time {
	return time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
}
