package model

// LocationType classifies a location on the displacement map.
type LocationType string

const (
	LocationConflictZone  LocationType = "conflict_zone"
	LocationTown          LocationType = "town"
	LocationForwardingHub LocationType = "forwarding_hub"
	LocationCamp          LocationType = "camp"
)

// Location is a named place in a simulation configuration. Name is the join
// key used by result columns, routes and conflict flags.
type Location struct {
	Name         string       `json:"name"`
	Region       string       `json:"region,omitempty"`
	Country      string       `json:"country,omitempty"`
	Latitude     float64      `json:"latitude"`
	Longitude    float64      `json:"longitude"`
	Type         LocationType `json:"location_type"`
	ConflictDate *int         `json:"conflict_date,omitempty"`
	// Population is the initial population, or the capacity of a camp.
	Population *int64 `json:"population,omitempty"`
}

// Route connects two locations by name.
type Route struct {
	From              string   `json:"from"`
	To                string   `json:"to"`
	Distance          float64  `json:"distance"`
	ForcedRedirection *float64 `json:"forced_redirection,omitempty"`
}

// SimPeriod is the simulated window: a start date and a duration in days.
type SimPeriod struct {
	Date   string `json:"date"`
	Length int    `json:"length"`
}

// ConflictDay maps a location name to its conflict flag for one simulated day.
// A value of 1 means conflict is active that day.
type ConflictDay map[string]int

// Active reports whether conflict is active at the named location.
func (d ConflictDay) Active(name string) bool {
	return d != nil && d[name] == 1
}

// DataSource describes where part of the input data was fetched from.
type DataSource struct {
	URL        string `json:"url,omitempty"`
	LastUpdate string `json:"last_update,omitempty"`
}

// DataSources records the provenance of a configuration's inputs.
type DataSources struct {
	ACLED      DataSource `json:"acled"`
	Population struct {
		URL                  string `json:"url,omitempty"`
		LatestPopulationDate string `json:"latest_population_date,omitempty"`
	} `json:"population"`
	Camps struct {
		URLFromLastUpdate string `json:"url_from_last_update,omitempty"`
		LastUpdate        string `json:"last_update,omitempty"`
	} `json:"camps"`
}

// Configuration is a simulation input as served by the backend under
// /simulations/{id}.
type Configuration struct {
	ID          string        `json:"_id"`
	Name        string        `json:"name,omitempty"`
	Region      string        `json:"region"`
	SimPeriod   SimPeriod     `json:"sim_period"`
	Locations   []Location    `json:"locations"`
	Routes      []Route       `json:"routes"`
	Conflicts   []ConflictDay `json:"conflicts"`
	Validation  Validation    `json:"validation"`
	DataSources DataSources   `json:"data_sources"`
}

// ConflictActive reports the conflict flag for a location on day index i.
// Days beyond the conflict table are treated as inactive.
func (c *Configuration) ConflictActive(i int, name string) bool {
	if c == nil || i < 0 || i >= len(c.Conflicts) {
		return false
	}
	return c.Conflicts[i].Active(name)
}

// LocationByName returns the first location with the given name.
func (c *Configuration) LocationByName(name string) (Location, bool) {
	if c == nil {
		return Location{}, false
	}
	for _, loc := range c.Locations {
		if loc.Name == name {
			return loc, true
		}
	}
	return Location{}, false
}
