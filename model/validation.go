package model

// ValidationObservation is one dated ground-truth count.
type ValidationObservation struct {
	Date           string  `json:"date"`
	RefugeeNumbers float64 `json:"refugee_numbers"`
}

// Validation holds ground-truth series keyed by a synthetic source name such
// as "idp_B-CampX.csv". The location name is embedded in the source name.
type Validation struct {
	Camps map[string][]ValidationObservation `json:"camps"`
}
