// Package source models the raw snapshot served by the upstream timing
// provider and fetches it over HTTP. The payload is hierarchical: event →
// distances → races → laps. Only the success flag and this structure are
// validated here; everything else is normalized downstream.
package source

// Event is the top-level raw snapshot.
type Event struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Distances    []Distance `json:"distances"`
	Success      *bool      `json:"success"`
	ErrorMessage string     `json:"errorMessage"`
}

// Rejected reports whether the snapshot carries an explicit failure flag.
// An absent flag counts as success.
func (e *Event) Rejected() bool {
	return e != nil && e.Success != nil && !*e.Success
}

// Distance is one raw distance with its entry list.
type Distance struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	EventNumber float64 `json:"eventNumber"`
	IsLive      bool    `json:"isLive"`
	Races       []Race  `json:"races"`
}

// Race is one competitor's entry in a distance.
type Race struct {
	ID             string     `json:"id"`
	Competitor     Competitor `json:"competitor"`
	Heat           int        `json:"heat"`
	Lane           string     `json:"lane"`
	PersonalRecord *string    `json:"personalRecord"`
	Laps           []Lap      `json:"laps"`
}

// Competitor carries the raw start-list identity fields.
type Competitor struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	StartNumber    string  `json:"startNumber"`
	PersonalRecord *string `json:"personalRecord"`
}

// Lap is one recorded crossing: Time is cumulative from the race start,
// LapTime is the split for this lap alone.
type Lap struct {
	Time    string `json:"time"`
	LapTime string `json:"lapTime"`
}
