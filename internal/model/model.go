// Package model holds the normalized entity model shared by the ingest
// pipeline, the wire protocol, and the viewer. Snapshots are treated as
// immutable once committed; every ingestion cycle builds a fresh one.
package model

// Snapshot is one fully normalized view of the event: every known distance
// and every competitor keyed by distance id, then race id.
type Snapshot struct {
	Name        string
	Distances   map[string]*Distance
	Competitors map[string]map[string]*Competitor
}

// NewSnapshot returns an empty snapshot with initialized maps.
func NewSnapshot(name string) *Snapshot {
	return &Snapshot{
		Name:        name,
		Distances:   make(map[string]*Distance),
		Competitors: make(map[string]map[string]*Competitor),
	}
}

// DistanceCompetitors returns the competitor map for one distance, which may
// be nil when the distance is unknown.
func (s *Snapshot) DistanceCompetitors(distanceID string) map[string]*Competitor {
	if s == nil {
		return nil
	}
	return s.Competitors[distanceID]
}

// HeatGroup lists the race ids that share one heat of a timed distance, in
// current standings order.
type HeatGroup struct {
	Heat    int      `json:"heat"`
	RaceIDs []string `json:"race_ids"`
}

// Distance is one timed event or heat group. Classification is fixed at
// normalization time and never changes lap to lap.
type Distance struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	EventNumber float64 `json:"event_number"`
	IsLive      bool    `json:"is_live"`
	IsMassStart bool    `json:"is_mass_start"`

	// Exactly one of the two is set, depending on classification. Both stay
	// nil when the free-text name yields no usable number.
	DistanceMeters *int `json:"distance_meters"`
	TotalLaps      *int `json:"total_laps"`

	AnyFinished bool `json:"any_finished"`

	// FinishingLineAfter is the id of the last competitor in standings order
	// that has a recorded time; the viewer draws the finishing line below it.
	FinishingLineAfter *string `json:"finishing_line_after"`

	// HeatGroups is populated for timed distances only.
	HeatGroups []HeatGroup `json:"heat_groups"`
}

// Competitor is one participant within a distance. TotalTime keeps the raw
// zero-padded source representation so lexical order equals time order; the
// empty string means no time recorded yet.
type Competitor struct {
	ID                 string   `json:"id"`
	DistanceID         string   `json:"distance_id"`
	StartNumber        string   `json:"start_number"`
	Name               string   `json:"name"`
	Heat               int      `json:"heat"`
	Lane               string   `json:"lane"`
	LapsCount          int      `json:"laps_count"`
	TotalTime          string   `json:"total_time"`
	FormattedTotalTime string   `json:"formatted_total_time"`
	LapTimes           []string `json:"lap_times"`
	LapsRemaining      *int     `json:"laps_remaining"`
	FinishedRank       *int     `json:"finished_rank"`
	PersonalRecord     *string  `json:"personal_record"`
}

// HasTime reports whether the competitor has any recorded time.
func (c *Competitor) HasTime() bool {
	return c != nil && c.TotalTime != ""
}

// Clone returns a deep copy of the competitor.
func (c *Competitor) Clone() *Competitor {
	if c == nil {
		return nil
	}
	out := *c
	if c.LapTimes != nil {
		out.LapTimes = append([]string(nil), c.LapTimes...)
	}
	out.LapsRemaining = cloneInt(c.LapsRemaining)
	out.FinishedRank = cloneInt(c.FinishedRank)
	out.PersonalRecord = cloneString(c.PersonalRecord)
	return &out
}

// Equal reports whether every observable field matches.
func (c *Competitor) Equal(other *Competitor) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.ID != other.ID ||
		c.DistanceID != other.DistanceID ||
		c.StartNumber != other.StartNumber ||
		c.Name != other.Name ||
		c.Heat != other.Heat ||
		c.Lane != other.Lane ||
		c.LapsCount != other.LapsCount ||
		c.TotalTime != other.TotalTime ||
		c.FormattedTotalTime != other.FormattedTotalTime {
		return false
	}
	if !equalStrings(c.LapTimes, other.LapTimes) {
		return false
	}
	return equalIntPtr(c.LapsRemaining, other.LapsRemaining) &&
		equalIntPtr(c.FinishedRank, other.FinishedRank) &&
		equalStringPtr(c.PersonalRecord, other.PersonalRecord)
}

// Clone returns a deep copy of the distance.
func (d *Distance) Clone() *Distance {
	if d == nil {
		return nil
	}
	out := *d
	out.DistanceMeters = cloneInt(d.DistanceMeters)
	out.TotalLaps = cloneInt(d.TotalLaps)
	out.FinishingLineAfter = cloneString(d.FinishingLineAfter)
	if d.HeatGroups != nil {
		out.HeatGroups = make([]HeatGroup, len(d.HeatGroups))
		for i, hg := range d.HeatGroups {
			out.HeatGroups[i] = HeatGroup{Heat: hg.Heat, RaceIDs: append([]string(nil), hg.RaceIDs...)}
		}
	}
	return &out
}

// Equal reports whether every observable field matches.
func (d *Distance) Equal(other *Distance) bool {
	if d == nil || other == nil {
		return d == other
	}
	if d.ID != other.ID ||
		d.Name != other.Name ||
		d.EventNumber != other.EventNumber ||
		d.IsLive != other.IsLive ||
		d.IsMassStart != other.IsMassStart ||
		d.AnyFinished != other.AnyFinished {
		return false
	}
	if !equalIntPtr(d.DistanceMeters, other.DistanceMeters) ||
		!equalIntPtr(d.TotalLaps, other.TotalLaps) ||
		!equalStringPtr(d.FinishingLineAfter, other.FinishingLineAfter) {
		return false
	}
	if len(d.HeatGroups) != len(other.HeatGroups) {
		return false
	}
	for i := range d.HeatGroups {
		if d.HeatGroups[i].Heat != other.HeatGroups[i].Heat {
			return false
		}
		if !equalStrings(d.HeatGroups[i].RaceIDs, other.HeatGroups[i].RaceIDs) {
			return false
		}
	}
	return true
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// IntPtr is a convenience constructor for optional numeric fields.
func IntPtr(v int) *int { return &v }

// StringPtr is a convenience constructor for optional string fields.
func StringPtr(v string) *string { return &v }
