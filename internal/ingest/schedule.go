package ingest

// Track laps are 400m; a timed distance opens with a short first lap so the
// remaining laps land exactly on the finish line (1000m starts 200m before
// it: 200, 600, 1000).
const lapLengthMeters = 400

// LapSchedule returns the cumulative meter marks at which a timed distance
// records a split, ending at the full distance.
func LapSchedule(meters int) []int {
	if meters <= 0 {
		return nil
	}
	first := meters % lapLengthMeters
	if first == 0 {
		first = lapLengthMeters
	}
	schedule := []int{first}
	for at := first; at < meters; at += lapLengthMeters {
		schedule = append(schedule, at+lapLengthMeters)
	}
	return schedule
}
