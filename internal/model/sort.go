package model

import (
	"sort"

	"live-results/dashboard/internal/racetime"
)

// SortCompetitors returns a new slice in standings order: laps descending,
// then total time ascending by numeric seconds, competitors without a time
// last, id as the final tiebreak. Both the differ (message sequencing) and
// the viewer (position assignment) rely on this exact ordering.
func SortCompetitors(comps []*Competitor) []*Competitor {
	out := append([]*Competitor(nil), comps...)
	sort.SliceStable(out, func(i, j int) bool {
		return CompetitorLess(out[i], out[j])
	})
	return out
}

// CompetitorLess is the standings comparator used by SortCompetitors.
func CompetitorLess(a, b *Competitor) bool {
	if a.LapsCount != b.LapsCount {
		return a.LapsCount > b.LapsCount
	}
	if a.HasTime() != b.HasTime() {
		return a.HasTime()
	}
	if a.TotalTime != b.TotalTime {
		return racetime.Seconds(a.TotalTime).LessThan(racetime.Seconds(b.TotalTime))
	}
	return a.ID < b.ID
}
