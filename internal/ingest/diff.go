package ingest

import (
	"sort"

	"go.uber.org/zap"

	"live-results/dashboard/internal/model"
	"live-results/dashboard/internal/racetime"
)

// Cycle is the outcome of diffing one normalized snapshot against the
// previously committed one: the snapshot to commit plus the ordered deltas to
// broadcast. Distance deltas always precede competitor deltas on the wire so
// receivers hold current distance metadata before interpreting competitors.
type Cycle struct {
	Snapshot    *model.Snapshot
	Name        string
	NameChanged bool
	Distances   []*model.Distance
	Competitors []*model.Competitor
}

// Empty reports whether the cycle carries no observable change.
func (c *Cycle) Empty() bool {
	return !c.NameChanged && len(c.Distances) == 0 && len(c.Competitors) == 0
}

// Differ computes per-cycle deltas and the backend-derived competitor fields
// (laps remaining, finished rank, distance completion). It never mutates the
// previous snapshot.
type Differ struct {
	logger *zap.Logger
}

// NewDiffer builds a differ. A nil logger is replaced with a no-op one.
func NewDiffer(logger *zap.Logger) *Differ {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Differ{logger: logger}
}

// Diff compares curr against prev (nil on the first cycle), finalizes curr's
// derived fields, and returns the deltas in deterministic order: distances by
// event number, competitors per distance in standings order. The ordering
// only sequences outbound messages; it is never transmitted as rank.
func (d *Differ) Diff(prev, curr *model.Snapshot) *Cycle {
	cycle := &Cycle{
		Snapshot:    curr,
		Name:        curr.Name,
		NameChanged: prev == nil || prev.Name != curr.Name,
	}

	for _, dist := range OrderedDistances(curr) {
		comps := curr.Competitors[dist.ID]
		var prevDist *model.Distance
		var prevComps map[string]*model.Competitor
		if prev != nil {
			prevDist = prev.Distances[dist.ID]
			prevComps = prev.Competitors[dist.ID]
		}

		d.enforceMonotonic(dist, comps, prevComps)

		ordered := model.SortCompetitors(values(comps))
		d.finalize(dist, ordered, prevComps)

		if !dist.Equal(prevDist) {
			cycle.Distances = append(cycle.Distances, dist)
		}
		for _, comp := range ordered {
			prevComp := prevComps[comp.ID]
			if comp.Equal(prevComp) {
				continue
			}
			// Only the initial start-list entry may legitimately carry no
			// time; later no-time states are not re-broadcast. Replay is not
			// subject to this rule.
			if !comp.HasTime() && prevComp != nil {
				continue
			}
			cycle.Competitors = append(cycle.Competitors, comp)
		}
	}
	return cycle
}

// enforceMonotonic rejects competitor updates whose total time would regress
// below the committed value. The offending snapshot entry is replaced by a
// copy of the committed record; the producer error is logged, not broadcast.
func (d *Differ) enforceMonotonic(dist *model.Distance, comps, prevComps map[string]*model.Competitor) {
	for id, comp := range comps {
		prevComp := prevComps[id]
		if prevComp == nil || !prevComp.HasTime() {
			continue
		}
		if racetime.Seconds(comp.TotalTime).GreaterThanOrEqual(racetime.Seconds(prevComp.TotalTime)) {
			continue
		}
		d.logger.Warn("discarding retroactive total time",
			zap.String("distance", dist.ID),
			zap.String("competitor", id),
			zap.String("start_number", comp.StartNumber),
			zap.String("committed", prevComp.TotalTime),
			zap.String("offered", comp.TotalTime),
		)
		comps[id] = prevComp.Clone()
	}
}

// finalize computes the derived fields that depend on the standings order:
// finishing line position, laps remaining, sticky finished ranks, distance
// completion, and heat groups for timed distances.
func (d *Differ) finalize(dist *model.Distance, ordered []*model.Competitor, prevComps map[string]*model.Competitor) {
	dist.FinishingLineAfter = nil
	for _, comp := range ordered {
		if comp.HasTime() {
			id := comp.ID
			dist.FinishingLineAfter = &id
		}
	}

	expected := expectedLaps(dist)
	if expected > 0 {
		// Ranks already committed stay fixed; new finishers take the next
		// free rank in this cycle's standings order.
		nextRank := 1
		for _, prevComp := range prevComps {
			if prevComp.FinishedRank != nil && *prevComp.FinishedRank >= nextRank {
				nextRank = *prevComp.FinishedRank + 1
			}
		}
		anyFinished := false
		for _, comp := range ordered {
			remaining := expected - comp.LapsCount
			if remaining < 0 {
				remaining = 0
			}
			comp.LapsRemaining = model.IntPtr(remaining)
			if prevComp := prevComps[comp.ID]; prevComp != nil && prevComp.FinishedRank != nil {
				comp.FinishedRank = model.IntPtr(*prevComp.FinishedRank)
			} else if remaining == 0 {
				comp.FinishedRank = model.IntPtr(nextRank)
				nextRank++
			}
			if comp.FinishedRank != nil {
				anyFinished = true
			}
		}
		dist.AnyFinished = anyFinished
	}

	if !dist.IsMassStart {
		// A timed distance is done only once every competitor holds a split
		// for every expected lap; one missing split keeps it live.
		if expected > 0 && len(ordered) > 0 {
			complete := true
			for _, comp := range ordered {
				if len(comp.LapTimes) < expected {
					complete = false
					break
				}
			}
			if complete {
				dist.IsLive = false
			}
		}
		dist.HeatGroups = heatGroups(ordered)
	}
}

func expectedLaps(dist *model.Distance) int {
	if dist.IsMassStart {
		if dist.TotalLaps == nil {
			return 0
		}
		return *dist.TotalLaps
	}
	if dist.DistanceMeters == nil {
		return 0
	}
	return len(LapSchedule(*dist.DistanceMeters))
}

// heatGroups buckets race ids by heat, heats ascending, ids in standings
// order within each heat.
func heatGroups(ordered []*model.Competitor) []model.HeatGroup {
	byHeat := make(map[int][]string)
	heats := make([]int, 0, 4)
	for _, comp := range ordered {
		if _, ok := byHeat[comp.Heat]; !ok {
			heats = append(heats, comp.Heat)
		}
		byHeat[comp.Heat] = append(byHeat[comp.Heat], comp.ID)
	}
	sort.Ints(heats)
	groups := make([]model.HeatGroup, 0, len(heats))
	for _, heat := range heats {
		groups = append(groups, model.HeatGroup{Heat: heat, RaceIDs: byHeat[heat]})
	}
	return groups
}

// OrderedDistances returns the snapshot's distances sorted by event number,
// the deterministic order used for both deltas and replay.
func OrderedDistances(snap *model.Snapshot) []*model.Distance {
	out := make([]*model.Distance, 0, len(snap.Distances))
	for _, dist := range snap.Distances {
		out = append(out, dist)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventNumber != out[j].EventNumber {
			return out[i].EventNumber < out[j].EventNumber
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func values(comps map[string]*model.Competitor) []*model.Competitor {
	out := make([]*model.Competitor, 0, len(comps))
	for _, comp := range comps {
		out = append(out, comp)
	}
	return out
}
