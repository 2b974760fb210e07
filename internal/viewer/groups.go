package viewer

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"live-results/dashboard/internal/racetime"
)

// StandingsGroup is one pack of a mass-start distance: competitors on the
// same lap within the configured time gap of each other.
type StandingsGroup struct {
	// GroupNumber is 1-based and contiguous from the head of the field.
	GroupNumber int
	// Laps is the lap count shared by the group's members.
	Laps int
	// CompetitorIDs lists the members in standings order.
	CompetitorIDs []string
	// GapToGroupAhead is empty for the head group. When the group trails by
	// whole laps it reads "+N laps" relative to the head group; otherwise it
	// is the time gap to the group directly ahead.
	GapToGroupAhead string
	// IsLastGroup marks the tail group, including a merged overflow tail.
	IsLastGroup bool
}

// regroupLocked recomputes the standings groups of one distance from the
// current order and stamps GroupNumber onto the member rows. Competitors
// without a time sit outside any group. Caller holds s.mu.
func (s *Store) regroupLocked(distanceID string) []StandingsGroup {
	byID := s.competitors[distanceID]
	for _, rec := range byID {
		rec.GroupNumber = 0
	}

	type member struct {
		rec     *Competitor
		seconds decimal.Decimal
	}
	var timed []member
	for _, id := range s.order[distanceID] {
		rec := byID[id]
		if rec == nil || !rec.HasTime() {
			continue
		}
		timed = append(timed, member{rec: rec, seconds: racetime.Seconds(rec.TotalTime)})
	}
	if len(timed) == 0 {
		return nil
	}

	gap := decimal.NewFromFloat(s.settings.GroupGapSeconds)

	var groups []StandingsGroup
	var leaders []decimal.Decimal // leader time per group, for gap rendering
	for i, m := range timed {
		startNew := i == 0
		if !startNew {
			prev := timed[i-1]
			if m.rec.LapsCount != prev.rec.LapsCount ||
				m.seconds.Sub(prev.seconds).GreaterThan(gap) {
				startNew = true
			}
		}
		if startNew {
			groups = append(groups, StandingsGroup{
				GroupNumber: len(groups) + 1,
				Laps:        m.rec.LapsCount,
			})
			leaders = append(leaders, m.seconds)
		}
		g := &groups[len(groups)-1]
		g.CompetitorIDs = append(g.CompetitorIDs, m.rec.ID)
	}

	headLaps := groups[0].Laps
	for i := range groups {
		if i == 0 {
			continue
		}
		if down := headLaps - groups[i].Laps; down >= 1 {
			unit := "laps"
			if down == 1 {
				unit = "lap"
			}
			groups[i].GapToGroupAhead = fmt.Sprintf("+%d %s", down, unit)
		} else {
			groups[i].GapToGroupAhead = racetime.Gap(leaders[i], leaders[i-1])
		}
	}

	if limit := s.settings.MaxGroups; limit > 0 && len(groups) > limit {
		tail := &groups[limit-1]
		for _, g := range groups[limit:] {
			tail.CompetitorIDs = append(tail.CompetitorIDs, g.CompetitorIDs...)
		}
		groups = groups[:limit]
	}
	groups[len(groups)-1].IsLastGroup = true

	for _, g := range groups {
		for _, id := range g.CompetitorIDs {
			byID[id].GroupNumber = g.GroupNumber
		}
	}
	return groups
}

// FlushGroups re-renders the grouping of every mass-start distance whose
// standings have been quiet for the configured period. The first grouping of
// a distance renders immediately. It returns the earliest time a pending
// flush becomes due, when one exists.
func (s *Store) FlushGroups(now time.Time) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quiet := time.Duration(s.settings.GroupGapSeconds * float64(time.Second))

	var next time.Time
	for distID, changedAt := range s.groupsDirty {
		if s.groupsShown[distID] && now.Sub(changedAt) < quiet {
			due := changedAt.Add(quiet)
			if next.IsZero() || due.Before(next) {
				next = due
			}
			continue
		}
		s.groups[distID] = s.regroupLocked(distID)
		s.groupsShown[distID] = true
		delete(s.groupsDirty, distID)
	}
	return next, !next.IsZero()
}
