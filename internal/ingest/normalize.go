// Package ingest turns raw upstream snapshots into the normalized model and
// computes per-cycle deltas against the previously committed snapshot.
package ingest

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"

	"live-results/dashboard/internal/model"
	"live-results/dashboard/internal/racetime"
	"live-results/dashboard/internal/source"
)

// ErrSourceRejected marks a snapshot the upstream explicitly flagged as
// failed. The previously committed state stays untouched.
var ErrSourceRejected = errors.New("source snapshot rejected")

// The source encodes lap counts and distance lengths only in the free-text
// distance name. Unmatched names leave the field nil; we never guess.
var (
	lapsPattern   = regexp.MustCompile(`(?i)(\d+)\s*(?:laps?|ronden?|rondes?)`)
	metersPattern = regexp.MustCompile(`(?i)(\d+)\s*(?:m\b|meter)`)
)

// Mass-start competitors are not assigned lanes; the source leaves the field
// meaningless and the display renders them all the same.
const massStartLane = "black"

// Normalize converts one raw snapshot into the canonical model or rejects it
// wholesale when the upstream reports failure.
func Normalize(raw *source.Event) (*model.Snapshot, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrSourceRejected)
	}
	if raw.Rejected() {
		if raw.ErrorMessage != "" {
			return nil, fmt.Errorf("%w: %s", ErrSourceRejected, raw.ErrorMessage)
		}
		return nil, fmt.Errorf("%w: source reported success=false", ErrSourceRejected)
	}

	snap := model.NewSnapshot(raw.Name)
	for i := range raw.Distances {
		dist, comps := normalizeDistance(&raw.Distances[i])
		snap.Distances[dist.ID] = dist
		snap.Competitors[dist.ID] = comps
	}
	return snap, nil
}

func normalizeDistance(raw *source.Distance) (*model.Distance, map[string]*model.Competitor) {
	massStart := isMassStart(raw.Races)

	dist := &model.Distance{
		ID:          raw.ID,
		Name:        raw.Name,
		EventNumber: raw.EventNumber,
		IsLive:      raw.IsLive,
		IsMassStart: massStart,
	}
	if massStart {
		dist.TotalLaps = matchNumber(lapsPattern, raw.Name)
	} else {
		dist.DistanceMeters = matchNumber(metersPattern, raw.Name)
	}

	comps := make(map[string]*model.Competitor, len(raw.Races))
	for i := range raw.Races {
		comp := normalizeRace(&raw.Races[i], dist)
		comps[comp.ID] = comp
	}
	return dist, comps
}

// isMassStart classifies a distance: more than two entries that all share a
// single heat. The classification is a function of the race-group shape and
// stays fixed for the lifetime of the distance.
func isMassStart(races []source.Race) bool {
	if len(races) <= 2 {
		return false
	}
	heat := races[0].Heat
	for _, r := range races[1:] {
		if r.Heat != heat {
			return false
		}
	}
	return true
}

func normalizeRace(raw *source.Race, dist *model.Distance) *model.Competitor {
	laps := raw.Laps
	if dist.IsMassStart && len(laps) > 0 {
		// The first mass-start crossing is the warmup lap and never counts.
		laps = laps[1:]
	}

	totalTime := maxLapTime(laps)
	formatted := "No Time"
	if totalTime != "" {
		formatted = racetime.Format(totalTime)
	}

	lane := massStartLane
	if !dist.IsMassStart && raw.Lane != "" {
		lane = raw.Lane
	}

	comp := &model.Competitor{
		ID:                 raw.ID,
		DistanceID:         dist.ID,
		StartNumber:        raw.Competitor.StartNumber,
		Name:               raw.Competitor.Name,
		Heat:               raw.Heat,
		Lane:               lane,
		LapsCount:          len(laps),
		TotalTime:          totalTime,
		FormattedTotalTime: formatted,
		PersonalRecord:     personalRecord(raw),
	}
	if !dist.IsMassStart {
		comp.LapTimes = cumulativeSplits(laps)
	}
	return comp
}

// maxLapTime picks the largest cumulative lap time. The source occasionally
// reorders lap entries, so a plain "last lap" read is not safe.
func maxLapTime(laps []source.Lap) string {
	best := ""
	bestSec := decimal.Decimal{}
	for _, lap := range laps {
		if lap.Time == "" {
			continue
		}
		sec := racetime.Seconds(lap.Time)
		if best == "" || sec.GreaterThan(bestSec) {
			best = lap.Time
			bestSec = sec
		}
	}
	return best
}

// cumulativeSplits renders the running total after each completed lap,
// truncated to three decimals. The per-lap splits are summed exactly; when a
// split is unreadable the source's own cumulative value is used instead.
func cumulativeSplits(laps []source.Lap) []string {
	if len(laps) == 0 {
		return nil
	}
	out := make([]string, 0, len(laps))
	running := decimal.Zero
	for _, lap := range laps {
		split, err := racetime.Parse(lap.LapTime)
		if err != nil || lap.LapTime == "" {
			running = racetime.Seconds(lap.Time)
			out = append(out, racetime.Format(lap.Time))
			continue
		}
		running = running.Add(split)
		out = append(out, racetime.Format(racetime.Canonical(running)))
	}
	return out
}

func personalRecord(raw *source.Race) *string {
	if raw.PersonalRecord != nil && *raw.PersonalRecord != "" {
		pr := *raw.PersonalRecord
		return &pr
	}
	if raw.Competitor.PersonalRecord != nil && *raw.Competitor.PersonalRecord != "" {
		pr := *raw.Competitor.PersonalRecord
		return &pr
	}
	return nil
}

func matchNumber(pattern *regexp.Regexp, name string) *int {
	m := pattern.FindStringSubmatch(name)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}
