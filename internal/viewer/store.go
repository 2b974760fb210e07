// Package viewer holds the client side of the pipeline: a state store fed by
// decoded websocket messages, the render scheduler that drains them under a
// time budget, standings-group derivation for mass starts, and the transport
// that keeps the connection alive.
package viewer

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"live-results/dashboard/internal/model"
	"live-results/dashboard/internal/net/proto"
	"live-results/dashboard/internal/racetime"
)

// markerVisible is how long the last-crossing highlight stays on a distance
// after an update carrying a time.
const markerVisible = 3 * time.Second

// Settings are the user-tunable display knobs. Changing them regroups
// immediately, skipping the debounce.
type Settings struct {
	// GroupGapSeconds is both the clustering threshold for standings groups
	// and the quiet period before a changed grouping is re-rendered.
	GroupGapSeconds float64
	// MaxGroups caps how many groups are shown; the tail merges into the last.
	MaxGroups int
}

// Competitor is one row of a standings table: the transmitted record plus the
// fields derived locally from ordering.
type Competitor struct {
	model.Competitor

	// Position is the 1-based rank within the distance.
	Position int
	// PositionChange is the sign of the last move: +1 up, -1 down, 0 held.
	PositionChange int
	// GapToAbove is the time gap to the row above, empty when laps differ or
	// either side has no time.
	GapToAbove string
	// GroupNumber is the standings group this row belongs to, 0 outside any
	// group (no time yet, or distance not mass start).
	GroupNumber int
	// IsFinalLap is set while the competitor is on their last lap.
	IsFinalLap bool
}

// marker remembers the most recent timed update on a distance.
type marker struct {
	competitorID string
	at           time.Time
}

// Store is the client state store. It applies messages idempotently, keeps
// standings per distance in the shared sort order, and derives positions,
// gaps, groups and the last-crossing marker. All methods are safe for
// concurrent use; the scheduler is the only writer in practice.
type Store struct {
	mu     sync.Mutex
	logger *zap.Logger
	db     localDB // nil when persistence is disabled
	now    func() time.Time

	status    proto.Status
	eventName string
	lastError string
	connected bool

	settings Settings

	distances   map[string]*model.Distance
	competitors map[string]map[string]*Competitor
	order       map[string][]string // competitor ids in standings order

	groups      map[string][]StandingsGroup
	groupsDirty map[string]time.Time // last structural change, pending flush
	groupsShown map[string]bool      // false until the first grouping renders

	markers map[string]marker
}

// localDB is the subset of the persistence layer the store writes through to.
type localDB interface {
	SaveEventName(name string) error
	SaveDistance(dist *model.Distance) error
	SaveCompetitor(comp *model.Competitor) error
	Reset() error
}

// NewStore builds an empty store. db may be nil to run without persistence.
func NewStore(settings Settings, db localDB, logger *zap.Logger) *Store {
	s := &Store{
		logger:   logger,
		db:       db,
		now:      time.Now,
		settings: settings,
	}
	s.resetLocked()
	return s
}

func (s *Store) resetLocked() {
	s.eventName = ""
	s.lastError = ""
	s.distances = make(map[string]*model.Distance)
	s.competitors = make(map[string]map[string]*Competitor)
	s.order = make(map[string][]string)
	s.groups = make(map[string][]StandingsGroup)
	s.groupsDirty = make(map[string]time.Time)
	s.groupsShown = make(map[string]bool)
	s.markers = make(map[string]marker)
}

// Reset drops all applied state and wipes the persisted copy. The next replay
// repopulates everything.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	if s.db != nil {
		if err := s.db.Reset(); err != nil {
			s.logger.Warn("wipe persisted state", zap.Error(err))
		}
	}
}

// LoadLocal hydrates the store from previously persisted state so standings
// render before the first connection. Groupings compute immediately.
func (s *Store) LoadLocal(stored *StoredState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventName = stored.EventName
	for _, dist := range stored.Distances {
		s.distances[dist.ID] = dist
	}
	for _, comp := range stored.Competitors {
		byID := s.competitors[comp.DistanceID]
		if byID == nil {
			byID = make(map[string]*Competitor)
			s.competitors[comp.DistanceID] = byID
		}
		byID[comp.ID] = &Competitor{Competitor: *comp}
	}
	for distID := range s.competitors {
		s.resortLocked(distID)
		if dist := s.distances[distID]; dist != nil && dist.IsMassStart {
			s.groups[distID] = s.regroupLocked(distID)
			s.groupsShown[distID] = true
		}
	}
}

// StoredState mirrors localdb.Stored without importing the package, so the
// store stays testable with in-memory data.
type StoredState struct {
	EventName   string
	Distances   []*model.Distance
	Competitors []*model.Competitor
}

// NewStoredState packs persisted rows for LoadLocal.
func NewStoredState(eventName string, distances []*model.Distance, competitors []*model.Competitor) *StoredState {
	return &StoredState{EventName: eventName, Distances: distances, Competitors: competitors}
}

// SetConnected records the transport state for the header line.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}

// Connected reports whether the transport currently has a live connection.
func (s *Store) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// SetSettings replaces the display settings and regroups every mass-start
// distance immediately, bypassing the debounce.
func (s *Store) SetSettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	for distID, dist := range s.distances {
		if !dist.IsMassStart {
			continue
		}
		s.groups[distID] = s.regroupLocked(distID)
		s.groupsShown[distID] = true
		delete(s.groupsDirty, distID)
	}
}

// Apply folds one decoded message into the store. Unknown types and payloads
// that fail validation return an error; the caller logs and drops them.
func (s *Store) Apply(env proto.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch env.Type {
	case proto.TypeStatus:
		status, err := env.DecodeStatus()
		if err != nil {
			return err
		}
		s.status = status
		return nil

	case proto.TypeError:
		reason, err := env.DecodeError()
		if err != nil {
			return err
		}
		s.lastError = reason
		return nil

	case proto.TypeEventName:
		name, err := env.DecodeEventName()
		if err != nil {
			return err
		}
		s.eventName = name
		s.persistEventName(name)
		return nil

	case proto.TypeDistanceMeta:
		dist, err := env.DecodeDistanceMeta()
		if err != nil {
			return err
		}
		s.applyDistanceLocked(dist)
		return nil

	case proto.TypeCompetitorUpdate:
		comp, err := env.DecodeCompetitorUpdate()
		if err != nil {
			return err
		}
		s.applyCompetitorLocked(comp)
		return nil

	default:
		return fmt.Errorf("unknown message type %q", env.Type)
	}
}

func (s *Store) applyDistanceLocked(dist *model.Distance) {
	prev := s.distances[dist.ID]
	if prev != nil && prev.Equal(dist) {
		return
	}
	s.distances[dist.ID] = dist
	if dist.IsMassStart {
		s.markGroupsDirtyLocked(dist.ID)
	}
	s.persistDistance(dist)
}

func (s *Store) applyCompetitorLocked(comp *model.Competitor) {
	byID := s.competitors[comp.DistanceID]
	if byID == nil {
		byID = make(map[string]*Competitor)
		s.competitors[comp.DistanceID] = byID
	}

	existing := byID[comp.ID]
	if existing != nil {
		// Redelivered frames are no-ops: no marker, no position change.
		if existing.Competitor.Equal(comp) {
			return
		}
		// A total time must never move backwards; the server enforces this
		// too, the check here guards against reordered frames.
		if existing.HasTime() && comp.HasTime() &&
			racetime.Seconds(comp.TotalTime).LessThan(racetime.Seconds(existing.TotalTime)) {
			s.logger.Warn("rejecting total time regression",
				zap.String("competitor", comp.ID),
				zap.String("have", existing.TotalTime),
				zap.String("got", comp.TotalTime))
			return
		}
	}

	rec := &Competitor{Competitor: *comp}
	if existing != nil {
		rec.Position = existing.Position
		rec.GroupNumber = existing.GroupNumber
	}
	byID[comp.ID] = rec

	s.resortLocked(comp.DistanceID)
	if comp.HasTime() {
		s.markers[comp.DistanceID] = marker{competitorID: comp.ID, at: s.now()}
	}
	if dist := s.distances[comp.DistanceID]; dist != nil && dist.IsMassStart {
		s.markGroupsDirtyLocked(comp.DistanceID)
	}
	s.persistCompetitor(comp)
}

// resortLocked reorders one distance's standings and refreshes every derived
// per-row field. Position changes are recomputed for all rows, so an update
// to one competitor can flip the arrows of the rows it passed.
func (s *Store) resortLocked(distanceID string) {
	byID := s.competitors[distanceID]
	comps := make([]*model.Competitor, 0, len(byID))
	for _, rec := range byID {
		comps = append(comps, &rec.Competitor)
	}
	sorted := model.SortCompetitors(comps)

	ids := make([]string, len(sorted))
	var above *Competitor
	for i, mc := range sorted {
		rec := byID[mc.ID]
		ids[i] = mc.ID

		newPos := i + 1
		switch {
		case rec.Position == 0 || rec.Position == newPos:
			rec.PositionChange = 0
		case rec.Position > newPos:
			rec.PositionChange = 1
		default:
			rec.PositionChange = -1
		}
		rec.Position = newPos

		rec.IsFinalLap = rec.LapsRemaining != nil && *rec.LapsRemaining == 1

		rec.GapToAbove = ""
		if above != nil && rec.HasTime() && above.HasTime() && rec.LapsCount == above.LapsCount {
			rec.GapToAbove = racetime.Gap(
				racetime.Seconds(rec.TotalTime),
				racetime.Seconds(above.TotalTime))
		}
		above = rec
	}
	s.order[distanceID] = ids
}

func (s *Store) markGroupsDirtyLocked(distanceID string) {
	s.groupsDirty[distanceID] = s.now()
}

func (s *Store) persistEventName(name string) {
	if s.db == nil {
		return
	}
	if err := s.db.SaveEventName(name); err != nil {
		s.logger.Warn("persist event name", zap.Error(err))
	}
}

func (s *Store) persistDistance(dist *model.Distance) {
	if s.db == nil {
		return
	}
	if err := s.db.SaveDistance(dist); err != nil {
		s.logger.Warn("persist distance", zap.String("distance", dist.ID), zap.Error(err))
	}
}

func (s *Store) persistCompetitor(comp *model.Competitor) {
	if s.db == nil {
		return
	}
	if err := s.db.SaveCompetitor(comp); err != nil {
		s.logger.Warn("persist competitor", zap.String("competitor", comp.ID), zap.Error(err))
	}
}

// EventName returns the current event title.
func (s *Store) EventName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventName
}

// Status returns the connection metadata from the last status message.
func (s *Store) Status() proto.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastError returns the most recent server-side error broadcast, empty when
// none has arrived.
func (s *Store) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Distances returns every known distance in event-program order.
func (s *Store) Distances() []*model.Distance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Distance, 0, len(s.distances))
	for _, dist := range s.distances {
		out = append(out, dist.Clone())
	}
	sortDistances(out)
	return out
}

// Standings returns the rows of one distance in display order.
func (s *Store) Standings(distanceID string) []Competitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.order[distanceID]
	byID := s.competitors[distanceID]
	out := make([]Competitor, 0, len(ids))
	for _, id := range ids {
		if rec := byID[id]; rec != nil {
			out = append(out, *rec)
		}
	}
	return out
}

// Groups returns the displayed standings groups of one distance. They lag
// behind Standings by up to the configured quiet period.
func (s *Store) Groups(distanceID string) []StandingsGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StandingsGroup(nil), s.groups[distanceID]...)
}

// RecentlyUpdated returns the competitor id holding the last-crossing marker
// on one distance, or "" once it has expired. Expiry is lazy; nothing ticks.
func (s *Store) RecentlyUpdated(distanceID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markers[distanceID]
	if !ok {
		return ""
	}
	if s.now().Sub(m.at) >= markerVisible {
		delete(s.markers, distanceID)
		return ""
	}
	return m.competitorID
}

func sortDistances(dists []*model.Distance) {
	sort.Slice(dists, func(i, j int) bool { return distanceLess(dists[i], dists[j]) })
}

func distanceLess(a, b *model.Distance) bool {
	if a.EventNumber != b.EventNumber {
		return a.EventNumber < b.EventNumber
	}
	return a.ID < b.ID
}
