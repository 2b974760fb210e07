package viewer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"live-results/dashboard/internal/model"
)

func applyMassStart(t *testing.T, s *Store, comps ...*model.Competitor) {
	t.Helper()
	require.NoError(t, s.Apply(distEnvelope(t, massStartDistance())))
	for _, c := range comps {
		require.NoError(t, s.Apply(compEnvelope(t, c)))
	}
}

func TestGroupsSinglePack(t *testing.T) {
	s := newTestStore(t)
	now := time.Unix(3000, 0)
	s.now = func() time.Time { return now }

	// Three competitors on lap 5 within 2.0 seconds of each other.
	applyMassStart(t, s,
		testComp("a", 5, "00:07:25.0000000"),
		testComp("b", 5, "00:07:26.5000000"),
		testComp("c", 5, "00:07:27.9000000"))

	s.FlushGroups(now)

	groups := s.Groups("d1")
	require.Len(t, groups, 1)
	assert.Equal(t, 1, groups[0].GroupNumber)
	assert.Equal(t, 5, groups[0].Laps)
	assert.Equal(t, []string{"a", "b", "c"}, groups[0].CompetitorIDs)
	assert.Empty(t, groups[0].GapToGroupAhead)
	assert.True(t, groups[0].IsLastGroup)

	for _, row := range s.Standings("d1") {
		assert.Equal(t, 1, row.GroupNumber)
	}
}

func TestGroupsSplitOnTimeGap(t *testing.T) {
	s := newTestStore(t)
	now := time.Unix(3000, 0)
	s.now = func() time.Time { return now }

	applyMassStart(t, s,
		testComp("a", 5, "00:07:25.0000000"),
		testComp("b", 5, "00:07:26.0000000"),
		testComp("c", 5, "00:07:31.5000000")) // 5.5s behind b

	s.FlushGroups(now)

	groups := s.Groups("d1")
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"a", "b"}, groups[0].CompetitorIDs)
	assert.Equal(t, []string{"c"}, groups[1].CompetitorIDs)
	assert.Equal(t, 2, groups[1].GroupNumber)
	// Time gap is leader to leader of the group ahead.
	assert.Equal(t, "+6.5", groups[1].GapToGroupAhead)
	assert.False(t, groups[0].IsLastGroup)
	assert.True(t, groups[1].IsLastGroup)
}

func TestGroupsLappedPackReportsLapsDown(t *testing.T) {
	s := newTestStore(t)
	now := time.Unix(3000, 0)
	s.now = func() time.Time { return now }

	applyMassStart(t, s,
		testComp("a", 6, "00:08:50.0000000"),
		testComp("b", 5, "00:08:51.0000000"),
		testComp("c", 4, "00:08:52.0000000"))

	s.FlushGroups(now)

	groups := s.Groups("d1")
	require.Len(t, groups, 3)
	assert.Equal(t, "+1 lap", groups[1].GapToGroupAhead)
	assert.Equal(t, "+2 laps", groups[2].GapToGroupAhead)
}

func TestGroupsNoTimeCompetitorsExcluded(t *testing.T) {
	s := newTestStore(t)
	now := time.Unix(3000, 0)
	s.now = func() time.Time { return now }

	applyMassStart(t, s,
		testComp("a", 5, "00:07:25.0000000"),
		testComp("b", 5, ""))

	s.FlushGroups(now)

	groups := s.Groups("d1")
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"a"}, groups[0].CompetitorIDs)

	rows := s.Standings("d1")
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[1].GroupNumber)
}

func TestGroupsMaxMergesTail(t *testing.T) {
	s := NewStore(Settings{GroupGapSeconds: 2.0, MaxGroups: 2}, nil, zap.NewNop())
	now := time.Unix(3000, 0)
	s.now = func() time.Time { return now }

	applyMassStart(t, s,
		testComp("a", 5, "00:07:00.0000000"),
		testComp("b", 5, "00:07:10.0000000"),
		testComp("c", 5, "00:07:20.0000000"),
		testComp("d", 5, "00:07:30.0000000"))

	s.FlushGroups(now)

	groups := s.Groups("d1")
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"a"}, groups[0].CompetitorIDs)
	assert.Equal(t, []string{"b", "c", "d"}, groups[1].CompetitorIDs)
	assert.True(t, groups[1].IsLastGroup)
}

func TestGroupsDebounce(t *testing.T) {
	s := newTestStore(t)
	now := time.Unix(3000, 0)
	s.now = func() time.Time { return now }

	// First grouping renders immediately.
	applyMassStart(t, s, testComp("a", 5, "00:07:25.0000000"))
	next, pending := s.FlushGroups(now)
	assert.False(t, pending)
	require.Len(t, s.Groups("d1"), 1)

	// A later change waits out the quiet period.
	now = now.Add(10 * time.Second)
	require.NoError(t, s.Apply(compEnvelope(t, testComp("b", 5, "00:07:35.0000000"))))
	next, pending = s.FlushGroups(now)
	require.True(t, pending)
	assert.Equal(t, now.Add(2*time.Second), next)
	assert.Len(t, s.Groups("d1"), 1, "grouping must not re-render inside the quiet period")

	now = now.Add(2 * time.Second)
	_, pending = s.FlushGroups(now)
	assert.False(t, pending)
	assert.Len(t, s.Groups("d1"), 2)
}

func TestSetSettingsRegroupsImmediately(t *testing.T) {
	s := newTestStore(t)
	now := time.Unix(3000, 0)
	s.now = func() time.Time { return now }

	applyMassStart(t, s,
		testComp("a", 5, "00:07:25.0000000"),
		testComp("b", 5, "00:07:28.5000000")) // 3.5s back
	s.FlushGroups(now)
	require.Len(t, s.Groups("d1"), 2)

	// Widening the threshold takes effect without waiting for a flush.
	s.SetSettings(Settings{GroupGapSeconds: 5.0, MaxGroups: 8})
	assert.Len(t, s.Groups("d1"), 1)
}
