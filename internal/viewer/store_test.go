package viewer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"live-results/dashboard/internal/model"
	"live-results/dashboard/internal/net/proto"
	"live-results/dashboard/internal/racetime"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(Settings{GroupGapSeconds: 2.0, MaxGroups: 8}, nil, zap.NewNop())
}

func testComp(id string, laps int, total string) *model.Competitor {
	c := &model.Competitor{
		ID:          id,
		DistanceID:  "d1",
		StartNumber: id,
		Name:        "Racer " + id,
		Heat:        1,
		Lane:        "black",
		LapsCount:   laps,
		TotalTime:   total,
	}
	if total != "" {
		c.FormattedTotalTime = racetime.Format(total)
	}
	return c
}

func compEnvelope(t *testing.T, c *model.Competitor) proto.Envelope {
	t.Helper()
	payload, err := proto.EncodeCompetitorUpdate(c)
	require.NoError(t, err)
	env, err := proto.Decode(payload)
	require.NoError(t, err)
	return env
}

func distEnvelope(t *testing.T, d *model.Distance) proto.Envelope {
	t.Helper()
	payload, err := proto.EncodeDistanceMeta(d)
	require.NoError(t, err)
	env, err := proto.Decode(payload)
	require.NoError(t, err)
	return env
}

func massStartDistance() *model.Distance {
	return &model.Distance{
		ID:          "d1",
		Name:        "Mass start 16 laps",
		EventNumber: 1,
		IsLive:      true,
		IsMassStart: true,
		TotalLaps:   model.IntPtr(16),
	}
}

func TestApplyOrdersStandings(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Apply(compEnvelope(t, testComp("a", 5, "00:07:30.0000000"))))
	require.NoError(t, s.Apply(compEnvelope(t, testComp("b", 5, "00:07:25.5000000"))))
	require.NoError(t, s.Apply(compEnvelope(t, testComp("c", 4, "00:07:10.0000000"))))
	require.NoError(t, s.Apply(compEnvelope(t, testComp("d", 5, ""))))

	rows := s.Standings("d1")
	require.Len(t, rows, 4)

	// Laps descending, time ascending, no-time last within the lap bracket.
	assert.Equal(t, []string{"b", "a", "d", "c"}, rowIDs(rows))
	assert.Equal(t, 1, rows[0].Position)
	assert.Equal(t, 2, rows[1].Position)
	assert.Equal(t, "+4.5", rows[1].GapToAbove)
	assert.Empty(t, rows[2].GapToAbove) // no time recorded
	assert.Empty(t, rows[3].GapToAbove) // different lap count
}

func TestApplyIdempotentRedelivery(t *testing.T) {
	s := newTestStore(t)
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	update := testComp("a", 3, "00:04:00.0000000")
	require.NoError(t, s.Apply(compEnvelope(t, update)))
	assert.Equal(t, "a", s.RecentlyUpdated("d1"))

	// Redelivering the identical frame must not re-arm the marker or touch
	// positions.
	now = now.Add(2 * time.Second)
	require.NoError(t, s.Apply(compEnvelope(t, update)))

	now = now.Add(1500 * time.Millisecond)
	assert.Empty(t, s.RecentlyUpdated("d1"),
		"marker must expire from the first delivery, not the redelivery")

	rows := s.Standings("d1")
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].PositionChange)
}

func TestApplyRejectsTotalTimeRegression(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Apply(compEnvelope(t, testComp("a", 2, "00:00:10.0000000"))))
	require.NoError(t, s.Apply(compEnvelope(t, testComp("a", 2, "00:00:05.0000000"))))

	rows := s.Standings("d1")
	require.Len(t, rows, 1)
	assert.Equal(t, "00:00:10.0000000", rows[0].TotalTime)
}

func TestPositionChangeSigns(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Apply(compEnvelope(t, testComp("a", 3, "00:04:00.0000000"))))
	require.NoError(t, s.Apply(compEnvelope(t, testComp("b", 3, "00:04:10.0000000"))))

	// b completes a lap and takes the lead.
	require.NoError(t, s.Apply(compEnvelope(t, testComp("b", 4, "00:05:20.0000000"))))

	rows := s.Standings("d1")
	require.Equal(t, []string{"b", "a"}, rowIDs(rows))
	assert.Equal(t, 1, rows[0].PositionChange, "b moved up")
	assert.Equal(t, -1, rows[1].PositionChange, "a was displaced")
}

func TestFinalLapFlag(t *testing.T) {
	s := newTestStore(t)

	c := testComp("a", 15, "00:19:00.0000000")
	c.LapsRemaining = model.IntPtr(1)
	require.NoError(t, s.Apply(compEnvelope(t, c)))

	rows := s.Standings("d1")
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsFinalLap)
}

func TestMarkerOverwrittenByNextCrossing(t *testing.T) {
	s := newTestStore(t)
	now := time.Unix(2000, 0)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Apply(compEnvelope(t, testComp("a", 1, "00:00:40.0000000"))))
	assert.Equal(t, "a", s.RecentlyUpdated("d1"))

	now = now.Add(time.Second)
	require.NoError(t, s.Apply(compEnvelope(t, testComp("b", 1, "00:00:42.0000000"))))
	assert.Equal(t, "b", s.RecentlyUpdated("d1"))

	now = now.Add(markerVisible)
	assert.Empty(t, s.RecentlyUpdated("d1"))
}

func TestMarkerIgnoresNoTimeUpdates(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Apply(compEnvelope(t, testComp("a", 0, ""))))
	assert.Empty(t, s.RecentlyUpdated("d1"))
}

func TestApplyEventNameAndStatus(t *testing.T) {
	s := newTestStore(t)

	payload, err := proto.EncodeEventName("Club Championship")
	require.NoError(t, err)
	env, err := proto.Decode(payload)
	require.NoError(t, err)
	require.NoError(t, s.Apply(env))
	assert.Equal(t, "Club Championship", s.EventName())

	payload, err = proto.EncodeStatus(proto.Status{DataSourceURL: "http://src", DataSourceInterval: 1})
	require.NoError(t, err)
	env, err = proto.Decode(payload)
	require.NoError(t, err)
	require.NoError(t, s.Apply(env))
	assert.Equal(t, "http://src", s.Status().DataSourceURL)
}

func TestApplyErrorBroadcast(t *testing.T) {
	s := newTestStore(t)

	payload, err := proto.EncodeError("timing source unavailable")
	require.NoError(t, err)
	env, err := proto.Decode(payload)
	require.NoError(t, err)
	require.NoError(t, s.Apply(env))
	assert.Equal(t, "timing source unavailable", s.LastError())
}

func TestApplyUnknownTypeRejected(t *testing.T) {
	s := newTestStore(t)
	err := s.Apply(proto.Envelope{Type: "bogus", Data: []byte(`{}`)})
	assert.Error(t, err)
}

func TestResetClearsEverything(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Apply(distEnvelope(t, massStartDistance())))
	require.NoError(t, s.Apply(compEnvelope(t, testComp("a", 2, "00:03:00.0000000"))))

	s.Reset()

	assert.Empty(t, s.Standings("d1"))
	assert.Empty(t, s.Distances())
	assert.Empty(t, s.EventName())
}

func TestLoadLocalRestoresStandings(t *testing.T) {
	s := newTestStore(t)

	s.LoadLocal(NewStoredState("Saved Event",
		[]*model.Distance{massStartDistance()},
		[]*model.Competitor{
			testComp("a", 5, "00:07:30.0000000"),
			testComp("b", 5, "00:07:25.0000000"),
		}))

	assert.Equal(t, "Saved Event", s.EventName())
	rows := s.Standings("d1")
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"b", "a"}, rowIDs(rows))
	// First grouping computes immediately on load.
	assert.NotEmpty(t, s.Groups("d1"))
}

func rowIDs(rows []Competitor) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}
