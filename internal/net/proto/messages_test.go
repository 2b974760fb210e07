package proto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-results/dashboard/internal/model"
)

func TestStatusRoundTrip(t *testing.T) {
	data, err := EncodeStatus(Status{DataSourceURL: "http://src/api/data", DataSourceInterval: 1.5})
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeStatus, env.Type)

	status, err := env.DecodeStatus()
	require.NoError(t, err)
	assert.Equal(t, "http://src/api/data", status.DataSourceURL)
	assert.Equal(t, 1.5, status.DataSourceInterval)
}

func TestErrorRoundTrip(t *testing.T) {
	data, err := EncodeError("source reported success=false")
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	reason, err := env.DecodeError()
	require.NoError(t, err)
	assert.Equal(t, "source reported success=false", reason)
}

func TestCompetitorUpdateNullsAreExplicit(t *testing.T) {
	comp := &model.Competitor{ID: "c1", DistanceID: "d1", Name: "Rider", FormattedTotalTime: "No Time"}
	data, err := EncodeCompetitorUpdate(comp)
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)

	// Optional fields must serialize as explicit nulls, not vanish.
	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	for _, key := range []string{"laps_remaining", "finished_rank", "personal_record", "lap_times"} {
		raw, ok := payload[key]
		require.True(t, ok, "field %s missing from payload", key)
		assert.Equal(t, "null", string(raw), "field %s", key)
	}

	decoded, err := env.DecodeCompetitorUpdate()
	require.NoError(t, err)
	assert.True(t, decoded.Equal(comp))
}

func TestDistanceMetaRoundTrip(t *testing.T) {
	dist := &model.Distance{
		ID:          "d1",
		Name:        "1000 meter",
		EventNumber: 3,
		IsLive:      true,
		HeatGroups:  []model.HeatGroup{{Heat: 1, RaceIDs: []string{"a", "b"}}},
	}
	dist.DistanceMeters = model.IntPtr(1000)

	data, err := EncodeDistanceMeta(dist)
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	decoded, err := env.DecodeDistanceMeta()
	require.NoError(t, err)
	assert.True(t, decoded.Equal(dist))
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"data": {}}`))
	assert.Error(t, err, "missing type is rejected")

	env, err := Decode([]byte(`{"type":"competitor_update","data":{"name":"x"}}`))
	require.NoError(t, err)
	_, err = env.DecodeCompetitorUpdate()
	assert.Error(t, err, "competitor without ids is rejected")
}
