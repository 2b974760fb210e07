package localdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-results/dashboard/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "viewer-state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLoadEmpty(t *testing.T) {
	db := openTestDB(t)

	stored, err := db.Load()
	require.NoError(t, err)
	assert.Empty(t, stored.EventName)
	assert.Empty(t, stored.Distances)
	assert.Empty(t, stored.Competitors)
}

func TestSaveAndLoad(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveEventName("Winter Trophy"))
	require.NoError(t, db.SaveDistance(&model.Distance{
		ID:          "d1",
		Name:        "500m Dames",
		EventNumber: 2,
		IsLive:      true,
		DistanceMeters: model.IntPtr(500),
	}))
	require.NoError(t, db.SaveCompetitor(&model.Competitor{
		ID:          "r1",
		DistanceID:  "d1",
		StartNumber: "12",
		Name:        "Racer One",
		Heat:        1,
		Lane:        "i",
		LapsCount:   2,
		TotalTime:   "00:00:45.1230000",
		LapTimes:    []string{"8.1", "37.0"},
	}))

	stored, err := db.Load()
	require.NoError(t, err)
	assert.Equal(t, "Winter Trophy", stored.EventName)
	require.Len(t, stored.Distances, 1)
	assert.Equal(t, "500m Dames", stored.Distances[0].Name)
	require.NotNil(t, stored.Distances[0].DistanceMeters)
	assert.Equal(t, 500, *stored.Distances[0].DistanceMeters)
	require.Len(t, stored.Competitors, 1)
	assert.Equal(t, "00:00:45.1230000", stored.Competitors[0].TotalTime)
	assert.Equal(t, []string{"8.1", "37.0"}, stored.Competitors[0].LapTimes)
}

func TestSaveOverwritesByKey(t *testing.T) {
	db := openTestDB(t)

	comp := &model.Competitor{ID: "r1", DistanceID: "d1", LapsCount: 1}
	require.NoError(t, db.SaveCompetitor(comp))
	comp.LapsCount = 2
	require.NoError(t, db.SaveCompetitor(comp))

	stored, err := db.Load()
	require.NoError(t, err)
	require.Len(t, stored.Competitors, 1)
	assert.Equal(t, 2, stored.Competitors[0].LapsCount)
}

func TestResetWipes(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveEventName("Gone"))
	require.NoError(t, db.SaveDistance(&model.Distance{ID: "d1"}))
	require.NoError(t, db.Reset())

	stored, err := db.Load()
	require.NoError(t, err)
	assert.Empty(t, stored.EventName)
	assert.Empty(t, stored.Distances)

	// Buckets are recreated, so writing after a reset still works.
	require.NoError(t, db.SaveEventName("Back"))
	stored, err = db.Load()
	require.NoError(t, err)
	assert.Equal(t, "Back", stored.EventName)
}
