package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLightEpochContains(t *testing.T) {
	e := LightEpoch{Start: "08:30", End: "22:30"}

	before, err := e.Contains(time.Date(2026, 1, 1, 8, 29, 59, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, before)

	atStart, err := e.Contains(time.Date(2026, 1, 1, 8, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, atStart)

	atEnd, err := e.Contains(time.Date(2026, 1, 1, 22, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, atEnd)
}

func TestLightEpochOvernight(t *testing.T) {
	e := LightEpoch{Start: "22:00", End: "06:00"}

	late, err := e.Contains(time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, late)

	early, err := e.Contains(time.Date(2026, 1, 1, 5, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, early)

	midday, err := e.Contains(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, midday)
}

func TestBlockDesignBlockName(t *testing.T) {
	single := BlockDesign{Order: []string{"center_peck"}}
	name, ok := single.BlockName(5)
	require.True(t, ok)
	assert.Equal(t, "center_peck", name)

	multi := BlockDesign{Order: []string{"a", "b", "c"}}
	name, ok = multi.BlockName(2)
	require.True(t, ok)
	assert.Equal(t, "b", name)

	_, ok = multi.BlockName(9)
	assert.False(t, ok)

	empty := BlockDesign{}
	_, ok = empty.BlockName(1)
	assert.False(t, ok)
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewSnapshotStore(filepath.Join(dir, "settings_snapshot.json"))

	fresh, err := store.Load()
	require.NoError(t, err)
	assert.True(t, fresh.ShutdownClean)
	assert.Empty(t, fresh.Chambers)

	fresh.Chambers[0] = ChamberEntry{Subject: "bird1", ConfigPath: "bird1.json", Active: true}
	require.NoError(t, store.MarkDirty(fresh))

	reloaded, err := store.Load()
	require.NoError(t, err)
	assert.False(t, reloaded.ShutdownClean)
	assert.Equal(t, "bird1", reloaded.Chambers[0].Subject)

	require.NoError(t, store.MarkClean(reloaded))
	final, err := store.Load()
	require.NoError(t, err)
	assert.True(t, final.ShutdownClean)
}

func TestLoadShapingConfigMissingFileIsConfigError(t *testing.T) {
	_, err := LoadShapingConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}
