package analysis

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIngestResolvesClassAndBlockFromSettings(t *testing.T) {
	dir := t.TempDir()
	csv := "session_index,index,stimulus_path,class,response,response_latency_seconds,reward_issued,punish_issued,timestamp\n" +
		"1,1,splus.wav,sPlus,sPlus,0.4,true,false,2026-07-31T09:00:00Z\n" +
		"1,2,sminus.wav,sMinus,sPlus,NaN,false,false,2026-07-31T09:01:00Z\n"
	writeFile(t, filepath.Join(dir, "trialdata", "bird1_20260731T090000.csv"), csv)
	writeFile(t, filepath.Join(dir, "settings_files", "bird1_20260731T090000.json"),
		`{"block_design":{"order":["training 1"]}}`)

	rows, err := Ingest(dir)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "training 125", rows[0].Block)
	assert.Equal(t, "bird1", rows[0].Subject)
	assert.Equal(t, 1, rows[0].SessionIndex)
}

func TestIngestSkipsMissingTrialdataDir(t *testing.T) {
	rows, err := Ingest(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBlockDesignOrderIndexedBySession(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "settings_files", "bird1_20260731T090000.json"),
		`{"block_design":{"order":["a","b","c"]}}`)
	name := blockNameFromSettings("bird1_20260731T090000.csv", 2, filepath.Join(dir, "settings_files"))
	assert.Equal(t, "b", name)
}

func TestFilterRowsPreservesOrder(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	rows := []Row{
		{Block: "a", Time: now},
		{Block: "b", Time: now},
		{Block: "a", Time: now},
	}
	out, err := FilterRows(rows, map[string]Filter{"Block": {Op: OpEq, Value: "a"}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Block)
	assert.Equal(t, "a", out[1].Block)
}

func TestFilterRowsUnknownColumnErrors(t *testing.T) {
	rows := []Row{{Block: "a"}}
	_, err := FilterRows(rows, map[string]Filter{"Nonsense": {Op: OpEq, Value: "x"}})
	assert.Error(t, err)
}
