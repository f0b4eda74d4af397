package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterRunSkipsTemporaryRuns(t *testing.T) {
	parent := t.TempDir()
	r, err := OpenRun("run-1", parent, ReuseRefuse, true)
	require.NoError(t, err)

	require.NoError(t, RegisterRun(r, "test"))
	entries, err := ReadManifest(parent)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRegisterRunRecordsNonTemporaryRuns(t *testing.T) {
	parent := t.TempDir()
	r, err := OpenRun("run-1", parent, ReuseRefuse, false)
	require.NoError(t, err)

	require.NoError(t, RegisterRun(r, "first run"))
	entries, err := ReadManifest(parent)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "run-1", entries[0].RunID)
	require.Equal(t, "first run", entries[0].Notes)
}

func TestReadManifestToleratesMissingFile(t *testing.T) {
	entries, err := ReadManifest(t.TempDir())
	require.NoError(t, err)
	require.Nil(t, entries)
}
