package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenRunCreatesLayout(t *testing.T) {
	parent := t.TempDir()
	r, err := OpenRun("run-1", parent, ReuseRefuse, false)
	require.NoError(t, err)
	require.DirExists(t, r.RootDir)
	require.DirExists(t, r.SnapshotDir())
}

func TestOpenRunRefusesExistingDirectoryByDefault(t *testing.T) {
	parent := t.TempDir()
	_, err := OpenRun("run-1", parent, ReuseRefuse, false)
	require.NoError(t, err)

	_, err = OpenRun("run-1", parent, ReuseRefuse, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")
}

func TestOpenRunAllowsReuseWhenRequested(t *testing.T) {
	parent := t.TempDir()
	_, err := OpenRun("run-1", parent, ReuseRefuse, false)
	require.NoError(t, err)

	_, err = OpenRun("run-1", parent, ReuseAllow, false)
	require.NoError(t, err)
}

func TestOpenRunFailsOnMissingParent(t *testing.T) {
	_, err := OpenRun("run-1", filepath.Join(t.TempDir(), "missing"), ReuseRefuse, false)
	require.Error(t, err)
}

func TestArtifactPathUsesOrdinalPrefixedStageDir(t *testing.T) {
	parent := t.TempDir()
	r, err := OpenRun("run-1", parent, ReuseRefuse, false)
	require.NoError(t, err)

	path, err := r.ArtifactPath(2, "ocr_v1", "pages.jsonl")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(r.RootDir, "02_ocr_v1", "pages.jsonl"), path)
	require.DirExists(t, filepath.Join(r.RootDir, "02_ocr_v1"))
}

func TestCleanupArtifactToleratesMissingFile(t *testing.T) {
	parent := t.TempDir()
	r, err := OpenRun("run-1", parent, ReuseRefuse, false)
	require.NoError(t, err)
	require.NoError(t, r.CleanupArtifact(filepath.Join(r.RootDir, "does-not-exist")))
}

func TestCleanupArtifactRemovesFile(t *testing.T) {
	parent := t.TempDir()
	r, err := OpenRun("run-1", parent, ReuseRefuse, false)
	require.NoError(t, err)

	path, err := r.ArtifactPath(0, "ocr_v1", "pages.jsonl")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.NoError(t, r.CleanupArtifact(path))
	require.NoFileExists(t, path)
}
