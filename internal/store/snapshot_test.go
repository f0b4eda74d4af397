package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSnapshotWritesYAMLKinds(t *testing.T) {
	parent := t.TempDir()
	r, err := OpenRun("run-1", parent, ReuseRefuse, false)
	require.NoError(t, err)

	require.NoError(t, r.Snapshot(SnapshotRecipe, map[string]any{"name": "demo"}))

	raw, err := os.ReadFile(r.SnapshotDir() + "/recipe.yaml")
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &decoded))
	require.Equal(t, "demo", decoded["name"])
}

func TestSnapshotWritesJSONKinds(t *testing.T) {
	parent := t.TempDir()
	r, err := OpenRun("run-1", parent, ReuseRefuse, false)
	require.NoError(t, err)

	require.NoError(t, r.Snapshot(SnapshotPlan, map[string]any{"stages": []string{"a", "b"}}))
	raw, err := os.ReadFile(r.SnapshotDir() + "/plan.json")
	require.NoError(t, err)
	require.Contains(t, string(raw), "\"stages\"")
}
