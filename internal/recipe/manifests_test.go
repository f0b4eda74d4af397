package recipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleManifest = `
module_id: ocr_v1
entrypoint: ./bin/ocr_v1
output_schema: page.v1
default_params:
  dpi: 300
param_schema:
  dpi:
    type: integer
    minimum: 72
`

func TestLoadManifestsScansManifestFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ocr.manifest.yaml"), []byte(sampleManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.yaml"), []byte("not a manifest"), 0o644))

	reg, err := LoadManifests(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"ocr_v1"}, reg.Names())

	m, ok := reg.Get("ocr_v1")
	require.True(t, ok)
	require.Equal(t, "page.v1", m.OutputSchema)
	require.Equal(t, 300, m.DefaultParams["dpi"])
}

func TestLoadManifestsRejectsDuplicateModuleID(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.manifest.yaml"), []byte(sampleManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.manifest.yaml"), []byte(sampleManifest), 0o644))

	_, err := LoadManifests(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate module_id")
}

func TestLoadRecipeRejectsEmptyStages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: empty\n"), 0o644))

	_, err := LoadRecipe(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no stages")
}
