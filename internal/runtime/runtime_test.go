package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/copperdogma/codex-forge-sub006/internal/config"
	"github.com/copperdogma/codex-forge-sub006/internal/recipe"
	"github.com/copperdogma/codex-forge-sub006/internal/store"
)

func TestBuildArgsOrdersInputsAndOmitsNilParams(t *testing.T) {
	parent := t.TempDir()
	run, err := store.OpenRun("run-1", parent, store.ReuseRefuse, false)
	require.NoError(t, err)

	stage := recipe.PlannedStage{
		Stage: recipe.Stage{
			ID:     "clean_pages",
			Module: "clean_llm_v1",
		},
		Params:     map[string]any{"min_conf": 0.8, "dry_run": nil},
		Ordinal:    1,
		ModuleID:   "clean_llm_v1",
		OutputName: "clean.jsonl",
	}
	module := recipe.ModuleManifest{
		ModuleID:     "clean_llm_v1",
		InputSchemas: []string{"ocr_page.v1"},
	}
	inputs := StageInputs{"ocr_page.v1": "/runs/run-1/00_ocr_v1/ocr.jsonl"}

	args := buildArgs(run, stage, module, inputs, "/runs/run-1/01_clean_llm_v1/clean.jsonl")

	require.Equal(t, []string{
		"--in-ocr_page.v1", "/runs/run-1/00_ocr_v1/ocr.jsonl",
		"--out", "/runs/run-1/01_clean_llm_v1/clean.jsonl",
		"--state-file", run.StatePath(),
		"--progress-file", run.EventsPath(),
		"--run-id", "run-1",
		"--min_conf", "0.8",
	}, args)
}

func TestNewRejectsUnknownIsolation(t *testing.T) {
	settings := &config.Settings{}
	settings.Runtime.Isolation = "tmux"

	_, err := New(settings)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown isolation mode")
}

func TestNewDefaultsToSubprocessBackend(t *testing.T) {
	settings := &config.Settings{}
	settings.Runtime.Isolation = "subprocess"

	rt, err := New(settings)
	require.NoError(t, err)
	require.Equal(t, "process", rt.Backend.Name())
}
