// Package temporalpipeline is the optional Temporal execution backend
// for the stage DAG: a PipelineWorkflow runs one activity per stage,
// honoring each stage's Needs edges, which lets independent branches
// execute concurrently under Temporal's own scheduler instead of the
// strictly serial default in-process backend.
package temporalpipeline

import (
	"github.com/copperdogma/codex-forge-sub006/internal/recipe"
	"github.com/copperdogma/codex-forge-sub006/internal/runtime"
)

// WorkflowStage is one planned stage's workflow-visible description.
// Input paths are resolved ahead of time by the caller, since an
// artifact's path is a deterministic function of the run root, stage
// ordinal, and module id — it never depends on the producing stage
// having actually finished, only on that stage's future being awaited
// first.
type WorkflowStage struct {
	Stage  recipe.PlannedStage
	Module recipe.ModuleManifest
	Inputs runtime.StageInputs
}

// PipelineRequest is the workflow's single input parameter.
type PipelineRequest struct {
	RunID     string
	ParentDir string
	Temporary bool
	Stages    []WorkflowStage
}

// StageActivityRequest is RunStageActivity's input.
type StageActivityRequest struct {
	RunID     string
	ParentDir string
	Temporary bool
	Stage     recipe.PlannedStage
	Module    recipe.ModuleManifest
	Inputs    runtime.StageInputs
}

// StageActivityResult is RunStageActivity's output.
type StageActivityResult struct {
	StageID    string
	OutputPath string
	ExitCode   int
}

// PipelineResult is the workflow's final return value: one result per
// stage whose activity succeeded, in the order stages were declared in
// the request. Failed stages, and stages whose dependency failed, have
// no entry.
type PipelineResult struct {
	Stages []StageActivityResult
}
