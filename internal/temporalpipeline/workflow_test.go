package temporalpipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/copperdogma/codex-forge-sub006/internal/recipe"
)

func stageNamed(id string, needs ...string) WorkflowStage {
	return WorkflowStage{
		Stage: recipe.PlannedStage{
			Stage:    recipe.Stage{ID: id, Needs: needs},
			ModuleID: id + "_module",
		},
		Module: recipe.ModuleManifest{ModuleID: id + "_module"},
	}
}

func TestPipelineWorkflowRunsIndependentStagesAndRespectsNeeds(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	var a *Activities
	env.OnActivity(a.RunStageActivity, mock.Anything, mock.MatchedBy(func(req StageActivityRequest) bool {
		return req.Stage.ID == "ocr"
	})).Return(StageActivityResult{StageID: "ocr", OutputPath: "/run/ocr.jsonl"}, nil)
	env.OnActivity(a.RunStageActivity, mock.Anything, mock.MatchedBy(func(req StageActivityRequest) bool {
		return req.Stage.ID == "clean"
	})).Return(StageActivityResult{StageID: "clean", OutputPath: "/run/clean.jsonl"}, nil)

	req := PipelineRequest{
		RunID:     "run-1",
		ParentDir: "/runs",
		Stages: []WorkflowStage{
			stageNamed("ocr"),
			stageNamed("clean", "ocr"),
		},
	}

	env.ExecuteWorkflow(PipelineWorkflow, req)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result PipelineResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Len(t, result.Stages, 2)
}

func TestPipelineWorkflowShortCircuitsDependentsOnFailure(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	var a *Activities
	env.OnActivity(a.RunStageActivity, mock.Anything, mock.MatchedBy(func(req StageActivityRequest) bool {
		return req.Stage.ID == "ocr"
	})).Return(StageActivityResult{}, errors.New("module exited with code 1"))

	req := PipelineRequest{
		RunID:     "run-1",
		ParentDir: "/runs",
		Stages: []WorkflowStage{
			stageNamed("ocr"),
			stageNamed("clean", "ocr"),
		},
	}

	env.ExecuteWorkflow(PipelineWorkflow, req)

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}
