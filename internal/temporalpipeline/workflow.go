package temporalpipeline

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const defaultStageTimeout = 30 * time.Minute

// PipelineWorkflow runs every stage in req.Stages as its own activity,
// scheduling a stage only once every stage it Needs has reached a
// terminal state. Independent branches of the DAG therefore run
// concurrently, bounded only by the worker's own activity concurrency —
// the default in-process backend stays strictly serial by comparison.
func PipelineWorkflow(ctx workflow.Context, req PipelineRequest) (PipelineResult, error) {
	logger := workflow.GetLogger(ctx)

	futures := make(map[string]workflow.Future, len(req.Stages))
	settables := make(map[string]workflow.Settable, len(req.Stages))
	for _, s := range req.Stages {
		f, set := workflow.NewFuture(ctx)
		futures[s.Stage.ID] = f
		settables[s.Stage.ID] = set
	}

	var a *Activities

	for _, s := range req.Stages {
		stage := s
		workflow.Go(ctx, func(gctx workflow.Context) {
			for _, need := range stage.Stage.Needs {
				if err := futures[need].Get(gctx, nil); err != nil {
					settables[stage.Stage.ID].SetError(fmt.Errorf("stage %s: dependency %q failed: %w", stage.Stage.ID, need, err))
					return
				}
			}

			logger.Info("executing stage", "stage", stage.Stage.ID, "module", stage.Module.ModuleID)

			opts := workflow.ActivityOptions{
				StartToCloseTimeout: defaultStageTimeout,
				RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
			}
			actCtx := workflow.WithActivityOptions(gctx, opts)

			activityReq := StageActivityRequest{
				RunID:     req.RunID,
				ParentDir: req.ParentDir,
				Temporary: req.Temporary,
				Stage:     stage.Stage,
				Module:    stage.Module,
				Inputs:    stage.Inputs,
			}

			var result StageActivityResult
			if err := workflow.ExecuteActivity(actCtx, a.RunStageActivity, activityReq).Get(gctx, &result); err != nil {
				settables[stage.Stage.ID].SetError(err)
				return
			}
			settables[stage.Stage.ID].Set(result, nil)
		})
	}

	results := make([]StageActivityResult, 0, len(req.Stages))
	var firstErr error
	for _, s := range req.Stages {
		var result StageActivityResult
		if err := futures[s.Stage.ID].Get(ctx, &result); err != nil {
			logger.Error("stage failed", "stage", s.Stage.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, result)
	}
	if firstErr != nil {
		return PipelineResult{Stages: results}, firstErr
	}
	return PipelineResult{Stages: results}, nil
}
