package temporalpipeline

import (
	"context"
	"fmt"

	"github.com/copperdogma/codex-forge-sub006/internal/config"
	"github.com/copperdogma/codex-forge-sub006/internal/progress"
	"github.com/copperdogma/codex-forge-sub006/internal/runtime"
	"github.com/copperdogma/codex-forge-sub006/internal/store"
)

// Activities bundles the settings every activity needs to reconstruct
// a Runtime and an append-mode handle onto a run's existing event log
// and artifact layout; Temporal activities run out-of-process from the
// workflow, so nothing here may be carried over from workflow state.
type Activities struct {
	Settings *config.Settings
}

// RunStageActivity re-opens the run directory Temporal's worker process
// was handed and invokes one module entrypoint through the same
// Runtime the serial backend uses, so the two backends share every
// invocation and reconciliation behavior.
func (a *Activities) RunStageActivity(ctx context.Context, req StageActivityRequest) (StageActivityResult, error) {
	run, err := store.OpenRun(req.RunID, req.ParentDir, store.ReuseAllow, req.Temporary)
	if err != nil {
		return StageActivityResult{}, fmt.Errorf("temporalpipeline: open run %s: %w", req.RunID, err)
	}

	sink, err := progress.OpenSink(run.EventsPath())
	if err != nil {
		return StageActivityResult{}, fmt.Errorf("temporalpipeline: open progress sink: %w", err)
	}
	defer sink.Close()

	rt, err := runtime.New(a.Settings)
	if err != nil {
		return StageActivityResult{}, fmt.Errorf("temporalpipeline: build runtime: %w", err)
	}

	result, runErr := rt.RunStage(ctx, run, sink, req.Stage, req.Module, req.Inputs)
	activityResult := StageActivityResult{
		StageID:    req.Stage.ID,
		OutputPath: result.OutputPath,
		ExitCode:   result.Exit.ExitCode,
	}
	if runErr != nil {
		return activityResult, fmt.Errorf("temporalpipeline: stage %s: %w", req.Stage.ID, runErr)
	}
	return activityResult, nil
}
