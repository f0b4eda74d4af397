package resume

import (
	"context"
	"fmt"

	"github.com/copperdogma/codex-forge-sub006/internal/recipe"
	"github.com/copperdogma/codex-forge-sub006/internal/store"
)

// Action is what the controller decided for a stage.
type Action string

const (
	// ActionRun invokes the module.
	ActionRun Action = "run"
	// ActionSkip leaves the existing artifact and state entry alone.
	ActionSkip Action = "skip"
)

// Decision is the controller's verdict for one stage, plus whether an
// existing artifact must be cleaned up before the module runs.
type Decision struct {
	Action          Action
	CleanupArtifact bool
	Reason          string
}

// StageState is what the controller needs to know about a stage's
// prior run to apply the precedence table.
type StageState struct {
	Done                 bool
	ArtifactExists       bool
	SchemaVersionMatches bool
}

// Controller holds the hash cache the stale-input guard consults.
type Controller struct {
	Hashes *HashCache
}

// New wraps an already-open HashCache.
func New(hashes *HashCache) *Controller {
	return &Controller{Hashes: hashes}
}

// Decide implements the exact precedence force > skip-done > run, with
// the stale-input guard applied ahead of the skip-done branch: a
// stage whose declared inputs changed since its last recorded run is
// always re-run, regardless of skip-done.
func (c *Controller) Decide(ctx context.Context, runID string, stage recipe.PlannedStage, force, skipDone bool, state StageState, inputPaths []string) (Decision, error) {
	if force {
		return Decision{Action: ActionRun, CleanupArtifact: state.ArtifactExists, Reason: "force"}, nil
	}

	hashesMatch, err := c.Hashes.Matches(ctx, runID, stage.ID, inputPaths)
	if err != nil {
		return Decision{}, err
	}

	if skipDone && state.Done && state.ArtifactExists && state.SchemaVersionMatches && hashesMatch {
		return Decision{Action: ActionSkip, Reason: "skip-done"}, nil
	}

	if !hashesMatch && skipDone && state.Done {
		return Decision{Action: ActionRun, CleanupArtifact: state.ArtifactExists, Reason: "stale inputs"}, nil
	}

	return Decision{Action: ActionRun, CleanupArtifact: state.ArtifactExists, Reason: "run"}, nil
}

// InvalidateDownstream walks plan forward from fromStage (inclusive)
// and, unless keepDownstream is set, removes every downstream stage's
// artifact and forgets its recorded input hash so it is forced to
// re-run. The stages' entries in pipeline_state.json are not reset or
// removed here.
func InvalidateDownstream(ctx context.Context, hashes *HashCache, run *store.Run, plan *recipe.Plan, fromStage string, keepDownstream bool) error {
	if keepDownstream {
		return nil
	}

	affected, err := downstreamOf(plan, fromStage)
	if err != nil {
		return err
	}

	for _, stage := range affected {
		artifactPath, err := run.ArtifactPath(stage.Ordinal, stage.ModuleID, stage.OutputName)
		if err != nil {
			return err
		}
		if err := run.CleanupArtifact(artifactPath); err != nil {
			return fmt.Errorf("resume: invalidate %s: %w", stage.ID, err)
		}
		if err := hashes.Forget(ctx, run.RunID, stage.ID); err != nil {
			return fmt.Errorf("resume: invalidate %s: %w", stage.ID, err)
		}
	}
	return nil
}

// downstreamOf returns fromStage and every stage transitively
// dependent on it (via needs), in plan order.
func downstreamOf(plan *recipe.Plan, fromStage string) ([]recipe.PlannedStage, error) {
	if _, ok := plan.StageByID(fromStage); !ok {
		return nil, fmt.Errorf("resume: unknown stage %q", fromStage)
	}

	reachable := map[string]bool{fromStage: true}
	changed := true
	for changed {
		changed = false
		for _, s := range plan.Stages {
			if reachable[s.ID] {
				continue
			}
			for _, need := range s.Needs {
				if reachable[need] {
					reachable[s.ID] = true
					changed = true
					break
				}
			}
		}
	}

	var result []recipe.PlannedStage
	for _, s := range plan.Stages {
		if reachable[s.ID] {
			result = append(result, s)
		}
	}
	return result, nil
}
