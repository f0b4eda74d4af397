package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/copperdogma/codex-forge-sub006/internal/config"
	"github.com/copperdogma/codex-forge-sub006/internal/progress"
	"github.com/copperdogma/codex-forge-sub006/internal/recipe"
	"github.com/copperdogma/codex-forge-sub006/internal/store"
)

// Runtime invokes module entrypoints against a planned stage, wiring
// the invocation contract's flag surface, isolating the call behind a
// Backend, and reconciling the progress log once the process exits.
type Runtime struct {
	Backend  Backend
	Settings *config.Settings
}

// New builds a Runtime for settings.Runtime.Isolation, refusing
// unsupported isolation modes up front rather than at first use.
func New(settings *config.Settings) (*Runtime, error) {
	switch settings.Runtime.Isolation {
	case "", "subprocess":
		return &Runtime{Backend: NewSubprocessBackend(), Settings: settings}, nil
	case "docker":
		backend, err := NewDockerBackend()
		if err != nil {
			return nil, err
		}
		return &Runtime{Backend: backend, Settings: settings}, nil
	default:
		return nil, fmt.Errorf("runtime: unknown isolation mode %q", settings.Runtime.Isolation)
	}
}

// StageInputs maps each schema name a module declares in input_schemas
// to the artifact path that satisfies it.
type StageInputs map[string]string

// StageResult is what RunStage hands back once a module invocation
// has completed and its output has been reconciled.
type StageResult struct {
	OutputPath string
	Exit       ExitResult
}

// RunStage builds the module's argv per the invocation contract,
// starts it under the configured backend with
// <stage dir>/instrumentation.jsonl as its instrumentation sink, tees
// output to a per-stage driver log, and reconciles the progress log against the process
// exit.
func (rt *Runtime) RunStage(ctx context.Context, run *store.Run, sink *progress.Sink, stage recipe.PlannedStage, module recipe.ModuleManifest, inputs StageInputs) (StageResult, error) {
	stageDir, err := run.StageDir(stage.Ordinal, module.ModuleID)
	if err != nil {
		return StageResult{}, err
	}
	outputPath := filepath.Join(stageDir, stage.OutputName)

	driverLogPath := filepath.Join(stageDir, "driver.log")
	driverLog, err := os.OpenFile(driverLogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return StageResult{}, fmt.Errorf("runtime: open driver log %s: %w", driverLogPath, err)
	}
	defer driverLog.Close()

	args := buildArgs(run, stage, module, inputs, outputPath)
	args = append(args, "--instrumentation-sink", filepath.Join(stageDir, "instrumentation.jsonl"))
	pidfilePath := filepath.Join(stageDir, "module.pid")

	env := os.Environ()
	for k, v := range rt.Settings.Runtime.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	spec := ProcessSpec{
		Command: module.Entrypoint,
		Args:    args,
		Dir:     stageDir,
		Env:     env,
		Stdout:  driverLog,
		Stderr:  driverLog,
	}

	var handle Handle
	if dockerBackend, ok := rt.Backend.(*DockerBackend); ok {
		handle, err = dockerBackend.StartDocker(ctx, DockerSpec{
			ProcessSpec: spec,
			Image:       module.Image,
			Network:     rt.Settings.Runtime.DockerNetwork,
			Mounts: []DockerMount{
				{Source: run.RootDir, Target: "/run", ReadOnly: false},
			},
		})
	} else {
		handle, err = rt.Backend.Start(ctx, spec)
	}
	if err != nil {
		return StageResult{}, fmt.Errorf("runtime: start module %s: %w", module.ModuleID, err)
	}

	if err := writePidfile(pidfilePath, handle); err != nil {
		return StageResult{}, err
	}

	exit, err := rt.Backend.Wait(ctx, handle)
	if err != nil {
		return StageResult{}, fmt.Errorf("runtime: wait for module %s: %w", module.ModuleID, err)
	}

	if reconcileErr := ReconcileExit(sink, run.EventsPath(), run.RunID, stage.ID, module.ModuleID, exit); reconcileErr != nil {
		return StageResult{OutputPath: outputPath, Exit: exit}, reconcileErr
	}

	if exit.ExitCode != 0 {
		return StageResult{OutputPath: outputPath, Exit: exit}, fmt.Errorf("runtime: module %s exited with code %d", module.ModuleID, exit.ExitCode)
	}

	return StageResult{OutputPath: outputPath, Exit: exit}, nil
}

func writePidfile(path string, handle Handle) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%v\n", handle)), 0o644)
}

// buildArgs assembles the stable flag surface every module
// understands: one input flag per declared schema, the output flag,
// the observability flags, and one flag per declared parameter
// (omitted entirely when the value is nil). RunStage appends the
// instrumentation-sink flag after these.
func buildArgs(run *store.Run, stage recipe.PlannedStage, module recipe.ModuleManifest, inputs StageInputs, outputPath string) []string {
	var args []string

	schemas := append([]string(nil), module.InputSchemas...)
	sort.Strings(schemas)
	for _, schema := range schemas {
		if path, ok := inputs[schema]; ok {
			args = append(args, "--in-"+schema, path)
		}
	}

	args = append(args, "--out", outputPath)
	args = append(args, "--state-file", run.StatePath())
	args = append(args, "--progress-file", run.EventsPath())
	args = append(args, "--run-id", run.RunID)

	names := make([]string, 0, len(stage.Params))
	for name := range stage.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := stage.Params[name]
		if value == nil {
			continue
		}
		args = append(args, "--"+name, fmt.Sprintf("%v", value))
	}

	return args
}
