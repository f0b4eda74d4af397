// Command codex-forge is the pipeline driver: it loads a recipe and its
// module manifests, plans the stage DAG, and runs each stage under the
// resume/invalidation controller, recording progress, instrumentation,
// and pipeline state as it goes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/copperdogma/codex-forge-sub006/internal/config"
	"github.com/copperdogma/codex-forge-sub006/internal/escalation"
	"github.com/copperdogma/codex-forge-sub006/internal/progress"
	"github.com/copperdogma/codex-forge-sub006/internal/recipe"
	"github.com/copperdogma/codex-forge-sub006/internal/resume"
	"github.com/copperdogma/codex-forge-sub006/internal/runtime"
	"github.com/copperdogma/codex-forge-sub006/internal/state"
	"github.com/copperdogma/codex-forge-sub006/internal/store"
	"github.com/copperdogma/codex-forge-sub006/internal/temporalpipeline"
)

func configureLogger(logLevel string, dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if dev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func main() {
	recipePath := flag.String("recipe", "", "path to the recipe YAML document (required)")
	settingsPath := flag.String("settings", "", "path to a codex-forge TOML settings overlay")
	manifestDir := flag.String("manifest-dir", "", "directory of *.manifest.yaml module manifests (repeatable via comma-separated list)")
	runID := flag.String("run-id", "", "run id; generated from the current time if omitted")
	outputDir := flag.String("output-dir", "", "parent directory runs are created under; defaults to settings store.root_dir")
	startFrom := flag.String("start-from", "", "only run stages from this stage id onward (inclusive)")
	endAt := flag.String("end-at", "", "only run stages up to this stage id (inclusive)")
	skipDone := flag.Bool("skip-done", false, "skip a stage whose prior run is complete, artifact present, schema matching, and inputs unchanged")
	force := flag.Bool("force", false, "re-run every stage regardless of prior completion")
	keepDownstream := flag.Bool("keep-downstream", false, "when re-running a stage, do not invalidate its downstream stages")
	allowRunIDReuse := flag.Bool("allow-run-id-reuse", false, "reuse an existing run directory instead of failing")
	temporaryRun := flag.Bool("temporary", false, "do not register this run in the process-wide manifest")
	instrument := flag.Bool("instrument", false, "aggregate LLM instrumentation into <run>/instrumentation.json")
	priceTable := flag.String("price-table", "", "path to a TOML LLM price sheet; overrides settings.progress.price_sheet_path")
	dryRun := flag.Bool("dry-run", false, "plan the run and print it without executing any stage")
	dumpPlan := flag.Bool("dump-plan", false, "print the planned stage order and exit, implies --dry-run")
	mock := flag.Bool("mock", false, "register the built-in mock module instead of requiring --manifest-dir")
	backend := flag.String("backend", "serial", "execution backend: serial or temporal")
	temporalHostPort := flag.String("temporal-host-port", "", "temporal frontend host:port; overrides settings.temporal.host_port")
	progressRedisChannel := flag.String("progress-redis-channel", "", "mirror progress events to this redis pub/sub channel")
	mirrorS3Bucket := flag.String("mirror-s3-bucket", "", "mirror the run directory to this S3 bucket as it progresses")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	flag.Parse()

	logger := configureLogger(*logLevel, *dev)

	if *recipePath == "" {
		logger.Error("--recipe is required")
		os.Exit(2)
	}

	settings, err := loadSettings(*settingsPath)
	if err != nil {
		logger.Error("failed to load settings", "error", err)
		os.Exit(2)
	}
	if *outputDir != "" {
		settings.Store.RootDir = *outputDir
	}
	if *force && *outputDir == "" {
		logger.Error("--force refused on the canonical output directory; pass --output-dir to target a run-specific directory", "canonical_root", settings.Store.RootDir)
		os.Exit(2)
	}
	if *priceTable != "" {
		settings.Progress.PriceSheetPath = *priceTable
	}
	if *temporalHostPort != "" {
		settings.Temporal.HostPort = *temporalHostPort
	}

	if err := os.MkdirAll(settings.Store.RootDir, 0o755); err != nil {
		logger.Error("failed to create output directory", "dir", settings.Store.RootDir, "error", err)
		os.Exit(2)
	}

	id := *runID
	if id == "" {
		id = fmt.Sprintf("run-%s-%s", time.Now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
	}

	ctx := context.Background()
	if err := runPipeline(ctx, logger, pipelineOptions{
		RecipePath:           *recipePath,
		ManifestDir:          *manifestDir,
		Settings:             settings,
		RunID:                id,
		StartFrom:            *startFrom,
		EndAt:                *endAt,
		SkipDone:             *skipDone,
		Force:                *force,
		KeepDownstream:       *keepDownstream,
		AllowRunIDReuse:      *allowRunIDReuse,
		Temporary:            *temporaryRun,
		Instrument:           *instrument,
		DryRun:               *dryRun || *dumpPlan,
		DumpPlan:             *dumpPlan,
		Mock:                 *mock,
		Backend:              *backend,
		ProgressRedisChannel: *progressRedisChannel,
		MirrorS3Bucket:       *mirrorS3Bucket,
	}); err != nil {
		logger.Error("pipeline run failed", "run_id", id, "error", err)
		os.Exit(1)
	}
}

func loadSettings(path string) (*config.Settings, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// pipelineOptions collects every driver flag into one value so
// runPipeline reads like a single coherent procedure instead of a
// string of closures over package-level flag variables.
type pipelineOptions struct {
	RecipePath           string
	ManifestDir          string
	Settings             *config.Settings
	RunID                string
	StartFrom            string
	EndAt                string
	SkipDone             bool
	Force                bool
	KeepDownstream       bool
	AllowRunIDReuse      bool
	Temporary            bool
	Instrument           bool
	DryRun               bool
	DumpPlan             bool
	Mock                 bool
	Backend              string
	ProgressRedisChannel string
	MirrorS3Bucket       string
}

func runPipeline(ctx context.Context, logger *slog.Logger, opts pipelineOptions) error {
	rcp, err := recipe.LoadRecipe(opts.RecipePath)
	if err != nil {
		return err
	}

	registry, err := loadRegistry(opts)
	if err != nil {
		return err
	}

	plan, err := recipe.BuildPlan(rcp, registry)
	if err != nil {
		return err
	}

	plan, startOrdinal, err := narrowPlan(plan, opts.StartFrom, opts.EndAt)
	if err != nil {
		return err
	}

	if opts.DumpPlan {
		for _, stage := range plan.Stages {
			fmt.Printf("%02d  %-20s module=%-24s needs=%v out=%s\n", stage.Ordinal, stage.ID, stage.ModuleID, stage.Needs, stage.OutputName)
		}
	}
	if opts.DryRun {
		return nil
	}

	policy := store.ReuseRefuse
	if opts.AllowRunIDReuse {
		policy = store.ReuseAllow
	}
	run, err := store.OpenRun(opts.RunID, opts.Settings.Store.RootDir, policy, opts.Temporary)
	if err != nil {
		return err
	}
	if err := store.RegisterRun(run, rcp.Name); err != nil {
		return err
	}
	if err := snapshotRun(run, rcp, plan, opts.Settings); err != nil {
		return err
	}

	pstate, err := state.Load(run.StatePath())
	if err != nil {
		return err
	}
	stageIDs := make([]string, 0, len(plan.Stages))
	for _, s := range plan.Stages {
		stageIDs = append(stageIDs, s.ID)
	}
	if pstate == nil {
		pstate = state.New(run.RunID, stageIDs)
	}

	sink, err := progress.OpenSink(run.EventsPath())
	if err != nil {
		return err
	}
	defer sink.Close()
	if opts.ProgressRedisChannel != "" {
		addr := opts.Settings.Progress.RedisAddr
		mirror, mirrErr := progress.NewRedisMirror(addr, opts.ProgressRedisChannel)
		if mirrErr != nil {
			logger.Warn("progress redis mirror unavailable", "error", mirrErr)
		} else {
			sink.AddMirror(mirror)
			defer mirror.Close()
		}
	}

	var s3Mirror *store.S3Mirror
	if opts.MirrorS3Bucket != "" {
		s3Mirror, err = store.NewS3Mirror(ctx, opts.MirrorS3Bucket, opts.Settings.Store.MirrorS3Region, opts.Settings.Store.MirrorS3Prefix)
		if err != nil {
			logger.Warn("s3 mirror unavailable", "error", err)
			s3Mirror = nil
		}
	}

	hashes, err := resume.OpenHashCache(opts.Settings.Resume.HashCacheDB)
	if err != nil {
		return err
	}
	defer hashes.Close()
	controller := resume.New(hashes)

	rt, err := runtime.New(opts.Settings)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	pstate.Start(now)
	if err := pstate.Save(run.StatePath()); err != nil {
		return err
	}

	perStageCalls := map[string][]progress.Call{}

	if strings.EqualFold(opts.Backend, "temporal") {
		if err := runTemporalBackend(ctx, logger, run, opts, registry, plan, startOrdinal); err != nil {
			pstate.Crash(time.Now().UTC())
			_ = pstate.Save(run.StatePath())
			return err
		}
	} else if err := runSerialBackend(ctx, logger, run, opts, registry, plan, startOrdinal, pstate, controller, rt, sink, s3Mirror, perStageCalls); err != nil {
		// A stage that failed leaves a failed entry, which Finish turns
		// into a failed run; any other error marks the run crashed.
		pstate.Finish(time.Now().UTC())
		if pstate.Status != state.RunFailed {
			pstate.Crash(time.Now().UTC())
		}
		_ = pstate.Save(run.StatePath())
		return err
	}

	pstate.Finish(time.Now().UTC())
	if err := pstate.Save(run.StatePath()); err != nil {
		return err
	}

	if opts.Instrument {
		if err := writeInstrumentationReport(run, opts.Settings, perStageCalls); err != nil {
			logger.Warn("failed to write instrumentation report", "error", err)
		}
	}

	if pstate.Status == state.RunFailed {
		return fmt.Errorf("codex-forge: run %s failed", run.RunID)
	}
	return nil
}

func loadRegistry(opts pipelineOptions) (*recipe.ModuleRegistry, error) {
	var dirs []string
	if opts.ManifestDir != "" {
		for _, d := range strings.Split(opts.ManifestDir, ",") {
			d = strings.TrimSpace(d)
			if d != "" {
				dirs = append(dirs, d)
			}
		}
	}
	if opts.Settings != nil {
		dirs = append(dirs, opts.Settings.Runtime.ManifestDirs...)
	}

	var registry *recipe.ModuleRegistry
	var err error
	if len(dirs) > 0 {
		registry, err = recipe.LoadManifestDirs(dirs)
		if err != nil {
			return nil, err
		}
	} else {
		registry = recipe.NewModuleRegistry()
	}

	if opts.Mock {
		registry.RegisterBuiltin(mockModuleManifest())
	}
	return registry, nil
}

func mockModuleManifest() recipe.ModuleManifest {
	return recipe.ModuleManifest{
		ModuleID:     "mockmodule_v1",
		Entrypoint:   "codex-forge-mockmodule",
		InputSchemas: []string{"mock_item.v1"},
		OutputSchema: "mock_resolved_item.v1",
		DefaultParams: map[string]any{
			"max_attempts": 3,
			"allow_stubs":  false,
		},
		ParamSchema: map[string]recipe.ParamSpec{
			"max_attempts": {Type: "integer"},
			"allow_stubs":  {Type: "boolean"},
		},
	}
}

// narrowPlan validates --start-from/--end-at against the plan and
// truncates it to stages at or before endAt — a hard stop on forward
// progress. It deliberately does NOT drop stages before startFrom: the
// resume controller still needs to evaluate their input hashes so a
// stale upstream artifact can force a re-run even when the caller only
// asked to resume from a later stage. The returned startOrdinal tells
// the backend where module invocation itself should begin; stages
// before it are resume-checked but never force-run on account of
// --start-from alone.
func narrowPlan(plan *recipe.Plan, startFrom, endAt string) (*recipe.Plan, int, error) {
	startOrdinal, endIdx := 0, len(plan.Stages)-1
	if startFrom != "" {
		s, ok := plan.StageByID(startFrom)
		if !ok {
			return nil, 0, fmt.Errorf("codex-forge: --start-from references unknown stage %q", startFrom)
		}
		startOrdinal = s.Ordinal
	}
	if endAt != "" {
		s, ok := plan.StageByID(endAt)
		if !ok {
			return nil, 0, fmt.Errorf("codex-forge: --end-at references unknown stage %q", endAt)
		}
		endIdx = s.Ordinal
	}
	if startOrdinal > endIdx {
		return nil, 0, fmt.Errorf("codex-forge: --start-from %q occurs after --end-at %q", startFrom, endAt)
	}
	if endAt == "" {
		return plan, startOrdinal, nil
	}
	narrowed := &recipe.Plan{}
	for _, s := range plan.Stages {
		if s.Ordinal <= endIdx {
			narrowed.Stages = append(narrowed.Stages, s)
		}
	}
	return narrowed, startOrdinal, nil
}

// stagesFrom returns the stages of plan at or after startOrdinal, for
// backends with no resume controller of their own (the temporal
// backend runs whatever stage list it is handed unconditionally, so
// --start-from must trim its invocation list directly).
func stagesFrom(plan *recipe.Plan, startOrdinal int) []recipe.PlannedStage {
	if startOrdinal == 0 {
		return plan.Stages
	}
	var stages []recipe.PlannedStage
	for _, s := range plan.Stages {
		if s.Ordinal >= startOrdinal {
			stages = append(stages, s)
		}
	}
	return stages
}

func snapshotRun(run *store.Run, rcp *recipe.Recipe, plan *recipe.Plan, settings *config.Settings) error {
	if err := run.Snapshot(store.SnapshotRecipe, rcp); err != nil {
		return err
	}
	if err := run.Snapshot(store.SnapshotPlan, plan); err != nil {
		return err
	}
	if err := run.Snapshot(store.SnapshotSettings, settings); err != nil {
		return err
	}
	return nil
}

func resolveInputs(run *store.Run, plan *recipe.Plan, registry *recipe.ModuleRegistry, stage recipe.PlannedStage) (runtime.StageInputs, error) {
	inputs := runtime.StageInputs{}
	for _, need := range stage.Needs {
		upstream, ok := plan.StageByID(need)
		if !ok {
			return nil, fmt.Errorf("codex-forge: stage %q needs unplanned stage %q", stage.ID, need)
		}
		upstreamModule, ok := registry.Get(upstream.ModuleID)
		if !ok {
			return nil, fmt.Errorf("codex-forge: stage %q needs unknown module %q", upstream.ID, upstream.ModuleID)
		}
		path, err := run.ArtifactPath(upstream.Ordinal, upstream.ModuleID, upstream.OutputName)
		if err != nil {
			return nil, err
		}
		inputs[upstreamModule.OutputSchema] = path
	}
	return inputs, nil
}

func runSerialBackend(
	ctx context.Context,
	logger *slog.Logger,
	run *store.Run,
	opts pipelineOptions,
	registry *recipe.ModuleRegistry,
	plan *recipe.Plan,
	startOrdinal int,
	pstate *state.PipelineState,
	controller *resume.Controller,
	rt *runtime.Runtime,
	sink *progress.Sink,
	s3Mirror *store.S3Mirror,
	perStageCalls map[string][]progress.Call,
) error {
	for _, stage := range plan.Stages {
		module, ok := registry.Get(stage.ModuleID)
		if !ok {
			return fmt.Errorf("codex-forge: stage %q references unknown module %q", stage.ID, stage.ModuleID)
		}

		inputs, err := resolveInputs(run, plan, registry, stage)
		if err != nil {
			return err
		}
		artifactPath, err := run.ArtifactPath(stage.Ordinal, module.ModuleID, stage.OutputName)
		if err != nil {
			return err
		}

		existing := pstate.Stages[stage.ID]
		stageState := resume.StageState{
			Done:                 existing.Status == state.StageDone,
			ArtifactExists:       fileExists(artifactPath),
			SchemaVersionMatches: existing.SchemaVersion == module.OutputSchema,
		}
		var inputPaths []string
		for _, p := range inputs {
			inputPaths = append(inputPaths, p)
		}

		// --start-from bounds where invocation begins; on its own it
		// leaves earlier stages alone. Paired with --skip-done it still
		// lets the resume controller hash-check those earlier stages,
		// so a stale upstream artifact re-runs them even though the
		// caller only asked to resume from a later one — but --force
		// never applies to a stage on account of --start-from alone.
		var decision resume.Decision
		if stage.Ordinal < startOrdinal && !opts.SkipDone {
			decision = resume.Decision{Action: resume.ActionSkip, Reason: "before --start-from"}
		} else {
			force := opts.Force && stage.Ordinal >= startOrdinal
			decision, err = controller.Decide(ctx, run.RunID, stage, force, opts.SkipDone, stageState, inputPaths)
			if err != nil {
				return err
			}
		}

		if decision.Action == resume.ActionSkip {
			logger.Info("skipping stage", "stage", stage.ID, "reason", decision.Reason)
			pstate.SkipStage(stage.ID, time.Now().UTC())
			continue
		}

		if decision.CleanupArtifact {
			if err := run.CleanupArtifact(artifactPath); err != nil {
				return err
			}
		}
		if err := resume.InvalidateDownstream(ctx, controller.Hashes, run, plan, stage.ID, opts.KeepDownstream); err != nil {
			return err
		}

		logger.Info("running stage", "stage", stage.ID, "module", module.ModuleID, "reason", decision.Reason)
		pstate.StartStage(stage.ID, time.Now().UTC())
		if err := pstate.Save(run.StatePath()); err != nil {
			return err
		}

		result, runErr := rt.RunStage(ctx, run, sink, stage, module, inputs)
		if runErr != nil {
			pstate.FinishStage(stage.ID, state.StageFailed, result.OutputPath, module.OutputSchema, runErr.Error(), nil, time.Now().UTC())
			_ = pstate.Save(run.StatePath())
			return runErr
		}

		resolutionPath := filepath.Join(filepath.Dir(result.OutputPath), "resolution_records.jsonl")
		if fileExists(resolutionPath) {
			if capErr := escalation.CheckCapCompliance(resolutionPath, stage.AllowStubs); capErr != nil {
				pstate.FinishStage(stage.ID, state.StageFailed, result.OutputPath, module.OutputSchema, capErr.Error(), nil, time.Now().UTC())
				_ = pstate.Save(run.StatePath())
				return capErr
			}
		}

		if err := controller.Hashes.Record(ctx, run.RunID, stage.ID, inputPaths); err != nil {
			return err
		}

		if opts.Instrument {
			calls, instErr := progress.ReadCalls(filepath.Join(filepath.Dir(result.OutputPath), "instrumentation.jsonl"))
			if instErr != nil {
				logger.Warn("failed to read instrumentation for stage", "stage", stage.ID, "error", instErr)
			} else {
				perStageCalls[stage.ID] = calls
			}
		}

		pstate.FinishStage(stage.ID, state.StageDone, result.OutputPath, module.OutputSchema, "", map[string]string{}, time.Now().UTC())
		if err := pstate.Save(run.StatePath()); err != nil {
			return err
		}

		if s3Mirror != nil {
			for _, mirrErr := range s3Mirror.MirrorRun(ctx, run) {
				logger.Warn("s3 mirror error", "error", mirrErr)
			}
		}
	}
	return nil
}

func runTemporalBackend(ctx context.Context, logger *slog.Logger, run *store.Run, opts pipelineOptions, registry *recipe.ModuleRegistry, plan *recipe.Plan, startOrdinal int) error {
	req := temporalpipeline.PipelineRequest{
		RunID:     run.RunID,
		ParentDir: run.ParentDir,
		Temporary: opts.Temporary,
	}
	// The temporal backend has no resume controller of its own, so
	// --start-from must trim the invocation list directly here rather
	// than relying on per-stage Decide calls.
	for _, stage := range stagesFrom(plan, startOrdinal) {
		module, ok := registry.Get(stage.ModuleID)
		if !ok {
			return fmt.Errorf("codex-forge: stage %q references unknown module %q", stage.ID, stage.ModuleID)
		}
		inputs, err := resolveInputs(run, plan, registry, stage)
		if err != nil {
			return err
		}
		req.Stages = append(req.Stages, temporalpipeline.WorkflowStage{Stage: stage, Module: module, Inputs: inputs})
	}

	logger.Info("dispatching run to temporal backend", "run_id", run.RunID, "host_port", opts.Settings.Temporal.HostPort)
	return temporalpipeline.RunPipeline(ctx, opts.Settings, req)
}

func writeInstrumentationReport(run *store.Run, settings *config.Settings, perStageCalls map[string][]progress.Call) error {
	prices, err := progress.LoadPriceSheetOrEmpty(settings.Progress.PriceSheetPath)
	if err != nil {
		return err
	}
	report := progress.Aggregate(run.RunID, perStageCalls, prices)
	data, err := jsonIndent(report)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(run.RootDir, "instrumentation.json"), data, 0o644)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func jsonIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
