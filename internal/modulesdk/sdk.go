package modulesdk

import (
	"fmt"

	"github.com/copperdogma/codex-forge-sub006/internal/progress"
)

// Runner bundles the sinks a module writes through for the lifetime of
// one invocation: the shared progress event log and, when the Runtime
// requested it, the per-stage LLM instrumentation sink.
type Runner struct {
	Stage           string
	ModuleID        string
	RunID           string
	progress        *progress.Sink
	instrumentation *progress.InstrumentationSink
}

// Open opens the sinks named in inv. stage and moduleID identify this
// invocation in every event the module emits.
func Open(inv *Invocation, stage, moduleID string) (*Runner, error) {
	sink, err := progress.OpenSink(inv.ProgressFile)
	if err != nil {
		return nil, fmt.Errorf("modulesdk: open progress sink: %w", err)
	}

	r := &Runner{Stage: stage, ModuleID: moduleID, RunID: inv.RunID, progress: sink}

	if inv.InstrumentationSink != "" {
		instr, err := progress.OpenInstrumentationSink(inv.InstrumentationSink)
		if err != nil {
			sink.Close()
			return nil, fmt.Errorf("modulesdk: open instrumentation sink: %w", err)
		}
		r.instrumentation = instr
	}

	return r, nil
}

// Close flushes and closes whichever sinks are open.
func (r *Runner) Close() error {
	if r.instrumentation != nil {
		if err := r.instrumentation.Close(); err != nil {
			return err
		}
	}
	return r.progress.Close()
}

// Emit appends one progress event for this invocation's stage/module.
func (r *Runner) Emit(status progress.Status, message string) error {
	return r.progress.Append(progress.Event{
		RunID:    r.RunID,
		Stage:    r.Stage,
		ModuleID: r.ModuleID,
		Status:   status,
		Message:  message,
	})
}

// Started emits the mandatory first event of a stage's lifecycle.
func (r *Runner) Started() error {
	return r.Emit(progress.StatusStarted, "")
}

// Progress reports current/total counts within the stage.
func (r *Runner) Progress(current, total int) error {
	return r.progress.Append(progress.Event{
		RunID:    r.RunID,
		Stage:    r.Stage,
		ModuleID: r.ModuleID,
		Status:   progress.StatusProgress,
		Current:  &current,
		Total:    &total,
	})
}

// Done emits the mandatory terminal success event, naming the
// produced artifact and the schema version it was stamped with.
func (r *Runner) Done(artifact, schemaVersion string) error {
	return r.progress.Append(progress.Event{
		RunID:         r.RunID,
		Stage:         r.Stage,
		ModuleID:      r.ModuleID,
		Status:        progress.StatusDone,
		Artifact:      artifact,
		SchemaVersion: schemaVersion,
	})
}

// Failed emits the mandatory terminal failure event.
func (r *Runner) Failed(message string) error {
	return r.Emit(progress.StatusFailed, message)
}

// Warning emits a non-terminal warning event; callers use this after
// a recoverable problem (e.g. a patch or an escalation item exhausting
// its cap under allow_stubs) rather than failing the whole stage.
func (r *Runner) Warning(message string) error {
	return r.Emit(progress.StatusWarning, message)
}

// LogLLMUsage is the shared instrumentation helper every content
// module calls after an LLM round trip. Zero-usage calls (refusals)
// are recorded too, so per-run cost aggregates never show a gap where
// a call happened but nothing was logged.
func (r *Runner) LogLLMUsage(model string, promptTokens, responseTokens int, latencyMS int64) error {
	if r.instrumentation == nil {
		return nil
	}
	return r.instrumentation.Record(progress.Call{
		Stage:          r.Stage,
		Model:          model,
		PromptTokens:   promptTokens,
		ResponseTokens: responseTokens,
		LatencyMS:      latencyMS,
	})
}
