package modulesdk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/copperdogma/codex-forge-sub006/internal/progress"
)

func TestOpenEmitsLifecycleEventsAndInstrumentation(t *testing.T) {
	dir := t.TempDir()
	inv := &Invocation{
		ProgressFile:        filepath.Join(dir, "events.jsonl"),
		RunID:               "run-1",
		InstrumentationSink: filepath.Join(dir, "instrumentation.jsonl"),
	}

	runner, err := Open(inv, "clean_pages", "clean_llm_v1")
	require.NoError(t, err)

	require.NoError(t, runner.Started())
	require.NoError(t, runner.Progress(1, 10))
	require.NoError(t, runner.LogLLMUsage("gpt-5", 100, 50, 250))
	require.NoError(t, runner.Done("clean.jsonl", "clean_page.v1"))
	require.NoError(t, runner.Close())

	raw, err := os.ReadFile(inv.ProgressFile)
	require.NoError(t, err)
	require.Contains(t, string(raw), "\"started\"")
	require.Contains(t, string(raw), "\"done\"")

	calls, err := progress.ReadCalls(inv.InstrumentationSink)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.Equal(t, "gpt-5", calls[0].Model)
}

func TestOpenWithoutInstrumentationSinkSkipsLLMUsageSilently(t *testing.T) {
	dir := t.TempDir()
	inv := &Invocation{ProgressFile: filepath.Join(dir, "events.jsonl"), RunID: "run-1"}

	runner, err := Open(inv, "ocr", "ocr_v1")
	require.NoError(t, err)
	require.NoError(t, runner.LogLLMUsage("gpt-5", 1, 1, 1))
	require.NoError(t, runner.Close())
}

func TestFailedAndWarningEmitEvents(t *testing.T) {
	dir := t.TempDir()
	inv := &Invocation{ProgressFile: filepath.Join(dir, "events.jsonl"), RunID: "run-1"}

	runner, err := Open(inv, "ocr", "ocr_v1")
	require.NoError(t, err)
	require.NoError(t, runner.Warning("patch skipped"))
	require.NoError(t, runner.Failed("boom"))
	require.NoError(t, runner.Close())

	raw, err := os.ReadFile(inv.ProgressFile)
	require.NoError(t, err)
	require.Contains(t, string(raw), "patch skipped")
	require.Contains(t, string(raw), "boom")
}
