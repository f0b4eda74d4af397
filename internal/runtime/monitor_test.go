package runtime

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/copperdogma/codex-forge-sub006/internal/progress"
)

func TestReconcileExitSkipsWhenTerminalEventPresent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	sink, err := progress.OpenSink(path)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Append(progress.Event{
		RunID: "run-1", Stage: "ocr", ModuleID: "ocr_v1", Status: progress.StatusDone,
	}))

	require.NoError(t, ReconcileExit(sink, path, "run-1", "ocr", "ocr_v1", ExitResult{ExitCode: 0}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, countLines(string(raw)))
}

func TestReconcileExitSynthesizesFailureWhenNoTerminalEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	sink, err := progress.OpenSink(path)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Append(progress.Event{
		RunID: "run-1", Stage: "ocr", ModuleID: "ocr_v1", Status: progress.StatusStarted,
	}))

	require.NoError(t, ReconcileExit(sink, path, "run-1", "ocr", "ocr_v1", ExitResult{ExitCode: 139}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, countLines(string(raw)))
	require.Contains(t, string(raw), "exited with code 139")
}

func TestLastStageStatusToleratesMissingFile(t *testing.T) {
	status, found, err := lastStageStatus(filepath.Join(t.TempDir(), "missing.jsonl"), "ocr")
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, progress.Status(""), status)
}

func countLines(s string) int {
	n := 0
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	return n
}
