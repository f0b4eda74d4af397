package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewPrepopulatesStagesAsPending(t *testing.T) {
	s := New("run-1", []string{"ocr", "clean"})
	require.Equal(t, RunPending, s.Status)
	require.Equal(t, StagePending, s.Stages["ocr"].Status)
	require.Equal(t, StagePending, s.Stages["clean"].Status)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline_state.json")
	s := New("run-1", []string{"ocr"})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Start(now)
	s.StartStage("ocr", now)
	s.FinishStage("ocr", StageDone, "ocr.jsonl", "page.v1", "", nil, now)
	s.Finish(now)
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "run-1", loaded.RunID)
	require.Equal(t, RunDone, loaded.Status)
	require.Equal(t, StageDone, loaded.Stages["ocr"].Status)
	require.Equal(t, "ocr.jsonl", loaded.Stages["ocr"].Artifact)
}

func TestLoadToleratesMissingFile(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestFinishFailsRunWhenAnyStageFailed(t *testing.T) {
	s := New("run-1", []string{"ocr", "clean"})
	now := time.Now()
	s.FinishStage("ocr", StageDone, "ocr.jsonl", "page.v1", "", nil, now)
	s.FinishStage("clean", StageFailed, "", "", "module exited with code 1", nil, now)
	s.Finish(now)
	require.Equal(t, RunFailed, s.Status)
}

func TestSkipStageMarksStartedAndEndedImmediately(t *testing.T) {
	s := New("run-1", []string{"ocr"})
	now := time.Now()
	s.SkipStage("ocr", now)
	require.Equal(t, StageSkipped, s.Stages["ocr"].Status)
	require.NotNil(t, s.Stages["ocr"].StartedAt)
	require.NotNil(t, s.Stages["ocr"].EndedAt)
}

func TestCrashSetsRunCrashed(t *testing.T) {
	s := New("run-1", []string{"ocr"})
	s.Crash(time.Now())
	require.Equal(t, RunCrashed, s.Status)
}
