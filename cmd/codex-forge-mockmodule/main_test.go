package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/copperdogma/codex-forge-sub006/internal/escalation"
)

func writeInputJSONL(t *testing.T, dir string, ids []string) string {
	t.Helper()
	path := filepath.Join(dir, "input.jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	for _, id := range ids {
		_, err := f.WriteString(`{"item_id":"` + id + `"}` + "\n")
		require.NoError(t, err)
	}
	return path
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestRunResolvesEveryItemWithinCapAndWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	inputPath := writeInputJSONL(t, dir, []string{"item-0", "item-1", "item-2", "item-3", "item-4", "item-5"})
	outPath := filepath.Join(dir, "out.jsonl")

	err := run(silentLogger(), []string{
		"--in-mock_item.v1", inputPath,
		"--out", outPath,
		"--progress-file", filepath.Join(dir, "events.jsonl"),
		"--run-id", "run-1",
		"--max_attempts", "3",
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"status":"found"`)

	recs, err := escalation.ReadRecords(filepath.Join(dir, "resolution_records.jsonl"))
	require.NoError(t, err)
	require.Len(t, recs, 6)

	byID := make(map[string]escalation.Status, len(recs))
	for _, r := range recs {
		byID[r.ItemID] = r.Status
	}
	// item-0 and item-3 resolve on the cheap pass, item-1 and item-4 on
	// the boost pass, item-2 is conclusively absent, item-5 exhausts the
	// attempt cap — the full range of terminal statuses in one run.
	require.Equal(t, escalation.StatusFound, byID["item-0"])
	require.Equal(t, escalation.StatusFound, byID["item-1"])
	require.Equal(t, escalation.StatusResolvedNotFound, byID["item-2"])
	require.Equal(t, escalation.StatusFound, byID["item-3"])
	require.Equal(t, escalation.StatusFound, byID["item-4"])
	require.Equal(t, escalation.StatusUnresolved, byID["item-5"])
}

func TestRunFailsOnInvalidMaxAttempts(t *testing.T) {
	dir := t.TempDir()
	inputPath := writeInputJSONL(t, dir, []string{"item-1"})

	err := run(silentLogger(), []string{
		"--in-mock_item.v1", inputPath,
		"--out", filepath.Join(dir, "out.jsonl"),
		"--progress-file", filepath.Join(dir, "events.jsonl"),
		"--run-id", "run-1",
		"--max_attempts", "not-a-number",
	})
	require.Error(t, err)
}

func TestRunRequiresAtLeastOneDeclaredInput(t *testing.T) {
	dir := t.TempDir()
	err := run(silentLogger(), []string{
		"--out", filepath.Join(dir, "out.jsonl"),
		"--progress-file", filepath.Join(dir, "events.jsonl"),
		"--run-id", "run-1",
	})
	require.Error(t, err)
}
