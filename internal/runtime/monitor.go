package runtime

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/copperdogma/codex-forge-sub006/internal/progress"
)

// lastStageStatus scans the progress log for the most recent event a
// module itself wrote for stage and reports whether one exists.
func lastStageStatus(progressFilePath, stage string) (progress.Status, bool, error) {
	f, err := os.Open(progressFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("runtime: open progress file %s: %w", progressFilePath, err)
	}
	defer f.Close()

	var (
		found  bool
		status progress.Status
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e progress.Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		if e.Stage != stage {
			continue
		}
		found = true
		status = e.Status
	}
	if err := scanner.Err(); err != nil {
		return "", false, fmt.Errorf("runtime: scan progress file %s: %w", progressFilePath, err)
	}
	return status, found, nil
}

// ReconcileExit inspects the progress log after a module process has
// exited and synthesizes a failed event if the module never wrote a
// terminal one itself — a module that segfaults or is OOM-killed
// leaves no trace otherwise, and downstream stages must not see a
// stage that silently never finished.
func ReconcileExit(sink *progress.Sink, progressFilePath, runID, stage, moduleID string, exit ExitResult) error {
	status, found, err := lastStageStatus(progressFilePath, stage)
	if err != nil {
		return err
	}
	if found && (status == progress.StatusDone || status == progress.StatusFailed) {
		return nil
	}

	message := fmt.Sprintf("module exited with code %d without emitting a terminal progress event", exit.ExitCode)
	if exit.Err != nil {
		message = fmt.Sprintf("%s: %v", message, exit.Err)
	}
	return sink.Append(progress.Event{
		RunID:    runID,
		Stage:    stage,
		ModuleID: moduleID,
		Status:   progress.StatusFailed,
		Message:  message,
	})
}
