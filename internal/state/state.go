// Package state implements the run-level pipeline_state.json document:
// one record of where every stage stands, so a monitor or a resumed
// run can answer "what happened" without replaying the whole event
// log.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// StageStatus mirrors the progress package's lifecycle statuses plus
// the two the driver itself assigns before a stage ever starts.
type StageStatus string

const (
	StagePending StageStatus = "pending"
	StageSkipped StageStatus = "skipped"
	StageRunning StageStatus = "running"
	StageDone    StageStatus = "done"
	StageFailed  StageStatus = "failed"
)

// StageState is one stage's entry in the document.
type StageState struct {
	Status       StageStatus       `json:"status"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	EndedAt      *time.Time        `json:"ended_at,omitempty"`
	Artifact     string            `json:"artifact,omitempty"`
	SchemaVersion string           `json:"schema_version,omitempty"`
	InputHashes  map[string]string `json:"input_hashes,omitempty"`
	StatusReason string            `json:"status_reason,omitempty"`
}

// RunStatus is the overall run's status, derived from its stages.
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunFailed  RunStatus = "failed"
	RunCrashed RunStatus = "crashed"
)

// PipelineState is the full pipeline_state.json document for one run.
type PipelineState struct {
	RunID     string                `json:"run_id"`
	Stages    map[string]StageState `json:"stages"`
	Status    RunStatus             `json:"status"`
	StartedAt *time.Time            `json:"started_at,omitempty"`
	EndedAt   *time.Time            `json:"ended_at,omitempty"`
}

// New builds a fresh document with every stage id pre-populated as
// pending, so the file reflects the full planned stage set even before
// the first stage runs.
func New(runID string, stageIDs []string) *PipelineState {
	stages := make(map[string]StageState, len(stageIDs))
	for _, id := range stageIDs {
		stages[id] = StageState{Status: StagePending}
	}
	return &PipelineState{RunID: runID, Stages: stages, Status: RunPending}
}

// Load reads a pipeline_state.json document, tolerating a missing file
// by returning (nil, nil) so a fresh run starts clean.
func Load(path string) (*PipelineState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("state: read %s: %w", path, err)
	}
	var s PipelineState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("state: decode %s: %w", path, err)
	}
	return &s, nil
}

// Save writes the document atomically (write-to-temp, rename), the
// same discipline every other append-only or replace-in-place artifact
// in this system uses.
func (s *PipelineState) Save(path string) error {
	encoded, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, encoded, 0o644); err != nil {
		return fmt.Errorf("state: write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("state: rename %s -> %s: %w", tmpPath, path, err)
	}
	return nil
}

// Start marks the run as running and records its start time, once.
func (s *PipelineState) Start(now time.Time) {
	if s.StartedAt == nil {
		t := now
		s.StartedAt = &t
	}
	s.Status = RunRunning
}

// StartStage transitions a stage to running and records its start time.
func (s *PipelineState) StartStage(stageID string, now time.Time) {
	entry := s.Stages[stageID]
	entry.Status = StageRunning
	t := now
	entry.StartedAt = &t
	s.Stages[stageID] = entry
}

// FinishStage records a stage's terminal outcome.
func (s *PipelineState) FinishStage(stageID string, status StageStatus, artifact, schemaVersion, reason string, inputHashes map[string]string, now time.Time) {
	entry := s.Stages[stageID]
	entry.Status = status
	t := now
	entry.EndedAt = &t
	entry.Artifact = artifact
	entry.SchemaVersion = schemaVersion
	entry.StatusReason = reason
	entry.InputHashes = inputHashes
	s.Stages[stageID] = entry
}

// SkipStage marks a stage as skipped by the resume controller without
// ever running it.
func (s *PipelineState) SkipStage(stageID string, now time.Time) {
	entry := s.Stages[stageID]
	entry.Status = StageSkipped
	t := now
	entry.StartedAt = &t
	entry.EndedAt = &t
	s.Stages[stageID] = entry
}

// Finish sets the run's overall terminal status from its stage states
// and records the end time. A single failed stage fails the whole run;
// otherwise the run is done, even if some stages are still pending.
func (s *PipelineState) Finish(now time.Time) {
	t := now
	s.EndedAt = &t

	for _, stage := range s.Stages {
		if stage.Status == StageFailed {
			s.Status = RunFailed
			return
		}
	}
	s.Status = RunDone
}

// Crash marks the run as crashed. The driver uses it when an execution
// backend stops with an error that no failed stage entry accounts for.
func (s *PipelineState) Crash(now time.Time) {
	t := now
	s.EndedAt = &t
	s.Status = RunCrashed
}
