// Package progress implements the append-only progress event log and
// the per-call LLM instrumentation sinks the Runtime injects into every
// module invocation.
package progress

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Status is the lifecycle status carried by a progress event.
type Status string

const (
	StatusStarted  Status = "started"
	StatusProgress Status = "progress"
	StatusWarning  Status = "warning"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
)

// Event is one line of the append-only pipeline_events.jsonl log. A
// warning event never overwrites the stage's lifecycle status; only
// started/progress/done/failed do that (enforced by the caller, not by
// the sink, which simply appends).
type Event struct {
	Timestamp         time.Time      `json:"timestamp"`
	RunID             string         `json:"run_id"`
	Stage             string         `json:"stage"`
	Status            Status         `json:"status"`
	Current           *int           `json:"current,omitempty"`
	Total             *int           `json:"total,omitempty"`
	Percent           *float64       `json:"percent,omitempty"`
	Message           string         `json:"message,omitempty"`
	Artifact          string         `json:"artifact,omitempty"`
	ModuleID          string         `json:"module_id"`
	SchemaVersion     string         `json:"schema_version,omitempty"`
	StageDescription  string         `json:"stage_description,omitempty"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// Validate enforces the required-field set every event must carry
// regardless of status: a run id, a stage name, a module id, and a
// recognized lifecycle status.
func (e Event) Validate() error {
	if e.RunID == "" {
		return fmt.Errorf("progress: event missing run_id")
	}
	if e.Stage == "" {
		return fmt.Errorf("progress: event missing stage")
	}
	if e.ModuleID == "" {
		return fmt.Errorf("progress: event missing module_id")
	}
	switch e.Status {
	case StatusStarted, StatusProgress, StatusWarning, StatusDone, StatusFailed:
	default:
		return fmt.Errorf("progress: event has invalid status %q", e.Status)
	}
	return nil
}

// Mirror receives a copy of every appended event; implementations must
// not block the sink and should treat failures as best-effort (e.g. the
// optional redis mirror).
type Mirror interface {
	Publish(Event) error
}

// Sink is the append-only event log writer. One Sink instance owns
// pipeline_events.jsonl for the lifetime of a run; the Runtime, the
// crash monitor, and a module's own progress writes (via the injected
// --progress-file path) must all go through the same underlying file, so
// the Sink itself is safe to share across goroutines.
type Sink struct {
	mu      sync.Mutex
	file    *os.File
	writer  *bufio.Writer
	mirrors []Mirror
}

// OpenSink opens (creating if necessary) the append-only event log at
// path.
func OpenSink(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("progress: open %s: %w", path, err)
	}
	return &Sink{file: f, writer: bufio.NewWriter(f)}, nil
}

// AddMirror registers a best-effort mirror; its errors are swallowed
// (logged by the caller if desired) so a dashboard outage never fails a
// pipeline stage.
func (s *Sink) AddMirror(m Mirror) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirrors = append(s.mirrors, m)
}

// Append validates and writes one event, fsyncing so the log is durable
// even if the process crashes immediately after.
func (s *Sink) Append(e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	encoded, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("progress: marshal event: %w", err)
	}

	s.mu.Lock()
	_, writeErr := s.writer.Write(append(encoded, '\n'))
	if writeErr == nil {
		writeErr = s.writer.Flush()
	}
	if writeErr == nil {
		writeErr = s.file.Sync()
	}
	mirrors := append([]Mirror(nil), s.mirrors...)
	s.mu.Unlock()

	if writeErr != nil {
		return fmt.Errorf("progress: append event: %w", writeErr)
	}

	for _, m := range mirrors {
		_ = m.Publish(e)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}
