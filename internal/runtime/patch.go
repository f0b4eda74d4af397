package runtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/copperdogma/codex-forge-sub006/internal/progress"
)

// PatchTiming is when a patch is applied relative to its target
// module's run.
type PatchTiming string

const (
	// ApplyBefore mutates the matching upstream artifact in place
	// before the module reads it.
	ApplyBefore PatchTiming = "apply_before"
	// ApplyAfter mutates the module's stamped output before
	// downstream stages read it.
	ApplyAfter PatchTiming = "apply_after"
)

// Op is one structured edit a patch file applies to a JSONL artifact.
type Op struct {
	// RecordID selects the target record by its id field.
	RecordID string `json:"record_id"`
	// Set merges these fields into the matched record.
	Set map[string]any `json:"set"`
	// Delete removes the matched record entirely when true.
	Delete bool `json:"delete"`
}

// Patch is one `<book_name>.patch.json` document: a set of operations
// targeting a specific module's artifact, applied before or after that
// module runs.
type Patch struct {
	ModuleID string      `json:"module_id"`
	Timing   PatchTiming `json:"timing"`
	Ops      []Op        `json:"ops"`
}

// LoadPatch reads a patch file; a missing file is not an error since
// most books have none.
func LoadPatch(path string) (*Patch, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("runtime: read patch %s: %w", path, err)
	}
	var p Patch
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, fmt.Errorf("runtime: parse patch %s: %w", path, err)
	}
	return &p, true, nil
}

// Apply rewrites the JSONL artifact at artifactPath in place,
// surgically applying each op by record id. Apply failures are never
// fatal to the stage — the caller is expected to log a warning event
// and continue, since patches are a last resort, not a correctness
// gate.
func Apply(artifactPath string, p *Patch) error {
	records, err := readJSONLRecords(artifactPath)
	if err != nil {
		return fmt.Errorf("runtime: apply patch: read %s: %w", artifactPath, err)
	}

	byID := make(map[string]int, len(records))
	for i, r := range records {
		if id, ok := r["id"].(string); ok {
			byID[id] = i
		}
	}

	var rewritten []map[string]any
	deleted := make(map[int]bool)
	for _, op := range p.Ops {
		idx, ok := byID[op.RecordID]
		if !ok {
			return fmt.Errorf("runtime: apply patch: record %q not found in %s", op.RecordID, artifactPath)
		}
		if op.Delete {
			deleted[idx] = true
			continue
		}
		for k, v := range op.Set {
			records[idx][k] = v
		}
	}
	for i, r := range records {
		if !deleted[i] {
			rewritten = append(rewritten, r)
		}
	}

	return writeJSONLRecords(artifactPath, rewritten)
}

// ApplyAndReport applies p to artifactPath and, on failure, appends a
// warning progress event instead of propagating the error, matching
// the never-a-correctness-gate contract.
func ApplyAndReport(sink *progress.Sink, runID, stage, moduleID, artifactPath string, p *Patch) {
	if err := Apply(artifactPath, p); err != nil {
		_ = sink.Append(progress.Event{
			RunID:    runID,
			Stage:    stage,
			ModuleID: moduleID,
			Status:   progress.StatusWarning,
			Message:  fmt.Sprintf("patch application failed: %v", err),
		})
	}
}

func readJSONLRecords(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func writeJSONLRecords(path string, records []map[string]any) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
