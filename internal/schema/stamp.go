package schema

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// StampContext carries the identifiers every stamped record receives.
type StampContext struct {
	ModuleID string
	RunID    string
	Now      func() time.Time // overridable for deterministic tests
}

func (c StampContext) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Stamp fills schema_version/module_id/run_id/created_at when absent and
// projects the record onto the schema's declared field set, dropping
// anything the schema does not name. This is the "schemas are truth"
// contract: a module that emits an undeclared field silently loses it
// here unless the schema is updated to declare it.
func (s *Schema) Stamp(record map[string]any, ctx StampContext) map[string]any {
	out := make(map[string]any, len(record))
	for name := range s.fieldNames() {
		if v, ok := record[name]; ok {
			out[name] = v
		}
	}

	if _, ok := out["schema_version"]; !ok {
		out["schema_version"] = s.Name
	}
	if _, ok := out["module_id"]; !ok {
		out["module_id"] = ctx.ModuleID
	}
	if _, ok := out["run_id"]; !ok {
		out["run_id"] = ctx.RunID
	}
	if _, ok := out["created_at"]; !ok {
		out["created_at"] = ctx.now().UTC().Format("2006-01-02T15:04:05.000000Z")
	}
	return out
}

// StampJSONL reads a JSONL artifact, stamps every record against the
// named schema, and writes the result to outPath (write-new-then-rename
// to preserve append-only/atomic-replace semantics for any concurrent
// reader).
func StampJSONL(reg *Registry, schemaName, inPath, outPath string, ctx StampContext) (int, error) {
	s, err := reg.Get(schemaName)
	if err != nil {
		return 0, err
	}

	in, err := os.Open(inPath)
	if err != nil {
		return 0, fmt.Errorf("schema: open %s: %w", inPath, err)
	}
	defer in.Close()

	tmpPath := outPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("schema: create %s: %w", tmpPath, err)
	}

	count := 0
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	writer := bufio.NewWriter(out)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal(line, &record); err != nil {
			out.Close()
			os.Remove(tmpPath)
			return 0, fmt.Errorf("schema: invalid-record at line %d: %w", count+1, err)
		}
		stamped := s.Stamp(record, ctx)
		encoded, err := json.Marshal(stamped)
		if err != nil {
			out.Close()
			os.Remove(tmpPath)
			return 0, fmt.Errorf("schema: marshal stamped record: %w", err)
		}
		if _, err := writer.Write(encoded); err != nil {
			out.Close()
			os.Remove(tmpPath)
			return 0, err
		}
		if err := writer.WriteByte('\n'); err != nil {
			out.Close()
			os.Remove(tmpPath)
			return 0, err
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("schema: scan %s: %w", inPath, err)
	}
	if err := writer.Flush(); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return 0, err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, err
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return 0, fmt.Errorf("schema: rename %s -> %s: %w", tmpPath, outPath, err)
	}
	return count, nil
}
