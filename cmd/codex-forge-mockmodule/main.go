// Command codex-forge-mockmodule is a real, minimal content module that
// speaks the full invocation contract (internal/modulesdk) and runs its
// items through the escalation-loop contract (internal/escalation) with
// a deterministic cheap pass and a deterministic boost pass, so the
// contract is exercised end to end by an actual subprocess rather than
// only by unit tests against the library. It is wired into recipes
// under --mock runs in place of a real OCR/LLM-backed module.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/copperdogma/codex-forge-sub006/internal/escalation"
	"github.com/copperdogma/codex-forge-sub006/internal/modulesdk"
	"github.com/copperdogma/codex-forge-sub006/internal/schema"
)

const outputSchemaName = "mock_resolved_item.v1"

func registerOutputSchema(reg *schema.Registry) {
	reg.Register(schema.Schema{
		Name:    outputSchemaName,
		Version: "v1",
		Fields: []schema.FieldSpec{
			{Name: "item_id", Type: schema.TypeString, Required: true},
			{Name: "value", Type: schema.TypeString},
			{Name: "status", Type: schema.TypeString, Required: true, Enum: []string{
				"found", "resolved_not_found", "unresolved",
			}},
			{Name: "attempts", Type: schema.TypeInteger, Required: true},
		},
	})
}

// item is the module-internal representation of one input record: a
// bare id/value pair any upstream JSONL artifact can supply.
type item struct {
	id    string
	value string
}

func configureLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func main() {
	logger := configureLogger()
	if err := run(logger, os.Args[1:]); err != nil {
		logger.Error("mockmodule failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, args []string) error {
	inv, err := modulesdk.ParseArgs(args)
	if err != nil {
		return fmt.Errorf("mockmodule: %w", err)
	}

	runner, err := modulesdk.Open(inv, "mock_resolve", "mockmodule_v1")
	if err != nil {
		return fmt.Errorf("mockmodule: %w", err)
	}
	defer runner.Close()

	if err := runner.Started(); err != nil {
		return err
	}

	maxAttempts := 3
	if v, ok := inv.Params["max_attempts"]; ok {
		n, parseErr := strconv.Atoi(v)
		if parseErr != nil {
			_ = runner.Failed(fmt.Sprintf("invalid --max_attempts: %v", parseErr))
			return fmt.Errorf("mockmodule: invalid --max_attempts %q: %w", v, parseErr)
		}
		maxAttempts = n
	}
	allowStubs := inv.Params["allow_stubs"] == "true"

	items, err := readItems(inv)
	if err != nil {
		_ = runner.Failed(err.Error())
		return fmt.Errorf("mockmodule: %w", err)
	}
	logger.Debug("loaded items", "count", len(items))

	caps := escalation.Caps{MaxAttempts: maxAttempts, AllowStubs: allowStubs}
	if err := caps.Validate(); err != nil {
		_ = runner.Failed(err.Error())
		return fmt.Errorf("mockmodule: %w", err)
	}

	resolutions, err := escalation.Loop(items, caps, cheapPass, boostPass, validateItem)
	if err != nil {
		_ = runner.Failed(err.Error())
		return fmt.Errorf("mockmodule: %w", err)
	}

	total := len(resolutions)
	for i := range resolutions {
		if err := runner.Progress(i+1, total); err != nil {
			return err
		}
	}

	reg := schema.NewRegistry()
	registerOutputSchema(reg)

	stampCtx := schema.StampContext{ModuleID: "mockmodule_v1", RunID: inv.RunID}
	outSchema, err := reg.Get(outputSchemaName)
	if err != nil {
		_ = runner.Failed(err.Error())
		return fmt.Errorf("mockmodule: %w", err)
	}

	records := make([]map[string]any, 0, len(resolutions))
	for _, r := range resolutions {
		records = append(records, outSchema.Stamp(map[string]any{
			"item_id":  r.Item.id,
			"value":    r.Item.value,
			"status":   string(r.Status),
			"attempts": r.Attempts,
		}, stampCtx))
	}
	if err := writeJSONLRecords(inv.Out, records); err != nil {
		_ = runner.Failed(err.Error())
		return fmt.Errorf("mockmodule: %w", err)
	}

	resolutionPath := filepath.Join(filepath.Dir(inv.Out), "resolution_records.jsonl")
	resolutionRecords := make([]escalation.Record, 0, len(resolutions))
	for _, r := range resolutions {
		resolutionRecords = append(resolutionRecords, escalation.ToRecord(r,
			func(it item) string { return it.id },
			func(it item) escalation.Trace {
				return escalation.NewBuilder().
					Step("mock_resolve", inv.Out, it.id, it.value).
					Build()
			},
		))
	}
	if err := escalation.WriteRecords(resolutionPath, resolutionRecords); err != nil {
		_ = runner.Failed(err.Error())
		return fmt.Errorf("mockmodule: %w", err)
	}

	if err := escalation.Gate(escalation.Summarize(resolutionRecords), allowStubs); err != nil {
		_ = runner.Warning(err.Error())
	}

	return runner.Done(inv.Out, outputSchemaName)
}

// cheapPass resolves items whose index falls in the idx%3==0 bucket
// deterministically (by the numeric suffix of the item id), simulating a fast heuristic pass
// that cannot resolve everything on the first try.
func cheapPass(it item, attempt int) (item, error) {
	if indexSuffix(it.id)%3 == 0 {
		it.value = "resolved:" + it.id
	}
	return it, nil
}

// boostPass deterministically exercises all three escalation outcomes
// by item index: idx%3==1 resolves on the first boost; idx%3==2 splits
// further by idx%2 into items the module concludes are genuinely
// absent ("absent:") versus items that never resolve and exhaust the
// cap. A real module would retry with a more expensive strategy here
// (e.g. a larger LLM context window) instead of a fixed bucketing.
func boostPass(it item, attempt int) (item, error) {
	idx := indexSuffix(it.id)
	switch idx % 3 {
	case 1:
		it.value = "resolved:" + it.id
	case 2:
		if idx%2 == 0 {
			it.value = "absent:" + it.id
		}
		// idx%2==1 items are left untouched and never resolve.
	}
	return it, nil
}

func validateItem(it item) (escalation.Verdict, string) {
	switch {
	case strings.HasPrefix(it.value, "resolved:"):
		return escalation.VerdictPassed, ""
	case strings.HasPrefix(it.value, "absent:"):
		return escalation.VerdictNotFound, "confirmed absent upstream"
	default:
		return escalation.VerdictRetry, "unresolved"
	}
}

// indexSuffix extracts the trailing base-10 digits of an item id so the
// cheap-pass failure pattern is deterministic regardless of map
// iteration order upstream.
func indexSuffix(id string) int {
	digits := strings.TrimPrefix(id, "item-")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return len(id)
	}
	return n
}

func readItems(inv *modulesdk.Invocation) ([]item, error) {
	if len(inv.Inputs) == 0 {
		return nil, fmt.Errorf("mockmodule: no --in-* input declared")
	}
	names := make([]string, 0, len(inv.Inputs))
	for name := range inv.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	path := inv.Inputs[names[0]]

	raw, err := readJSONLRecords(path)
	if err != nil {
		return nil, fmt.Errorf("read input %s: %w", path, err)
	}

	items := make([]item, 0, len(raw))
	for _, rec := range raw {
		id, _ := rec["item_id"].(string)
		if id == "" {
			id, _ = rec["id"].(string)
		}
		value, _ := rec["value"].(string)
		items = append(items, item{id: id, value: value})
	}
	return items, nil
}

func readJSONLRecords(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("invalid JSON line: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func writeJSONLRecords(path string, records []map[string]any) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, rec := range records {
		encoded, err := json.Marshal(rec)
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
			return err
		}
		if _, err := w.Write(encoded); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
