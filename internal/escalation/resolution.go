package escalation

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// Record is the on-disk shape a module writes for each item it ran
// through the escalation loop, matching the escalation_resolution.v1
// schema: item_id, status, reason, attempts, trace.
type Record struct {
	ItemID   string `json:"item_id"`
	Status   Status `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Attempts int    `json:"attempts"`
	Trace    Trace  `json:"trace"`
}

// Resolution pairs the module-internal item value with the outcome of
// running it through Loop, before it is narrowed down to a Record.
type Resolution[T any] struct {
	Item     T
	Attempts int
	Status   Status
	Reason   string
}

// ToRecord narrows a Resolution to the on-disk Record shape. idOf
// extracts the stable item id and traceOf builds the upstream trace
// for the final value of the item.
func ToRecord[T any](r Resolution[T], idOf func(T) string, traceOf func(T) Trace) Record {
	return Record{
		ItemID:   idOf(r.Item),
		Status:   r.Status,
		Reason:   r.Reason,
		Attempts: r.Attempts,
		Trace:    traceOf(r.Item),
	}
}

// WriteRecords appends one JSON object per line to path, the same
// JSONL convention the rest of this system uses for per-record
// artifacts.
func WriteRecords(path string, records []Record) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("escalation: open %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("escalation: encode record %s: %w", r.ItemID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("escalation: flush %s: %w", path, err)
	}
	return f.Sync()
}

// ReadRecords loads a resolution log back in for gate-time inspection
// or for resuming a stage that was interrupted mid-loop.
func ReadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("escalation: open %s: %w", path, err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("escalation: decode %s: %w", path, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("escalation: scan %s: %w", path, err)
	}
	return records, nil
}

// Summary tallies the terminal statuses across a batch of records,
// the shape a stage uses to decide whether it must fail (unresolved
// items present, allow_stubs not set).
type Summary struct {
	Found            int
	ResolvedNotFound int
	Unresolved       int
}

// Summarize tallies status counts across records.
func Summarize(records []Record) Summary {
	var s Summary
	for _, r := range records {
		switch r.Status {
		case StatusFound:
			s.Found++
		case StatusResolvedNotFound:
			s.ResolvedNotFound++
		case StatusUnresolved:
			s.Unresolved++
		}
	}
	return s
}

// Gate applies the cap-hit fail semantics: a stage with any
// unresolved item fails unless allow_stubs was set for it.
func Gate(summary Summary, allowStubs bool) error {
	if summary.Unresolved == 0 {
		return nil
	}
	if allowStubs {
		return nil
	}
	return fmt.Errorf("escalation: %d item(s) unresolved and allow_stubs is not set", summary.Unresolved)
}

// CheckCapCompliance is the Runtime's generic post-stage check: it
// reads a module's resolution-record artifact and applies Gate,
// without the Runtime needing to know anything about the module's own
// escalation loop internals.
func CheckCapCompliance(resolutionRecordsPath string, allowStubs bool) error {
	records, err := ReadRecords(resolutionRecordsPath)
	if err != nil {
		return err
	}
	return Gate(Summarize(records), allowStubs)
}
