package progress

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Call is one LLM invocation recorded by a module through the shared
// log_llm_usage helper. Zero-usage calls (refusals) still produce a
// Call so dashboards never show a cost gap.
type Call struct {
	Timestamp      time.Time `json:"timestamp"`
	Stage          string    `json:"stage"`
	Model          string    `json:"model"`
	PromptTokens   int       `json:"prompt_tokens"`
	ResponseTokens int       `json:"response_tokens"`
	LatencyMS      int64     `json:"latency_ms"`
}

// InstrumentationSink is the stage-local JSONL sink a module's
// log_llm_usage calls append to, identified to the module via
// --instrumentation-sink.
type InstrumentationSink struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

// OpenInstrumentationSink opens (creating if necessary) a stage-local
// instrumentation JSONL file.
func OpenInstrumentationSink(path string) (*InstrumentationSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("progress: open instrumentation sink %s: %w", path, err)
	}
	return &InstrumentationSink{file: f, writer: bufio.NewWriter(f)}, nil
}

// Record appends one LLM usage call.
func (s *InstrumentationSink) Record(c Call) error {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	encoded, err := json.Marshal(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writer.Write(append(encoded, '\n')); err != nil {
		return err
	}
	return s.writer.Flush()
}

// Close flushes and closes the sink.
func (s *InstrumentationSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}

// ReadCalls reads every Call recorded in a stage-local instrumentation
// JSONL file, tolerating a missing file (a stage that made no LLM calls
// has nothing to read).
func ReadCalls(path string) ([]Call, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("progress: open %s: %w", path, err)
	}
	defer f.Close()

	var calls []Call
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var c Call
		if err := json.Unmarshal(line, &c); err != nil {
			return nil, fmt.Errorf("progress: decode call: %w", err)
		}
		calls = append(calls, c)
	}
	return calls, scanner.Err()
}

// StageTotals summarizes instrumentation for one stage.
type StageTotals struct {
	Stage          string  `json:"stage"`
	Calls          int     `json:"calls"`
	PromptTokens   int     `json:"prompt_tokens"`
	ResponseTokens int     `json:"response_tokens"`
	CostUSD        float64 `json:"cost_usd"`
	UnknownModels  []string `json:"unknown_models,omitempty"`
}

// RunReport is the run-level instrumentation.json document.
type RunReport struct {
	RunID          string        `json:"run_id"`
	Stages         []StageTotals `json:"stages"`
	TotalCalls     int           `json:"total_calls"`
	TotalCostUSD   float64       `json:"total_cost_usd"`
	PromptTokens   int           `json:"prompt_tokens"`
	ResponseTokens int           `json:"response_tokens"`
}

// Aggregate folds a set of per-stage calls into a RunReport using a
// price sheet keyed by model name. Unknown models contribute zero cost
// and are listed in StageTotals.UnknownModels so the caller can log a
// warning instead of silently undercounting spend.
func Aggregate(runID string, perStage map[string][]Call, prices PriceSheet) RunReport {
	stages := make([]string, 0, len(perStage))
	for s := range perStage {
		stages = append(stages, s)
	}
	sort.Strings(stages)

	report := RunReport{RunID: runID}
	for _, stage := range stages {
		calls := perStage[stage]
		totals := StageTotals{Stage: stage, Calls: len(calls)}
		unknownSeen := make(map[string]struct{})
		for _, c := range calls {
			totals.PromptTokens += c.PromptTokens
			totals.ResponseTokens += c.ResponseTokens
			price, ok := prices[c.Model]
			if !ok {
				if _, seen := unknownSeen[c.Model]; !seen {
					totals.UnknownModels = append(totals.UnknownModels, c.Model)
					unknownSeen[c.Model] = struct{}{}
				}
				continue
			}
			totals.CostUSD += CalculateCost(TokenUsage{Input: c.PromptTokens, Output: c.ResponseTokens}, price.InputPerMtok, price.OutputPerMtok)
		}
		report.Stages = append(report.Stages, totals)
		report.TotalCalls += totals.Calls
		report.TotalCostUSD += totals.CostUSD
		report.PromptTokens += totals.PromptTokens
		report.ResponseTokens += totals.ResponseTokens
	}
	return report
}
