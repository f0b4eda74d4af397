package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStampDropsUndeclaredFields(t *testing.T) {
	reg := NewRegistry()
	RegisterBuiltins(reg)
	s, err := reg.Get("page.v1")
	require.NoError(t, err)

	record := map[string]any{
		"page_number":   float64(1),
		"text":          "hello",
		"confidence_v2": 0.97, // not declared by page.v1
	}

	stamped := s.Stamp(record, StampContext{ModuleID: "ocr_v1", RunID: "run-1", Now: fixedClock(time.Unix(0, 0))})

	require.Equal(t, "ocr_v1", stamped["module_id"])
	require.Equal(t, "run-1", stamped["run_id"])
	require.Equal(t, "page.v1", stamped["schema_version"])
	require.Contains(t, stamped, "created_at")
	require.NotContains(t, stamped, "confidence_v2")
}

func TestStampJSONLRoundTripIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	RegisterBuiltins(reg)

	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.jsonl")
	writeLines(t, inPath, []map[string]any{
		{"page_number": 1, "text": "a"},
		{"page_number": 2, "text": "b"},
	})

	ctx := StampContext{ModuleID: "ocr_v1", RunID: "run-1", Now: fixedClock(time.Unix(100, 0))}

	outPath := filepath.Join(dir, "out.jsonl")
	n, err := StampJSONL(reg, "page.v1", inPath, outPath, ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	errs, err := ValidateJSONL(reg, "page.v1", outPath)
	require.NoError(t, err)
	require.Empty(t, errs)

	restamped := filepath.Join(dir, "out2.jsonl")
	_, err = StampJSONL(reg, "page.v1", outPath, restamped, ctx)
	require.NoError(t, err)

	first, err := os.ReadFile(outPath)
	require.NoError(t, err)
	second, err := os.ReadFile(restamped)
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))
}

func TestValidateJSONLDetectsCrossRecordViolation(t *testing.T) {
	reg := NewRegistry()
	RegisterBuiltins(reg)

	dir := t.TempDir()
	path := filepath.Join(dir, "boundaries.jsonl")
	writeLines(t, path, []map[string]any{
		{"section_id": 1, "start_page": 1, "text": "one",
			"schema_version": "section_boundary.v1", "module_id": "m", "run_id": "r", "created_at": "2024-01-01T00:00:00.000000Z"},
		{"section_id": 1, "start_page": 4, "text": "dup",
			"schema_version": "section_boundary.v1", "module_id": "m", "run_id": "r", "created_at": "2024-01-01T00:00:00.000000Z"},
	})

	errs, err := ValidateJSONL(reg, "section_boundary.v1", path)
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	require.Contains(t, errs[len(errs)-1].Error(), "cross-record-invariant-violated")
}

func writeLines(t *testing.T, path string, records []map[string]any) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	for _, r := range records {
		b, err := json.Marshal(r)
		require.NoError(t, err)
		_, err = f.Write(append(b, '\n'))
		require.NoError(t, err)
	}
}
