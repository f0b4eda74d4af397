package escalation

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRecordsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolutions.jsonl")
	records := []Record{
		{ItemID: "item-1", Status: StatusFound, Attempts: 1},
		{
			ItemID:   "item-2",
			Status:   StatusResolvedNotFound,
			Reason:   "no matching entry in source text",
			Attempts: 3,
			Trace: NewBuilder().
				Step("ocr_v1", "00_ocr_v1/pages.jsonl", "page-12", "...turn to 220...").
				Step("boundary_v1", "02_boundary_v1/sections.jsonl", "", "no section starts at 220").
				Build(),
		},
	}

	require.NoError(t, WriteRecords(path, records))

	loaded, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, "item-2", loaded[1].ItemID)
	require.Len(t, loaded[1].Trace.Steps, 2)
	require.Equal(t, "page-12", loaded[1].Trace.Steps[0].RecordID)
}

func TestReadRecordsToleratesMissingFile(t *testing.T) {
	records, err := ReadRecords(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.NoError(t, err)
	require.Nil(t, records)
}

func TestSummarizeTalliesStatuses(t *testing.T) {
	summary := Summarize([]Record{
		{Status: StatusFound},
		{Status: StatusFound},
		{Status: StatusResolvedNotFound},
		{Status: StatusUnresolved},
	})
	require.Equal(t, Summary{Found: 2, ResolvedNotFound: 1, Unresolved: 1}, summary)
}

func TestGateFailsOnUnresolvedUnlessStubsAllowed(t *testing.T) {
	summary := Summary{Unresolved: 1}
	require.Error(t, Gate(summary, false))
	require.NoError(t, Gate(summary, true))
	require.NoError(t, Gate(Summary{}, false))
}

func TestCheckCapComplianceReadsRecordsAndGates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolutions.jsonl")
	require.NoError(t, WriteRecords(path, []Record{
		{ItemID: "a", Status: StatusFound},
		{ItemID: "b", Status: StatusUnresolved},
	}))

	require.Error(t, CheckCapCompliance(path, false))
	require.NoError(t, CheckCapCompliance(path, true))
}

func TestToRecordProjectsResolution(t *testing.T) {
	r := Resolution[testItem]{
		Item:     testItem{id: "x", value: 5},
		Attempts: 2,
		Status:   StatusFound,
	}
	rec := ToRecord(r,
		func(i testItem) string { return i.id },
		func(i testItem) Trace { return Trace{} },
	)
	require.Equal(t, "x", rec.ItemID)
	require.Equal(t, StatusFound, rec.Status)
	require.Equal(t, 2, rec.Attempts)
}
