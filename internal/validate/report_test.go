package validate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteJSONRoundTrips(t *testing.T) {
	report := Report{
		Valid:  false,
		Errors: []Issue{{Path: "/sections/2", Message: "bad"}},
		Summary: Summary{TotalSections: 2, Reachable: 1, Unreachable: 1, EntryPoints: []string{"2"}},
	}
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, report.WriteJSON(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded Report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, report, decoded)
}

func TestRenderTextIncludesCounts(t *testing.T) {
	report := Report{Valid: true, Summary: Summary{TotalSections: 3, Reachable: 3}}
	text := report.RenderText()
	require.Contains(t, text, "VALID")
	require.Contains(t, text, "3 total, 3 reachable")
}

func TestExitCodeMatchesValidity(t *testing.T) {
	require.Equal(t, 0, Report{Valid: true}.ExitCode())
	require.Equal(t, 1, Report{Valid: false}.ExitCode())
}
