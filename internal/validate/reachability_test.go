package validate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReachabilityFromFollowsNonTerminalEdgesOnly(t *testing.T) {
	book := Gamebook{
		StartSection: "1",
		Sections: map[string]Section{
			"1": {ID: "1", Sequence: []SequenceEvent{
				{Kind: "choice", TargetSection: "2"},
				{Kind: "combat", Outcome: "death"},
			}},
			"2": {ID: "2"},
			"3": {ID: "3"},
		},
	}
	result := reachabilityFrom(book, "1")
	require.True(t, result.reachable["1"])
	require.True(t, result.reachable["2"])
	require.False(t, result.reachable["3"])
	require.Equal(t, []string{"3"}, result.unreachable)
}

func TestEntryPointsExcludesSectionsReferencedByOtherUnreachables(t *testing.T) {
	book := Gamebook{
		Sections: map[string]Section{
			"2": {ID: "2", Sequence: []SequenceEvent{{Kind: "choice", TargetSection: "3"}}},
			"3": {ID: "3"},
		},
	}
	entries := entryPoints(book, []string{"2", "3"})
	require.Equal(t, []string{"2"}, entries)
}
