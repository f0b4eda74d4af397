// Package validate implements the final validation gate run against a
// pipeline's terminal structured document: schema conformance, section
// id/range/duplicate checks, sequence-target checks, and reachability
// analysis from the declared start section.
package validate

// SequenceEvent is one typed navigation edge out of a section: a
// choice, a stat check, a luck test, an item check, a combat outcome,
// a death, or a conditional branch. TargetSection is required unless
// Outcome is one of the terminal outcome kinds.
type SequenceEvent struct {
	Kind          string `json:"kind"`
	Outcome       string `json:"outcome,omitempty"`
	TargetSection string `json:"target_section,omitempty"`
}

// terminalOutcomes need no target_section — the book ends there.
var terminalOutcomes = map[string]bool{
	"death":   true,
	"victory": true,
	"defeat":  true,
	"end":     true,
}

// IsTerminal reports whether an outcome ends the book with no further
// navigation.
func IsTerminal(outcome string) bool {
	return terminalOutcomes[outcome]
}

// Section is one node of the gamebook's navigation graph.
type Section struct {
	ID       string          `json:"id"`
	Type     string          `json:"type,omitempty"`
	Sequence []SequenceEvent `json:"sequence,omitempty"`
}

// Gamebook is the terminal structured document the gate validates.
type Gamebook struct {
	StartSection  string             `json:"start_section"`
	Sections      map[string]Section `json:"sections"`
	SchemaVersion string             `json:"schema_version,omitempty"`
	IDRange       []int              `json:"id_range,omitempty"`
}

// idRange returns the expected numeric section-id range, defaulting
// to 1..400 when the document does not declare one.
func (g Gamebook) idRange() (lo, hi int) {
	if len(g.IDRange) == 2 {
		return g.IDRange[0], g.IDRange[1]
	}
	return 1, 400
}
