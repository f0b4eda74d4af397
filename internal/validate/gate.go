package validate

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/copperdogma/codex-forge-sub006/internal/schema"
)

// CurrentValidatorVersion is compared against a gamebook's declared
// schema_version; a mismatch is a warning, not an error, since the
// gate is expected to tolerate older documents produced by a prior
// pipeline version.
const CurrentValidatorVersion = "gamebook.v1"

// Run executes the full gate against raw (the terminal document's
// bytes): schema conformance against docSchema, then the structural
// and reachability checks, producing a single Report.
func Run(docSchema *schema.DocumentSchema, raw []byte) (Report, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Report{}, fmt.Errorf("validate: parse document: %w", err)
	}

	var errors []Issue
	for _, e := range docSchema.Validate(generic) {
		errors = append(errors, Issue{Path: e.Path, Message: e.Message, Expected: e.Expected, Received: e.Received})
	}

	var book Gamebook
	if err := json.Unmarshal(raw, &book); err != nil {
		return Report{}, fmt.Errorf("validate: decode document: %w", err)
	}

	structuralErrors, warnings := structuralChecks(book)
	errors = append(errors, structuralErrors...)

	summary := Summary{TotalSections: len(book.Sections)}
	if _, ok := book.Sections[book.StartSection]; ok {
		result := reachabilityFrom(book, book.StartSection)
		summary.Reachable = len(result.reachable)
		summary.Unreachable = len(result.unreachable)
		if len(result.unreachable) > 0 {
			summary.EntryPoints = entryPoints(book, result.unreachable)
			for _, id := range result.unreachable {
				warnings = append(warnings, Issue{
					Message: fmt.Sprintf("Gameplay section %q is unreachable from startSection %q", id, book.StartSection),
				})
			}
		}
	}

	if book.SchemaVersion != "" && book.SchemaVersion != CurrentValidatorVersion {
		warnings = append(warnings, Issue{
			Message: fmt.Sprintf("document schema_version %q does not match validator version %q", book.SchemaVersion, CurrentValidatorVersion),
		})
	}

	return Report{
		Valid:    len(errors) == 0,
		Errors:   errors,
		Warnings: warnings,
		Summary:  summary,
	}, nil
}

// structuralChecks covers everything the JSON Schema compiler cannot
// express on its own: map-key/id agreement, the declared id range, and
// sequence targets.
func structuralChecks(book Gamebook) (errors, warnings []Issue) {
	if book.StartSection == "" {
		errors = append(errors, Issue{Message: "start_section is missing"})
	} else if _, ok := book.Sections[book.StartSection]; !ok {
		errors = append(errors, Issue{Message: fmt.Sprintf("start_section %q does not exist in sections", book.StartSection)})
	}

	lo, hi := book.idRange()
	present := make(map[int]bool)

	ids := make([]string, 0, len(book.Sections))
	for key := range book.Sections {
		ids = append(ids, key)
	}
	sort.Strings(ids)

	for _, key := range ids {
		section := book.Sections[key]
		if section.ID != key {
			errors = append(errors, Issue{
				Path:     fmt.Sprintf("/sections/%s", key),
				Message:  fmt.Sprintf("section id %q does not match its map key %q", section.ID, key),
				Expected: key,
				Received: section.ID,
			})
		}

		var n int
		if _, err := fmt.Sscanf(key, "%d", &n); err == nil {
			present[n] = true
		}

		for i, edge := range section.Sequence {
			if IsTerminal(edge.Outcome) {
				continue
			}
			if edge.TargetSection == "" {
				errors = append(errors, Issue{
					Path:    fmt.Sprintf("/sections/%s/sequence/%d", key, i),
					Message: "non-terminal sequence event is missing target_section",
				})
				continue
			}
			if _, ok := book.Sections[edge.TargetSection]; !ok {
				errors = append(errors, Issue{
					Path:    fmt.Sprintf("/sections/%s/sequence/%d", key, i),
					Message: fmt.Sprintf("targetSection %q does not reference an existing section", edge.TargetSection),
				})
			}
		}
	}

	for n := lo; n <= hi; n++ {
		if !present[n] {
			errors = append(errors, Issue{Message: fmt.Sprintf("section id %d is missing from the declared range %d..%d", n, lo, hi)})
		}
	}

	return errors, warnings
}
