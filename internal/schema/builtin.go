package schema

import "strconv"

// RegisterBuiltins registers the stock schemas codex-forge's own stages
// (OCR cleanup, section-boundary detection, choice extraction, and the
// escalation contract's resolution records) rely on. The terminal
// gamebook document is not registered here; the final gate validates
// it as one whole document instead. A module manifest's output_schema must name one of
// these, or a schema registered by the recipe's own settings.
func RegisterBuiltins(r *Registry) {
	r.Register(Schema{
		Name:    "page.v1",
		Version: "v1",
		Fields: []FieldSpec{
			{Name: "page_number", Type: TypeInteger, Required: true},
			{Name: "text", Type: TypeString, Required: true},
			{Name: "confidence", Type: TypeNumber},
			{Name: "source_image", Type: TypeString},
		},
		Cross: monotonicPageNumbers,
	})

	r.Register(Schema{
		Name:    "section_boundary.v1",
		Version: "v1",
		Fields: []FieldSpec{
			{Name: "section_id", Type: TypeInteger, Required: true},
			{Name: "start_page", Type: TypeInteger, Required: true},
			{Name: "end_page", Type: TypeInteger},
			{Name: "text", Type: TypeString, Required: true},
			{Name: "confidence", Type: TypeNumber},
		},
		Cross: uniqueIntField("section_id"),
	})

	r.Register(Schema{
		Name:    "choice.v1",
		Version: "v1",
		Fields: []FieldSpec{
			{Name: "section_id", Type: TypeInteger, Required: true},
			{Name: "kind", Type: TypeString, Required: true, Enum: []string{
				"choice", "stat_check", "test_luck", "item_check", "combat", "death", "conditional",
			}},
			{Name: "text", Type: TypeString},
			{Name: "target_section", Type: TypeInteger},
			{Name: "outcome_key", Type: TypeString},
			{Name: "terminal", Type: TypeBoolean},
		},
	})

	r.Register(Schema{
		Name:    "escalation_resolution.v1",
		Version: "v1",
		Fields: []FieldSpec{
			{Name: "item_id", Type: TypeString, Required: true},
			{Name: "status", Type: TypeString, Required: true, Enum: []string{
				"found", "resolved_not_found", "unresolved",
			}},
			{Name: "reason", Type: TypeString},
			{Name: "attempts", Type: TypeInteger},
			{Name: "trace", Type: TypeObject},
		},
		Cross: uniqueStringField("item_id"),
	})
}

func monotonicPageNumbers(records []map[string]any) error {
	last := -1
	for _, r := range records {
		n, ok := r["page_number"].(float64)
		if !ok {
			continue
		}
		if int(n) <= last {
			return errMonotonic
		}
		last = int(n)
	}
	return nil
}

func uniqueIntField(field string) CrossRecordCheck {
	return func(records []map[string]any) error {
		seen := make(map[int]struct{}, len(records))
		for _, r := range records {
			v, ok := r[field].(float64)
			if !ok {
				continue
			}
			key := int(v)
			if _, dup := seen[key]; dup {
				return &duplicateFieldError{Field: field, Value: key}
			}
			seen[key] = struct{}{}
		}
		return nil
	}
}

func uniqueStringField(field string) CrossRecordCheck {
	return func(records []map[string]any) error {
		seen := make(map[string]struct{}, len(records))
		for _, r := range records {
			v, ok := r[field].(string)
			if !ok {
				continue
			}
			if _, dup := seen[v]; dup {
				return &duplicateFieldErrorStr{Field: field, Value: v}
			}
			seen[v] = struct{}{}
		}
		return nil
	}
}

type duplicateFieldError struct {
	Field string
	Value int
}

func (e *duplicateFieldError) Error() string {
	return "duplicate value " + strconv.Itoa(e.Value) + " for field " + e.Field
}

type duplicateFieldErrorStr struct {
	Field string
	Value string
}

func (e *duplicateFieldErrorStr) Error() string {
	return "duplicate value " + e.Value + " for field " + e.Field
}

var errMonotonic = &monotonicError{}

type monotonicError struct{}

func (e *monotonicError) Error() string { return "page_number is not monotonically increasing" }
