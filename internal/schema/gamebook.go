package schema

import (
	"encoding/json"
	"fmt"
	"os"
)

// gamebookSchemaName is the resource name the compiler registers the
// built-in gamebook document schema under.
const gamebookSchemaName = "gamebook.v1"

// GamebookJSONSchema compiles the built-in structural schema for the
// terminal gamebook document: a start_section string and a sections
// object keyed by section id, each section carrying an id and an
// optional typed sequence of navigation edges. Field-level identity
// and reachability checks beyond what JSON Schema expresses live in
// internal/validate's structural checks, not here.
func GamebookJSONSchema() (*DocumentSchema, error) {
	return CompileDocumentSchema(gamebookSchemaName, gamebookSchemaDoc)
}

// LoadDocumentSchema compiles a JSON Schema document from disk,
// letting a deployment override the built-in gamebook schema (e.g. to
// add series-specific required fields) via settings.
func LoadDocumentSchema(name, path string) (*DocumentSchema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read document schema %s: %w", path, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("schema: decode document schema %s: %w", path, err)
	}
	return CompileDocumentSchema(name, doc)
}

var gamebookSchemaDoc = map[string]any{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type":    "object",
	"required": []any{"start_section", "sections"},
	"properties": map[string]any{
		"start_section":  map[string]any{"type": "string"},
		"schema_version": map[string]any{"type": "string"},
		"id_range": map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "integer"},
			"minItems": 2,
			"maxItems": 2,
		},
		"sections": map[string]any{
			"type": "object",
			"additionalProperties": map[string]any{
				"type":     "object",
				"required": []any{"id"},
				"properties": map[string]any{
					"id":   map[string]any{"type": "string"},
					"type": map[string]any{"type": "string"},
					"sequence": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type":     "object",
							"required": []any{"kind"},
							"properties": map[string]any{
								"kind":           map[string]any{"type": "string"},
								"outcome":        map[string]any{"type": "string"},
								"target_section": map[string]any{"type": "string"},
							},
						},
					},
				},
			},
		},
	},
}
