package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocumentSchemaAllErrors(t *testing.T) {
	doc := map[string]any{
		"type":     "object",
		"required": []any{"start_section", "sections"},
		"properties": map[string]any{
			"start_section": map[string]any{"type": "integer"},
			"sections":      map[string]any{"type": "object"},
		},
	}
	ds, err := CompileDocumentSchema("gamebook.v1", doc)
	require.NoError(t, err)

	errs := ds.Validate(map[string]any{
		"start_section": "not-an-integer",
	})
	require.NotEmpty(t, errs)
}

func TestDocumentSchemaValid(t *testing.T) {
	doc := map[string]any{
		"type":     "object",
		"required": []any{"start_section"},
		"properties": map[string]any{
			"start_section": map[string]any{"type": "integer"},
		},
	}
	ds, err := CompileDocumentSchema("gamebook.v2", doc)
	require.NoError(t, err)

	errs := ds.Validate(map[string]any{"start_section": float64(1)})
	require.Empty(t, errs)
}
