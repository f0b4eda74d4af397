package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DocumentSchema wraps a compiled whole-document JSON Schema for strict,
// allErrors-style validation of a single structured document (the
// final gamebook gate; module parameter schemas are checked by the
// recipe package's own code, not by this type) rather than the
// per-record field-set checks the rest of this package performs on
// JSONL artifacts.
type DocumentSchema struct {
	compiled *jsonschema.Schema
}

// CompileDocumentSchema compiles a JSON Schema document (already decoded
// into Go values, e.g. from YAML) into a reusable validator.
func CompileDocumentSchema(name string, schemaDoc map[string]any) (*DocumentSchema, error) {
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return nil, fmt.Errorf("schema: marshal %s schema: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("schema: add resource %s: %w", name, err)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("schema: compile %s: %w", name, err)
	}
	return &DocumentSchema{compiled: compiled}, nil
}

// DocumentError is one allErrors-style failure from validating a document.
type DocumentError struct {
	Path     string
	Message  string
	Expected string
	Received string
}

// Validate checks an already-decoded document (map[string]any or slice)
// against the compiled schema and returns every violation found, not
// just the first.
func (d *DocumentSchema) Validate(doc any) []DocumentError {
	err := d.compiled.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []DocumentError{{Message: err.Error()}}
	}
	var out []DocumentError
	flattenValidationErrors(ve, &out)
	if len(out) == 0 {
		out = append(out, DocumentError{Message: ve.Error()})
	}
	return out
}

func flattenValidationErrors(ve *jsonschema.ValidationError, out *[]DocumentError) {
	if len(ve.Causes) == 0 {
		*out = append(*out, DocumentError{
			Path:    ve.InstanceLocation,
			Message: ve.Message,
		})
		return
	}
	for _, cause := range ve.Causes {
		flattenValidationErrors(cause, out)
	}
}
