package schema

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// ValidationError describes one failed check against a schema.
type ValidationError struct {
	Line    int // 1-indexed; 0 for cross-record errors
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: field %q: %s", e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("cross-record-invariant-violated: %s", e.Message)
}

// ValidateJSONL validates every record of a JSONL artifact against the
// named schema: required fields present, types correct, enum values
// honored, then the schema's cross-record invariant if any. Validation
// always runs after stamping (the stamped fields are expected present).
func ValidateJSONL(reg *Registry, schemaName, path string) ([]ValidationError, error) {
	s, err := reg.Get(schemaName)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: open %s: %w", path, err)
	}
	defer f.Close()

	var errs []ValidationError
	var records []map[string]any

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal(raw, &record); err != nil {
			errs = append(errs, ValidationError{Line: line, Field: "", Message: "invalid-record: not valid JSON"})
			continue
		}
		errs = append(errs, validateRecord(s, record, line)...)
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("schema: scan %s: %w", path, err)
	}

	if len(errs) == 0 && s.Cross != nil {
		if err := s.Cross(records); err != nil {
			errs = append(errs, ValidationError{Message: err.Error()})
		}
	}

	return errs, nil
}

func validateRecord(s *Schema, record map[string]any, line int) []ValidationError {
	var errs []ValidationError

	for _, stamped := range stampedFields {
		if v, ok := record[stamped]; !ok || v == nil || v == "" {
			errs = append(errs, ValidationError{Line: line, Field: stamped, Message: "missing required stamped field"})
		}
	}

	for _, field := range s.Fields {
		value, present := record[field.Name]
		if !present || value == nil {
			if field.Required {
				errs = append(errs, ValidationError{Line: line, Field: field.Name, Message: "required field missing"})
			}
			continue
		}
		if msg := checkType(field.Type, value); msg != "" {
			errs = append(errs, ValidationError{Line: line, Field: field.Name, Message: msg})
			continue
		}
		if len(field.Enum) > 0 {
			str, ok := value.(string)
			if !ok || !containsString(field.Enum, str) {
				errs = append(errs, ValidationError{Line: line, Field: field.Name, Message: fmt.Sprintf("value not in enum %v", field.Enum)})
			}
		}
	}

	for name := range record {
		if _, declared := s.fieldNames()[name]; !declared {
			errs = append(errs, ValidationError{Line: line, Field: name, Message: "field not declared by schema (should have been dropped at stamping)"})
		}
	}

	return errs
}

func checkType(t FieldType, value any) string {
	switch t {
	case TypeAny, "":
		return ""
	case TypeString:
		if _, ok := value.(string); !ok {
			return "expected string"
		}
	case TypeNumber:
		if _, ok := value.(float64); !ok {
			return "expected number"
		}
	case TypeInteger:
		f, ok := value.(float64)
		if !ok || f != float64(int64(f)) {
			return "expected integer"
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return "expected boolean"
		}
	case TypeArray:
		if _, ok := value.([]any); !ok {
			return "expected array"
		}
	case TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return "expected object"
		}
	}
	return ""
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
