package recipe

import (
	"fmt"
	"regexp"
)

// MergeParams resolves a stage's effective parameters following the
// precedence module defaults < recipe defaults < stage params, then
// fills any field the schema declares a default for and still has no
// value after merging.
func MergeParams(module ModuleManifest, recipeDefaults map[string]any, stageParams map[string]any) map[string]any {
	merged := make(map[string]any, len(module.DefaultParams)+len(recipeDefaults)+len(stageParams))
	for k, v := range module.DefaultParams {
		merged[k] = v
	}
	for k, v := range recipeDefaults {
		merged[k] = v
	}
	for k, v := range stageParams {
		merged[k] = v
	}
	for name, spec := range module.ParamSchema {
		if _, ok := merged[name]; !ok && spec.Default != nil {
			merged[name] = spec.Default
		}
	}
	return merged
}

// ValidateParams checks merged params against a module's param_schema:
// unknown parameters and missing required ones are fatal, as is a
// type/enum/range/pattern mismatch.
func ValidateParams(stageID string, module ModuleManifest, params map[string]any) error {
	for name := range params {
		if _, ok := module.ParamSchema[name]; !ok {
			return fmt.Errorf("stage %q (module %s): unknown parameter %q", stageID, module.ModuleID, name)
		}
	}

	for name, spec := range module.ParamSchema {
		value, present := params[name]
		if !present {
			if spec.Required {
				return fmt.Errorf("stage %q (module %s): missing required parameter %q", stageID, module.ModuleID, name)
			}
			continue
		}
		if err := validateOne(stageID, module.ModuleID, name, spec, value); err != nil {
			return err
		}
	}
	return nil
}

func validateOne(stageID, moduleID, name string, spec ParamSpec, value any) error {
	switch spec.Type {
	case "", "any":
		// untyped, accept anything
	case "string":
		s, ok := value.(string)
		if !ok {
			return typeErr(stageID, moduleID, name, "string", value)
		}
		if spec.Pattern != "" {
			re, err := regexp.Compile(spec.Pattern)
			if err != nil {
				return fmt.Errorf("stage %q (module %s): param %q has invalid pattern %q: %w", stageID, moduleID, name, spec.Pattern, err)
			}
			if !re.MatchString(s) {
				return fmt.Errorf("stage %q (module %s): param %q value %q does not match pattern %q", stageID, moduleID, name, s, spec.Pattern)
			}
		}
		if len(spec.Enum) > 0 && !containsString(spec.Enum, s) {
			return fmt.Errorf("stage %q (module %s): param %q value %q not in enum %v", stageID, moduleID, name, s, spec.Enum)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return typeErr(stageID, moduleID, name, "boolean", value)
		}
	case "number", "integer":
		n, ok := asFloat64(value)
		if !ok {
			return typeErr(stageID, moduleID, name, spec.Type, value)
		}
		if spec.Type == "integer" && n != float64(int64(n)) {
			return fmt.Errorf("stage %q (module %s): param %q expected integer, got %v", stageID, moduleID, name, value)
		}
		if spec.Minimum != nil && n < *spec.Minimum {
			return fmt.Errorf("stage %q (module %s): param %q value %v below minimum %v", stageID, moduleID, name, value, *spec.Minimum)
		}
		if spec.Maximum != nil && n > *spec.Maximum {
			return fmt.Errorf("stage %q (module %s): param %q value %v above maximum %v", stageID, moduleID, name, value, *spec.Maximum)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return typeErr(stageID, moduleID, name, "array", value)
		}
	default:
		return fmt.Errorf("stage %q (module %s): param %q declares unknown schema type %q", stageID, moduleID, name, spec.Type)
	}
	return nil
}

func typeErr(stageID, moduleID, name, expected string, value any) error {
	return fmt.Errorf("Param '%s' on stage '%s' (module %s) expected type %s, got %s", name, stageID, moduleID, expected, goTypeName(value))
}

func goTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	case float64, float32, int, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
