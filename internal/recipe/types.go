// Package recipe loads recipe and module-manifest documents and plans
// the stage DAG they describe.
package recipe

// Recipe is the top-level document a run is launched from.
type Recipe struct {
	Name            string                    `yaml:"name"`
	Stages          []Stage                   `yaml:"stages"`
	DefaultParams   map[string]map[string]any `yaml:"default_params"`
	Outputs         map[string]string         `yaml:"outputs"`
	Instrumentation *InstrumentationConfig    `yaml:"instrumentation"`
}

// InstrumentationConfig is the recipe's optional instrumentation block.
type InstrumentationConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PriceTable string `yaml:"price_table"`
}

// Stage is one DAG node in a recipe.
type Stage struct {
	ID     string         `yaml:"id"`
	Module string         `yaml:"module"`
	Needs  []string       `yaml:"needs"`
	Params map[string]any `yaml:"params"`
	Out    string         `yaml:"out"`
	// AllowStubs gates whether an escalation-capable module may finish
	// with unresolved items instead of failing the stage.
	AllowStubs bool `yaml:"allow_stubs"`
}

// ModuleManifest declares one content module's contract: what schemas
// it consumes and produces, and how its parameters are validated.
type ModuleManifest struct {
	ModuleID      string               `yaml:"module_id"`
	Entrypoint    string               `yaml:"entrypoint"`
	// Image names the container image the docker isolation backend
	// builds the module's invocation from; unused under the default
	// process backend.
	Image         string               `yaml:"image"`
	InputSchemas  []string             `yaml:"input_schemas"`
	OutputSchema  string               `yaml:"output_schema"`
	DefaultParams map[string]any       `yaml:"default_params"`
	ParamSchema   map[string]ParamSpec `yaml:"param_schema"`
	Notes         string               `yaml:"notes"`
}

// ParamSpec is a JSON-Schema-lite declaration for one module parameter.
type ParamSpec struct {
	Type     string   `yaml:"type"` // "string", "number", "integer", "boolean", "array"
	Enum     []string `yaml:"enum"`
	Minimum  *float64 `yaml:"minimum"`
	Maximum  *float64 `yaml:"maximum"`
	Pattern  string   `yaml:"pattern"`
	Default  any      `yaml:"default"`
	Required bool     `yaml:"required"`
}

// ModuleRegistry is the explicit, build-time table of known modules —
// populated once from manifest files on disk and/or Go-level
// registration of in-tree modules (the mock module).
type ModuleRegistry struct {
	modules map[string]ModuleManifest
}

// NewModuleRegistry returns an empty registry.
func NewModuleRegistry() *ModuleRegistry {
	return &ModuleRegistry{modules: make(map[string]ModuleManifest)}
}

// RegisterBuiltin adds an in-tree module manifest (e.g. the mock
// module) that has no manifest file on disk.
func (r *ModuleRegistry) RegisterBuiltin(m ModuleManifest) {
	r.modules[m.ModuleID] = m
}

// Get returns a manifest by module id.
func (r *ModuleRegistry) Get(moduleID string) (ModuleManifest, bool) {
	m, ok := r.modules[moduleID]
	return m, ok
}

// Names returns every registered module id.
func (r *ModuleRegistry) Names() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	return names
}
