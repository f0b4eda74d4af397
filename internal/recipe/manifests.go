package recipe

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadManifests scans dir for *.manifest.yaml files and returns a
// ModuleRegistry built from their contents. Manifests are read once at
// startup, not re-scanned per stage.
func LoadManifests(dir string) (*ModuleRegistry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("recipe: read manifest dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".manifest.yaml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	reg := NewModuleRegistry()
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("recipe: read manifest %s: %w", path, err)
		}
		var m ModuleManifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("recipe: parse manifest %s: %w", path, err)
		}
		if m.ModuleID == "" {
			return nil, fmt.Errorf("recipe: manifest %s missing module_id", path)
		}
		if _, exists := reg.Get(m.ModuleID); exists {
			return nil, fmt.Errorf("recipe: duplicate module_id %q (from %s)", m.ModuleID, path)
		}
		reg.RegisterBuiltin(m)
	}
	return reg, nil
}

// LoadManifestDirs merges manifests from several directories, later
// directories winning on module id collision only if explicitly
// allowed — here collisions are always fatal to keep the registry
// deterministic.
func LoadManifestDirs(dirs []string) (*ModuleRegistry, error) {
	merged := NewModuleRegistry()
	for _, dir := range dirs {
		reg, err := LoadManifests(dir)
		if err != nil {
			return nil, err
		}
		for _, name := range reg.Names() {
			m, _ := reg.Get(name)
			if _, exists := merged.Get(name); exists {
				return nil, fmt.Errorf("recipe: module_id %q declared in more than one manifest directory", name)
			}
			merged.RegisterBuiltin(m)
		}
	}
	return merged, nil
}

// LoadRecipe parses a recipe YAML document from path.
func LoadRecipe(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("recipe: read %s: %w", path, err)
	}
	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("recipe: parse %s: %w", path, err)
	}
	if len(r.Stages) == 0 {
		return nil, fmt.Errorf("recipe: %s declares no stages", path)
	}
	return &r, nil
}
