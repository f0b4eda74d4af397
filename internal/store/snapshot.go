package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SnapshotKind names one of the documents captured at run start so a
// run can be reproduced exactly.
type SnapshotKind string

const (
	SnapshotRecipe   SnapshotKind = "recipe.yaml"
	SnapshotPlan     SnapshotKind = "plan.json"
	SnapshotRegistry SnapshotKind = "registry.json"
	SnapshotSettings SnapshotKind = "settings.yaml"
	SnapshotPricing  SnapshotKind = "pricing.yaml"
)

// Snapshot writes content into <run>/snapshots/<kind> using
// write-new-then-rename so a reader never observes a partial file.
// YAML kinds are marshaled as YAML, JSON kinds as JSON; content may
// also already be raw bytes (passed through unchanged).
func (r *Run) Snapshot(kind SnapshotKind, content any) error {
	path := filepath.Join(r.SnapshotDir(), string(kind))

	var raw []byte
	var err error
	switch v := content.(type) {
	case []byte:
		raw = v
	default:
		switch kind {
		case SnapshotRecipe, SnapshotSettings, SnapshotPricing:
			raw, err = yaml.Marshal(content)
		default:
			raw, err = json.MarshalIndent(content, "", "  ")
		}
	}
	if err != nil {
		return fmt.Errorf("store: marshal snapshot %s: %w", kind, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("store: write snapshot %s: %w", kind, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: finalize snapshot %s: %w", kind, err)
	}
	return nil
}
