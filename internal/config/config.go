// Package config loads and validates the codex-forge TOML settings file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Settings is the top-level decoded TOML document. A recipe's own
// settings block overrides matching fields (module defaults < recipe
// defaults, enforced by the recipe planner, not here).
type Settings struct {
	Store      Store      `toml:"store"`
	Runtime    Runtime    `toml:"runtime"`
	Resume     Resume     `toml:"resume"`
	Escalation Escalation `toml:"escalation"`
	Progress   Progress   `toml:"progress"`
	Validation Validation `toml:"validation"`
	Temporal   Temporal   `toml:"temporal"`
}

// Store configures the artifact store.
type Store struct {
	RootDir       string `toml:"root_dir"`
	MirrorS3Bucket string `toml:"mirror_s3_bucket"`
	MirrorS3Prefix string `toml:"mirror_s3_prefix"`
	MirrorS3Region string `toml:"mirror_s3_region"`
}

// Runtime configures how module stages are invoked.
type Runtime struct {
	Isolation      string            `toml:"isolation"` // "subprocess" or "docker"
	DockerImage    string            `toml:"docker_image"`
	DockerNetwork  string            `toml:"docker_network"`
	StageTimeout   Duration          `toml:"stage_timeout"`
	Env            map[string]string `toml:"env"`
	ManifestDirs   []string          `toml:"manifest_dirs"`
}

// Resume configures the resume/invalidation controller.
type Resume struct {
	HashCacheDB string `toml:"hash_cache_db"`
}

// Escalation configures the cheap-pass/boost-pass contract's bounds.
type Escalation struct {
	MaxAttempts int  `toml:"max_attempts"`
	AllowStubs  bool `toml:"allow_stubs"`
}

// Progress configures the event log and instrumentation sinks.
type Progress struct {
	RedisAddr      string `toml:"redis_addr"`
	RedisChannel   string `toml:"redis_channel"`
	PriceSheetPath string `toml:"price_sheet_path"`
}

// Validation configures the final validation gate.
type Validation struct {
	DocumentSchemaPath string `toml:"document_schema_path"`
}

// Temporal configures the optional Temporal execution backend.
type Temporal struct {
	Enabled   bool   `toml:"enabled"`
	HostPort  string `toml:"host_port"`
	Namespace string `toml:"namespace"`
	TaskQueue string `toml:"task_queue"`
}

// Default returns a Settings value with every field defaulted, for
// runs launched without a --settings overlay.
func Default() *Settings {
	var s Settings
	applyDefaults(&s)
	normalizePaths(&s)
	return &s
}

// Load reads and validates a codex-forge TOML settings file.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var s Settings
	if _, err := toml.Decode(string(data), &s); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyDefaults(&s)
	normalizePaths(&s)

	if err := validate(&s); err != nil {
		return nil, fmt.Errorf("config: validating %s: %w", path, err)
	}
	return &s, nil
}

func applyDefaults(s *Settings) {
	if s.Store.RootDir == "" {
		s.Store.RootDir = "./runs"
	}
	if s.Runtime.Isolation == "" {
		s.Runtime.Isolation = "subprocess"
	}
	if s.Runtime.StageTimeout.Duration == 0 {
		s.Runtime.StageTimeout.Duration = 30 * time.Minute
	}
	if s.Resume.HashCacheDB == "" {
		s.Resume.HashCacheDB = filepath.Join(s.Store.RootDir, "resume_cache.sqlite")
	}
	if s.Escalation.MaxAttempts == 0 {
		s.Escalation.MaxAttempts = 3
	}
	if s.Temporal.TaskQueue == "" {
		s.Temporal.TaskQueue = "codex-forge"
	}
	if s.Temporal.Namespace == "" {
		s.Temporal.Namespace = "default"
	}
}

func normalizePaths(s *Settings) {
	s.Store.RootDir = expandHome(strings.TrimSpace(s.Store.RootDir))
	s.Resume.HashCacheDB = expandHome(strings.TrimSpace(s.Resume.HashCacheDB))
	s.Progress.PriceSheetPath = expandHome(strings.TrimSpace(s.Progress.PriceSheetPath))
	s.Validation.DocumentSchemaPath = expandHome(strings.TrimSpace(s.Validation.DocumentSchemaPath))
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func validate(s *Settings) error {
	switch s.Runtime.Isolation {
	case "subprocess", "docker":
	default:
		return fmt.Errorf("runtime.isolation must be subprocess or docker, got %q", s.Runtime.Isolation)
	}
	if s.Runtime.Isolation == "docker" && s.Runtime.DockerImage == "" {
		return fmt.Errorf("runtime.docker_image is required when runtime.isolation is docker")
	}
	if s.Escalation.MaxAttempts < 1 {
		return fmt.Errorf("escalation.max_attempts must be >= 1")
	}
	if s.Progress.RedisChannel != "" && s.Progress.RedisAddr == "" {
		return fmt.Errorf("progress.redis_addr is required when progress.redis_channel is set")
	}
	if s.Store.MirrorS3Bucket != "" && s.Store.MirrorS3Region == "" {
		return fmt.Errorf("store.mirror_s3_region is required when store.mirror_s3_bucket is set")
	}
	if s.Temporal.Enabled && s.Temporal.HostPort == "" {
		return fmt.Errorf("temporal.host_port is required when temporal.enabled is true")
	}
	return nil
}
