package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeSettings(t, "")
	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "subprocess", s.Runtime.Isolation)
	require.Equal(t, 3, s.Escalation.MaxAttempts)
	require.Equal(t, "default", s.Temporal.Namespace)
}

func TestLoadRejectsDockerIsolationWithoutImage(t *testing.T) {
	path := writeSettings(t, "[runtime]\nisolation = \"docker\"\n")
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "docker_image")
}

func TestLoadRejectsRedisChannelWithoutAddr(t *testing.T) {
	path := writeSettings(t, "[progress]\nredis_channel = \"events\"\n")
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis_addr")
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeSettings(t, "[runtime]\nstage_timeout = \"45m\"\n")
	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "45m0s", s.Runtime.StageTimeout.String())
}

func TestDefaultAppliesTheSameDefaultsAsLoad(t *testing.T) {
	s := Default()
	require.Equal(t, "subprocess", s.Runtime.Isolation)
	require.Equal(t, 3, s.Escalation.MaxAttempts)
	require.Equal(t, "default", s.Temporal.Namespace)
	require.Equal(t, "codex-forge", s.Temporal.TaskQueue)
}
