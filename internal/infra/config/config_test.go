package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "setflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "setflow.db", cfg.Storage.Path)
	assert.Equal(t, 250, cfg.Runner.TickIntervalMs)
	assert.True(t, cfg.Countdown.IsEnabled())
	assert.Equal(t, 3, cfg.Countdown.Seconds)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.Messages.SessionExpired)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
storage:
  path: /tmp/custom.db
runner:
  tick_interval_ms: 500
countdown:
  enabled: false
  seconds: 5
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.db", cfg.Storage.Path)
	assert.Equal(t, 500, cfg.Runner.TickIntervalMs)
	assert.False(t, cfg.Countdown.IsEnabled(), "explicit false must survive defaulting")
	assert.Equal(t, 5, cfg.Countdown.Seconds)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{
			name:    "tick interval too small",
			content: "runner:\n  tick_interval_ms: 10\n",
			wantErr: true,
		},
		{
			name:    "tick interval too large",
			content: "runner:\n  tick_interval_ms: 5000\n",
			wantErr: true,
		},
		{
			name:    "countdown seconds out of range",
			content: "countdown:\n  seconds: 30\n",
			wantErr: true,
		},
		{
			name:    "bad log level",
			content: "log:\n  level: loud\n",
			wantErr: true,
		},
		{
			name:    "bad yaml",
			content: "storage: [unclosed\n",
			wantErr: true,
		},
		{
			name:    "valid edge values",
			content: "runner:\n  tick_interval_ms: 50\ncountdown:\n  seconds: 10\n",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SETFLOW_DB_PATH", "/tmp/env.db")
	t.Setenv("SETFLOW_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env.db", cfg.Storage.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestRunnerConfig_TickInterval(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "250ms", cfg.Runner.TickInterval().String())
}
