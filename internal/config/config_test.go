package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0o644))
	return dir
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.FrameInterval, cfg.FrameInterval)
	assert.Equal(t, def.Workers, cfg.Workers)
	assert.Empty(t, cfg.Path)
}

func TestLoad_File(t *testing.T) {
	dir := writeConfig(t, `
workers = 3
frame_interval = "2ms"
log_level = "debug"
database = "runs.db"

[schedulers.physics]
interval = "8ms"
workers = 2
`)
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 2*time.Millisecond, cfg.FrameInterval)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "runs.db", cfg.Database)
	assert.Equal(t, Scheduler{Interval: 8 * time.Millisecond, Workers: 2}, cfg.SchedulerFor("physics"))
	assert.Equal(t, Scheduler{}, cfg.SchedulerFor("render"))
	assert.Equal(t, filepath.Join(dir, FileName), cfg.Path)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := writeConfig(t, "workers = 3\nmax_catch_up = 2\n")
	t.Setenv("SERVAL_WORKERS", "7")
	t.Setenv("SERVAL_FRAME_INTERVAL", "1ms")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Workers)
	assert.Equal(t, time.Millisecond, cfg.FrameInterval)
	assert.Equal(t, 2, cfg.MaxCatchUp, "unset variables keep file values")
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("SERVAL_WORKERS", "many")
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestLoad_UnknownKey(t *testing.T) {
	_, err := Load(writeConfig(t, "wrokers = 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrokers")
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "workers = 0\nlog_level = \"loud\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers must be >= 1")
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
