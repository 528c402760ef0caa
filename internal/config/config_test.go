package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	originalDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	defer os.Chdir(originalDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "embedqueue.db", cfg.Store.Path)
	assert.Equal(t, 500*time.Millisecond, cfg.Dispatch.DequeueInterval)
	assert.Equal(t, 30*time.Second, cfg.Repair.MissingAfter)
	assert.Equal(t, 172*time.Hour, cfg.Repair.RemoveAfter)
	assert.Equal(t, 172*time.Hour, cfg.Repair.StuckAfter)
	assert.Equal(t, 1*time.Minute, cfg.Repair.Interval)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_WithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := tmpDir + "/config.yaml"

	configContent := `
store:
  path: "/var/lib/embedqueue/jobs.db"

dispatch:
  dequeueinterval: 1s

repair:
  missingafter: 1m
  stuckafter: 2h

loglevel: "warn"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	originalDir, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(originalDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/embedqueue/jobs.db", cfg.Store.Path)
	assert.Equal(t, 1*time.Second, cfg.Dispatch.DequeueInterval)
	assert.Equal(t, 1*time.Minute, cfg.Repair.MissingAfter)
	assert.Equal(t, 2*time.Hour, cfg.Repair.StuckAfter)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestRepairConfig_Fields(t *testing.T) {
	cfg := RepairConfig{
		MissingAfter: time.Minute,
		RemoveAfter:  time.Hour,
		StuckAfter:   2 * time.Hour,
		Interval:     30 * time.Second,
	}

	assert.Equal(t, time.Minute, cfg.MissingAfter)
	assert.Equal(t, time.Hour, cfg.RemoveAfter)
}

func TestDispatchConfig_Fields(t *testing.T) {
	cfg := DispatchConfig{DequeueInterval: 250 * time.Millisecond}
	assert.Equal(t, 250*time.Millisecond, cfg.DequeueInterval)
}
