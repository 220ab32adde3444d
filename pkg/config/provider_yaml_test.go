package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "water-meter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "meter:\n  name: house\n")

	cfg, err := NewYAMLProvider(path).LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "house", cfg.Meter.Name)
	assert.Equal(t, DefaultZones(), cfg.Meter.Zones)
	assert.Equal(t, DefaultFrameWidth, cfg.Camera.Width)
	assert.Equal(t, DefaultFrameHeight, cfg.Camera.Height)
	require.NotNil(t, cfg.Storage.TotalFile)
	assert.Equal(t, DefaultTotalFile, cfg.Storage.TotalFile.Path)
	require.NotNil(t, cfg.Storage.RRDTool)
	assert.Equal(t, DefaultRRDFile, cfg.Storage.RRDTool.File)
	assert.Nil(t, cfg.Storage.SQLite)
	assert.Equal(t, DefaultSignal, cfg.Control.Signal)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
meter:
  start-value: 510.234
  zones:
    - {x: 1, y: 2, width: 3, height: 4}
    - {x: 5, y: 6, width: 7, height: 8}
camera:
  type: directory
  path: /var/lib/frames
  interval: 250ms
storage:
  total-file:
    path: /tmp/total.log
  rrdtool:
    file: /tmp/water.rrd
    timeout: 3s
  sqlite:
    path: /tmp/history.db
control:
  trigger-file: /run/water-meter/report
overlay:
  path: /tmp/overlay.png
  every: 25
`)

	cfg, err := NewYAMLProvider(path).LoadConfig()
	require.NoError(t, err)

	assert.InDelta(t, 510.234, cfg.Meter.StartValue, 1e-9)
	assert.Equal(t, []ZoneData{{1, 2, 3, 4}, {5, 6, 7, 8}}, cfg.Meter.Zones)
	assert.Equal(t, "directory", cfg.Camera.Type)
	assert.Equal(t, 250*time.Millisecond, cfg.Camera.Interval)
	assert.Equal(t, "/tmp/total.log", cfg.Storage.TotalFile.Path)
	assert.Equal(t, DefaultRRDTool, cfg.Storage.RRDTool.Binary)
	assert.Equal(t, 3*time.Second, cfg.Storage.RRDTool.Timeout)
	assert.Equal(t, "/tmp/history.db", cfg.Storage.SQLite.Path)
	assert.Nil(t, cfg.Storage.TimescaleDB)
	assert.Equal(t, "/run/water-meter/report", cfg.Control.TriggerFile)
	assert.Equal(t, OverlayData{Path: "/tmp/overlay.png", Every: 25}, cfg.Overlay)
}

func TestLoadConfigEmptyStorageDisablesDefaults(t *testing.T) {
	path := writeConfig(t, "storage: {}\n")

	cfg, err := NewYAMLProvider(path).LoadConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg.Storage.TotalFile)
	assert.Nil(t, cfg.Storage.RRDTool)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed yaml", body: "meter: [\n"},
		{name: "bad interval", body: "camera:\n  interval: soon\n"},
		{name: "bad rrd timeout", body: "storage:\n  rrdtool:\n    file: x\n    timeout: 3 parsecs\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewYAMLProvider(writeConfig(t, tt.body)).LoadConfig()
			assert.Error(t, err)
		})
	}

	_, err := NewYAMLProvider(filepath.Join(t.TempDir(), "missing.yaml")).LoadConfig()
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvStartValue, "1234.5")
	t.Setenv(EnvTimescaleDB, "postgres://meter@localhost/water")

	cfg, err := NewYAMLProvider(writeConfig(t, "meter:\n  start-value: 1\n")).LoadConfig()
	require.NoError(t, err)
	assert.InDelta(t, 1234.5, cfg.Meter.StartValue, 1e-9)
	require.NotNil(t, cfg.Storage.TimescaleDB)
	assert.Equal(t, "postgres://meter@localhost/water", cfg.Storage.TimescaleDB.ConnectionString)

	t.Setenv(EnvStartValue, "not-a-number")
	_, err = NewYAMLProvider(writeConfig(t, "")).LoadConfig()
	assert.Error(t, err)
}

func TestDotEnvNextToConfig(t *testing.T) {
	path := writeConfig(t, "")
	envFile := filepath.Join(filepath.Dir(path), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(EnvRRDFile+"=/srv/rrd/water.rrd\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv(EnvRRDFile) })

	p := NewYAMLProvider(path)
	storage, err := p.GetStorageConfig()
	require.NoError(t, err)
	assert.Equal(t, "/srv/rrd/water.rrd", storage.RRDTool.File)

	meter, err := p.GetMeter()
	require.NoError(t, err)
	assert.Len(t, meter.Zones, 8)
}
