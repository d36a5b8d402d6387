package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
broker:
  driver: sim
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9992", cfg.App.HTTPAddr)
	assert.Equal(t, 60, cfg.Automation.IntervalSeconds)
	assert.Equal(t, "sim", cfg.Broker.Driver)
	assert.Equal(t, 15, cfg.Broker.TimeoutSeconds)
	assert.Equal(t, 5, cfg.Broker.Breaker.Threshold)
	assert.Equal(t, 30, cfg.Broker.Breaker.TimeoutSeconds)
	assert.Equal(t, "/data/db/vigil_audit.db", cfg.Store.AuditPath)
	assert.Equal(t, "/data/db/vigil_runs.db", cfg.Store.RunLogPath)
}

func TestLoadExplicitValuesSurviveDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
app:
  http_addr: ":8080"
automation:
  interval_seconds: 10
  run_immediately: true
  services: ["rules", "alerts"]
broker:
  driver: SIM
  timeout_seconds: 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.App.HTTPAddr)
	assert.Equal(t, 10, cfg.Automation.IntervalSeconds)
	assert.True(t, cfg.Automation.RunImmediately)
	assert.Equal(t, []string{"rules", "alerts"}, cfg.Automation.Services)
	assert.Equal(t, "sim", cfg.Broker.Driver, "driver is normalized to lower case")
	assert.Equal(t, 3, cfg.Broker.TimeoutSeconds)
}

func TestIncludeMergeIncluderWins(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
app:
  log_level: debug
  http_addr: ":7000"
broker:
  driver: sim
`)
	path := writeConfig(t, dir, "config.yaml", `
include:
  - base.yaml
app:
  http_addr: ":7001"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7001", cfg.App.HTTPAddr, "including file overrides the include")
	assert.Equal(t, "debug", cfg.App.LogLevel, "untouched included values survive")
	assert.Equal(t, "sim", cfg.Broker.Driver)
}

func TestIncludeCycleDetected(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeConfig(t, dir, "b.yaml", "include: [a.yaml]\n")

	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestValidationRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "interval too small",
			body: "broker:\n  driver: sim\nautomation:\n  interval_seconds: 2\n",
			want: "interval_seconds",
		},
		{
			name: "unknown service",
			body: "broker:\n  driver: sim\nautomation:\n  services: [rules, chaos]\n",
			want: "unknown service",
		},
		{
			name: "unknown driver",
			body: "broker:\n  driver: ibkr\n",
			want: "broker.driver",
		},
		{
			name: "proxy enabled without url",
			body: "broker:\n  driver: binance\n  proxy:\n    enabled: true\n",
			want: "proxy",
		},
		{
			name: "telegram enabled without credentials",
			body: "broker:\n  driver: sim\nnotify:\n  telegram:\n    enabled: true\n",
			want: "telegram",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeConfig(t, dir, "config.yaml", tt.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadEmptyPathFails(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
}
