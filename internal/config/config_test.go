package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "takops.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
domain: tak.example.org
acme:
  enabled: true
  email: ops@example.org
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/takops", cfg.StateDir)
	assert.Equal(t, "17 3 * * *", cfg.Schedule.CronExpr)
	assert.Equal(t, 1.5, cfg.Schedule.GraceFactor)
	assert.Equal(t, 50, cfg.Failover.Threshold)
	assert.Equal(t, BackendSystemd, cfg.Failover.Preferred)
	assert.Equal(t, RetryBackoffExponential, cfg.Retry.Mode)
	assert.Equal(t, 2*time.Minute, cfg.Retry.Max)
	assert.Equal(t, ACMEMethodWebroot, cfg.ACME.Method)
}

func TestLoadEnvironmentOverlay(t *testing.T) {
	path := writeConfig(t, `
domain: tak.example.org
acme:
  enabled: true
  email: ops@example.org
`)

	t.Setenv("TAK_URI", "gs.example.net")
	t.Setenv("LE_EMAIL", "certs@example.net")
	t.Setenv("TAKOPS_STATE_DIR", "/tmp/takops-state")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gs.example.net", cfg.Domain)
	assert.Equal(t, "certs@example.net", cfg.ACME.Email)
	assert.Equal(t, "/tmp/takops-state", cfg.StateDir)
}

func TestLoadRejectsMissingDomain(t *testing.T) {
	path := writeConfig(t, `
acme:
  enabled: true
  email: ops@example.org
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain is required")
}

func TestLoadRejectsBadCronExpr(t *testing.T) {
	path := writeConfig(t, `
domain: tak.example.org
acme:
  enabled: false
schedule:
  cron_expr: "not a cron line"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cron_expr")
}

func TestLoadOrDefaultWithoutFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/takops", cfg.StateDir)
	assert.False(t, cfg.ACME.Enabled)
}

func TestInitRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "takops.yaml")

	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false))
	require.NoError(t, Init(path, true))

	// The generated default must itself load.
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tak.example.org", cfg.Domain)
}
