package sched

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takops/takops/internal/config"
	"github.com/takops/takops/internal/execx"
)

func newTestSystemdBackend(t *testing.T, runner execx.Runner) *SystemdBackend {
	t.Helper()
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	b := NewSystemdBackend(runner, cfg, "/etc/takops/takops.yaml")
	b.unitDir = t.TempDir()
	b.binPath = "/usr/local/bin/takops"
	return b
}

func TestSystemdSetupWritesUnits(t *testing.T) {
	fake := execx.NewFakeRunner()
	b := newTestSystemdBackend(t, fake)

	require.NoError(t, b.Setup(context.Background()))

	service, err := os.ReadFile(b.servicePath())
	require.NoError(t, err)
	assert.Contains(t, string(service), "Type=oneshot")
	assert.Contains(t, string(service), "ExecStart=/usr/local/bin/takops -c /etc/takops/takops.yaml renew --backend systemd")

	timer, err := os.ReadFile(b.timerPath())
	require.NoError(t, err)
	assert.Contains(t, string(timer), "OnCalendar=*-*-* 03:17:00")
	assert.Contains(t, string(timer), "Persistent=true")

	assert.True(t, fake.CalledWith("systemctl", "daemon-reload"))
	assert.True(t, fake.CalledWith("systemctl", "enable", "--now", "takops-renew.timer"))
}

func TestSystemdSetupFailsWhenEnableFails(t *testing.T) {
	fake := execx.NewFakeRunner()
	fake.Responses["systemctl"] = execx.FakeResponse{ExitCode: 1, Stderr: "Failed to enable unit"}
	b := newTestSystemdBackend(t, fake)

	require.Error(t, b.Setup(context.Background()))
}

func TestSystemdRemoveCleansUnits(t *testing.T) {
	fake := execx.NewFakeRunner()
	b := newTestSystemdBackend(t, fake)

	require.NoError(t, b.Setup(context.Background()))
	require.NoError(t, b.Remove(context.Background()))

	_, err := os.Stat(b.timerPath())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(b.servicePath())
	assert.True(t, os.IsNotExist(err))
	assert.True(t, fake.CalledWith("systemctl", "disable", "--now", "takops-renew.timer"))

	// Removing again is fine even though disable now fails.
	fake.Responses["systemctl"] = execx.FakeResponse{ExitCode: 1}
	require.NoError(t, b.Remove(context.Background()))
}

func TestSystemdStatus(t *testing.T) {
	fake := execx.NewFakeRunner()
	b := newTestSystemdBackend(t, fake)

	st, err := b.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Installed)
	assert.True(t, st.SchedulerActive) // fake systemctl reports active

	require.NoError(t, b.Setup(context.Background()))
	st, err = b.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Installed)

	fake.Responses["systemctl"] = execx.FakeResponse{ExitCode: 3}
	st, err = b.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.SchedulerActive)
}
