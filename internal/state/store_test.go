package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takops/takops/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestRoleMarkerRoundTrip(t *testing.T) {
	s := newTestStore(t)

	r, err := s.Role(config.BackendCron)
	require.NoError(t, err)
	assert.Equal(t, RoleNone, r)

	require.NoError(t, s.SetRole(config.BackendCron, RolePrimary))
	require.NoError(t, s.SetRole(config.BackendSystemd, RoleFallback))

	r, err = s.Role(config.BackendCron)
	require.NoError(t, err)
	assert.Equal(t, RolePrimary, r)

	// The marker file holds the literal role string, newline-terminated, so
	// shell tooling can read it.
	raw, err := os.ReadFile(filepath.Join(s.Dir(), "scheduler", "cron.role"))
	require.NoError(t, err)
	assert.Equal(t, "primary\n", string(raw))
}

func TestRoleMarkerRejectsGarbage(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(s.Dir(), "scheduler", "systemd.role")
	require.NoError(t, os.WriteFile(path, []byte("bananas\n"), 0o644))

	_, err := s.Role(config.BackendSystemd)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bananas"))
}

func TestClearRoles(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetRole(config.BackendCron, RolePrimary))
	require.NoError(t, s.ClearRoles())

	r, err := s.Role(config.BackendCron)
	require.NoError(t, err)
	assert.Equal(t, RoleNone, r)

	// Clearing an already-empty store is fine.
	require.NoError(t, s.ClearRoles())
}

func TestHeartbeatFailureCounter(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	hb := &Heartbeat{RunID: "r1", Backend: config.BackendCron, StartedAt: now, FinishedAt: now, Outcome: OutcomeFailed}
	require.NoError(t, s.WriteHeartbeat(hb))
	assert.Equal(t, 1, hb.ConsecutiveFailures)

	hb2 := &Heartbeat{RunID: "r2", Backend: config.BackendCron, StartedAt: now, FinishedAt: now, Outcome: OutcomeFailed}
	require.NoError(t, s.WriteHeartbeat(hb2))
	assert.Equal(t, 2, hb2.ConsecutiveFailures)

	// A standby skip preserves the streak.
	hb3 := &Heartbeat{RunID: "r3", Backend: config.BackendCron, StartedAt: now, FinishedAt: now, Outcome: OutcomeSkippedStandby}
	require.NoError(t, s.WriteHeartbeat(hb3))
	assert.Equal(t, 2, hb3.ConsecutiveFailures)

	// Success clears it.
	hb4 := &Heartbeat{RunID: "r4", Backend: config.BackendCron, StartedAt: now, FinishedAt: now, Outcome: OutcomeNotDue}
	require.NoError(t, s.WriteHeartbeat(hb4))
	assert.Equal(t, 0, hb4.ConsecutiveFailures)

	got, err := s.Heartbeat(config.BackendCron)
	require.NoError(t, err)
	assert.Equal(t, "r4", got.RunID)
}

func TestHeartbeatAge(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.HeartbeatAge(config.BackendSystemd, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	finished := time.Now().Add(-90 * time.Minute)
	require.NoError(t, s.WriteHeartbeat(&Heartbeat{
		RunID: "r1", Backend: config.BackendSystemd,
		StartedAt: finished.Add(-time.Minute), FinishedAt: finished,
		Outcome: OutcomeRenewed,
	}))

	age, ok, err := s.HeartbeatAge(config.BackendSystemd, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 90*time.Minute, age, float64(time.Minute))
}

func TestFailoverStateRoundTrip(t *testing.T) {
	s := newTestStore(t)

	fs, err := s.Failover()
	require.NoError(t, err)
	assert.Equal(t, 0, fs.BreachCount)

	now := time.Now()
	fs.BreachCount = 2
	fs.FailedOverAt = &now
	fs.RecordTransition(Transition{
		At: now, From: config.BackendSystemd, To: config.BackendCron,
		Reason: "primary unhealthy",
		Scores: map[config.BackendName]int{config.BackendSystemd: 20, config.BackendCron: 95},
	})
	require.NoError(t, s.WriteFailover(fs))

	got, err := s.Failover()
	require.NoError(t, err)
	assert.Equal(t, 2, got.BreachCount)
	require.Len(t, got.Transitions, 1)
	assert.Equal(t, config.BackendCron, got.Transitions[0].To)
}

func TestTransitionHistoryBounded(t *testing.T) {
	fs := &FailoverState{}
	for i := 0; i < maxTransitions+5; i++ {
		fs.RecordTransition(Transition{At: time.Now(), Reason: "x"})
	}
	assert.Len(t, fs.Transitions, maxTransitions)
}
