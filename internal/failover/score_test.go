package failover

import (
	"testing"
	"time"

	"github.com/takops/takops/internal/config"
)

func healthy(b config.BackendName) BackendHealth {
	return BackendHealth{
		Backend:          b,
		Installed:        true,
		SchedulerActive:  true,
		HeartbeatPresent: true,
		HeartbeatAge:     2 * time.Hour,
		StaleAfter:       36 * time.Hour,
	}
}

func TestScoreHealthy(t *testing.T) {
	if got := Score(healthy(config.BackendCron)); got != 100 {
		t.Fatalf("healthy backend expected 100 got %d", got)
	}
}

func TestScoreNotInstalled(t *testing.T) {
	h := healthy(config.BackendCron)
	h.Installed = false
	// Everything else healthy, but no schedule means disqualified.
	if got := Score(h); got != 0 {
		t.Fatalf("uninstalled backend expected 0 got %d", got)
	}
}

func TestScoreDeductions(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*BackendHealth)
		want   int
	}{
		{"scheduler inactive", func(h *BackendHealth) { h.SchedulerActive = false }, 40},
		{"no heartbeat", func(h *BackendHealth) { h.HeartbeatPresent = false }, 60},
		{"stale heartbeat", func(h *BackendHealth) { h.HeartbeatAge = 48 * time.Hour }, 60},
		{"one failure", func(h *BackendHealth) { h.ConsecutiveFailures = 1 }, 75},
		{"two failures", func(h *BackendHealth) { h.ConsecutiveFailures = 2 }, 50},
		{"failure deduction capped", func(h *BackendHealth) { h.ConsecutiveFailures = 10 }, 25},
		{"inactive and stale", func(h *BackendHealth) {
			h.SchedulerActive = false
			h.HeartbeatAge = 48 * time.Hour
		}, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := healthy(config.BackendCron)
			c.mutate(&h)
			if got := Score(h); got != c.want {
				t.Fatalf("expected %d got %d", c.want, got)
			}
		})
	}
}

func TestScoreNeverNegative(t *testing.T) {
	h := healthy(config.BackendCron)
	h.SchedulerActive = false
	h.HeartbeatPresent = false
	h.ConsecutiveFailures = 10
	if got := Score(h); got != 0 {
		t.Fatalf("score must clamp at 0, got %d", got)
	}
}

func TestStale(t *testing.T) {
	h := healthy(config.BackendSystemd)
	if h.Stale() {
		t.Fatalf("fresh heartbeat should not be stale")
	}
	h.HeartbeatAge = 37 * time.Hour
	if !h.Stale() {
		t.Fatalf("heartbeat past window should be stale")
	}
	h.HeartbeatPresent = false
	if h.Stale() {
		t.Fatalf("absent heartbeat is not stale, it is absent")
	}
}
