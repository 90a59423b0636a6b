package failover

import (
	"time"

	"github.com/takops/takops/internal/config"
)

// BackendHealth is the input snapshot for scoring one scheduling backend.
type BackendHealth struct {
	Backend         config.BackendName `json:"backend"`
	Installed       bool               `json:"installed"`
	SchedulerActive bool               `json:"scheduler_active"`

	HeartbeatPresent bool          `json:"heartbeat_present"`
	HeartbeatAge     time.Duration `json:"heartbeat_age"`
	// StaleAfter is the schedule interval scaled by the grace factor; a
	// heartbeat older than this counts as a missed run.
	StaleAfter          time.Duration `json:"stale_after"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
}

// Stale reports whether the backend's heartbeat is older than its window.
func (h BackendHealth) Stale() bool {
	return h.HeartbeatPresent && h.StaleAfter > 0 && h.HeartbeatAge > h.StaleAfter
}

// Score deductions. A backend without its schedule installed is disqualified
// outright; everything else degrades the score proportionally to how much
// evidence of life is missing.
const (
	deductSchedulerInactive = 60
	deductNoHeartbeat       = 40
	deductStaleHeartbeat    = 40
	deductPerFailure        = 25
	maxFailureDeduction     = 75
)

// Score maps a health snapshot to 0..100.
func Score(h BackendHealth) int {
	if !h.Installed {
		return 0
	}

	score := 100
	if !h.SchedulerActive {
		score -= deductSchedulerInactive
	}
	if !h.HeartbeatPresent {
		score -= deductNoHeartbeat
	} else if h.Stale() {
		score -= deductStaleHeartbeat
	}

	if h.ConsecutiveFailures > 0 {
		d := h.ConsecutiveFailures * deductPerFailure
		if d > maxFailureDeduction {
			d = maxFailureDeduction
		}
		score -= d
	}

	if score < 0 {
		score = 0
	}
	return score
}
