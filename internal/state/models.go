package state

import (
	"time"

	"github.com/takops/takops/internal/config"
)

// Role is the scheduling role persisted in a backend's marker file. The file
// contains the literal string so shell tooling can read it with cat.
type Role string

const (
	RolePrimary  Role = "primary"
	RoleFallback Role = "fallback"
	// RoleNone means no marker exists yet.
	RoleNone Role = ""
)

// RunOutcome classifies one renewal run.
type RunOutcome string

const (
	// OutcomeRenewed means certbot obtained or renewed the certificate.
	OutcomeRenewed RunOutcome = "renewed"
	// OutcomeNotDue means certbot ran but the certificate was not yet due.
	OutcomeNotDue RunOutcome = "not_due"
	// OutcomeSkippedStandby means a fallback-role run observed a fresh primary
	// heartbeat and stood down.
	OutcomeSkippedStandby RunOutcome = "skipped_standby"
	// OutcomeFailed means the run failed after exhausting retries.
	OutcomeFailed RunOutcome = "failed"
)

// Heartbeat is the last-run record a backend writes after every invocation.
type Heartbeat struct {
	RunID      string             `json:"run_id"`
	Backend    config.BackendName `json:"backend"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Outcome    RunOutcome         `json:"outcome"`
	Detail     string             `json:"detail,omitempty"`
	// ConsecutiveFailures counts failed runs since the last success for this backend.
	ConsecutiveFailures int `json:"consecutive_failures"`
}

// Transition records one role swap.
type Transition struct {
	At     time.Time          `json:"at"`
	From   config.BackendName `json:"from"`
	To     config.BackendName `json:"to"`
	Reason string             `json:"reason"`
	// Scores captured at decision time, keyed by backend.
	Scores map[config.BackendName]int `json:"scores,omitempty"`
}

// FailoverState carries the counters the state machine needs between
// time-separated evaluations, plus a bounded transition history.
type FailoverState struct {
	// BreachCount counts successive evaluations with the primary below threshold.
	BreachCount int `json:"breach_count"`
	// RecoverCount counts successive evaluations with the demoted preferred
	// backend above the recovery threshold.
	RecoverCount int `json:"recover_count"`
	// FailedOverAt is set while the preferred backend is demoted.
	FailedOverAt *time.Time   `json:"failed_over_at,omitempty"`
	Transitions  []Transition `json:"transitions,omitempty"`
}

// maxTransitions bounds the persisted history.
const maxTransitions = 20

// RecordTransition appends t, trimming the oldest entries past the bound.
func (f *FailoverState) RecordTransition(t Transition) {
	f.Transitions = append(f.Transitions, t)
	if len(f.Transitions) > maxTransitions {
		f.Transitions = f.Transitions[len(f.Transitions)-maxTransitions:]
	}
}
