// Package failover decides which scheduling backend holds the primary role.
// The Machine is pure: it maps a Snapshot of both backends' health plus the
// persisted counters to a Decision. Persistence and side effects live in the
// Coordinator.
package failover

import (
	"fmt"
	"time"

	"github.com/takops/takops/internal/config"
	"github.com/takops/takops/internal/state"
)

// Snapshot is everything one evaluation looks at.
type Snapshot struct {
	Now    time.Time
	Health map[config.BackendName]BackendHealth
	Roles  map[config.BackendName]state.Role
	Prior  state.FailoverState
}

// Decision is the outcome of one evaluation.
type Decision struct {
	RolesBefore map[config.BackendName]state.Role
	RolesAfter  map[config.BackendName]state.Role
	Scores      map[config.BackendName]int
	// Transition is non-nil when roles changed this evaluation.
	Transition *state.Transition
	// Next holds the counters to persist for the following evaluation.
	Next state.FailoverState
	// Initialized is true when roles were assigned for the first time.
	Initialized bool
}

// Primary returns the backend holding primary after the decision.
func (d *Decision) Primary() config.BackendName {
	for b, r := range d.RolesAfter {
		if r == state.RolePrimary {
			return b
		}
	}
	return ""
}

// Fallback returns the backend holding fallback after the decision.
func (d *Decision) Fallback() config.BackendName {
	for b, r := range d.RolesAfter {
		if r == state.RoleFallback {
			return b
		}
	}
	return ""
}

// schedulable is the fixed pair of backends that can hold roles.
var schedulable = []config.BackendName{config.BackendCron, config.BackendSystemd}

// Machine evaluates failover decisions.
type Machine struct {
	cfg config.FailoverConfig
}

// NewMachine builds a Machine from failover configuration.
func NewMachine(cfg config.FailoverConfig) *Machine {
	return &Machine{cfg: cfg}
}

// Evaluate applies the failover rules to one snapshot.
//
// Rules, in order:
//  1. No roles assigned yet -> initialize (preferred backend primary when its
//     schedule is installed, otherwise whichever backend is installed).
//  2. Primary score below threshold for `consecutive` successive evaluations
//     AND fallback at or above promote_threshold -> swap roles.
//  3. After a failover, the preferred backend scoring at or above
//     recover_threshold for `recover_consecutive` evaluations swaps roles
//     back when failback is enabled.
//
// A fallback that is itself unhealthy never gets promoted; both backends
// unhealthy keeps the current roles.
func (m *Machine) Evaluate(snap Snapshot) Decision {
	d := Decision{
		RolesBefore: map[config.BackendName]state.Role{},
		RolesAfter:  map[config.BackendName]state.Role{},
		Scores:      map[config.BackendName]int{},
		Next:        snap.Prior,
	}
	for _, b := range schedulable {
		d.RolesBefore[b] = snap.Roles[b]
		d.Scores[b] = Score(snap.Health[b])
	}

	primary, fallback, initialized := m.resolveRoles(snap, &d)
	d.RolesAfter[primary] = state.RolePrimary
	d.RolesAfter[fallback] = state.RoleFallback
	if initialized {
		d.Initialized = true
		d.Next = state.FailoverState{Transitions: snap.Prior.Transitions}
		return d
	}

	// Breach tracking for the current primary.
	if d.Scores[primary] < m.cfg.Threshold {
		d.Next.BreachCount = snap.Prior.BreachCount + 1
	} else {
		d.Next.BreachCount = 0
	}

	if d.Next.BreachCount >= m.cfg.Consecutive && d.Scores[fallback] >= m.cfg.PromoteThreshold {
		m.swap(&d, snap, primary, fallback,
			fmt.Sprintf("primary %s unhealthy (score %d < %d for %d checks)",
				primary, d.Scores[primary], m.cfg.Threshold, d.Next.BreachCount))
		return d
	}

	// Recovery tracking for a demoted preferred backend.
	if m.cfg.Failback && snap.Prior.FailedOverAt != nil && primary != m.cfg.Preferred {
		if d.Scores[m.cfg.Preferred] >= m.cfg.RecoverThreshold {
			d.Next.RecoverCount = snap.Prior.RecoverCount + 1
		} else {
			d.Next.RecoverCount = 0
		}
		if d.Next.RecoverCount >= m.cfg.RecoverConsecutive {
			m.swap(&d, snap, primary, fallback,
				fmt.Sprintf("preferred %s recovered (score %d >= %d for %d checks)",
					m.cfg.Preferred, d.Scores[m.cfg.Preferred], m.cfg.RecoverThreshold, d.Next.RecoverCount))
			return d
		}
	} else {
		d.Next.RecoverCount = 0
	}

	return d
}

// resolveRoles returns the (primary, fallback) pair currently in force,
// assigning initial roles when no markers exist.
func (m *Machine) resolveRoles(snap Snapshot, d *Decision) (primary, fallback config.BackendName, initialized bool) {
	var havePrimary, haveFallback bool
	for _, b := range schedulable {
		switch snap.Roles[b] {
		case state.RolePrimary:
			primary, havePrimary = b, true
		case state.RoleFallback:
			fallback, haveFallback = b, true
		}
	}

	switch {
	case havePrimary && haveFallback:
		return primary, fallback, false
	case havePrimary:
		return primary, other(primary), false
	case haveFallback:
		return other(fallback), fallback, false
	}

	// First assignment: preferred backend gets primary when its schedule is
	// installed; otherwise fall back to whichever one is.
	primary = m.cfg.Preferred
	if !snap.Health[primary].Installed && snap.Health[other(primary)].Installed {
		primary = other(primary)
	}
	return primary, other(primary), true
}

func (m *Machine) swap(d *Decision, snap Snapshot, oldPrimary, oldFallback config.BackendName, reason string) {
	d.RolesAfter[oldFallback] = state.RolePrimary
	d.RolesAfter[oldPrimary] = state.RoleFallback

	t := state.Transition{
		At:     snap.Now,
		From:   oldPrimary,
		To:     oldFallback,
		Reason: reason,
		Scores: map[config.BackendName]int{
			oldPrimary:  d.Scores[oldPrimary],
			oldFallback: d.Scores[oldFallback],
		},
	}
	d.Transition = &t

	next := state.FailoverState{Transitions: snap.Prior.Transitions}
	next.RecordTransition(t)
	if oldFallback != m.cfg.Preferred {
		// The preferred backend just got demoted: remember it for failback.
		at := snap.Now
		next.FailedOverAt = &at
	}
	d.Next = next
}

func other(b config.BackendName) config.BackendName {
	if b == config.BackendCron {
		return config.BackendSystemd
	}
	return config.BackendCron
}
