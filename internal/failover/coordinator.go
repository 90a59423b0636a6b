package failover

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/takops/takops/internal/config"
	"github.com/takops/takops/internal/sched"
	"github.com/takops/takops/internal/state"
)

// Notifier receives failover transitions. Implemented by the notify package;
// nil disables notifications.
type Notifier interface {
	PublishTransition(ctx context.Context, t state.Transition) error
}

// Coordinator gathers health snapshots, runs the Machine, and persists the
// outcome. It is the only writer of role markers during normal operation.
type Coordinator struct {
	store    *state.Store
	machine  *Machine
	backends []sched.Backend
	schedule config.ScheduleConfig
	notifier Notifier

	// now is injectable for tests.
	now func() time.Time
}

// NewCoordinator wires a coordinator.
func NewCoordinator(store *state.Store, cfg *config.Config, backends []sched.Backend, notifier Notifier) *Coordinator {
	return &Coordinator{
		store:    store,
		machine:  NewMachine(cfg.Failover),
		backends: backends,
		schedule: cfg.Schedule,
		notifier: notifier,
		now:      time.Now,
	}
}

// Snapshot collects the current health of every schedulable backend.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	now := c.now()
	snap := Snapshot{
		Now:    now,
		Health: map[config.BackendName]BackendHealth{},
		Roles:  map[config.BackendName]state.Role{},
	}

	staleAfter, err := sched.StaleAfter(c.schedule.CronExpr, c.schedule.GraceFactor, now)
	if err != nil {
		return snap, fmt.Errorf("derive staleness window: %w", err)
	}

	for _, b := range c.backends {
		st, err := b.Status(ctx)
		if err != nil {
			return snap, fmt.Errorf("status of %s backend: %w", b.Name(), err)
		}

		h := BackendHealth{
			Backend:         b.Name(),
			Installed:       st.Installed,
			SchedulerActive: st.SchedulerActive,
			StaleAfter:      staleAfter,
		}

		hb, err := c.store.Heartbeat(b.Name())
		if err != nil {
			return snap, err
		}
		if hb != nil {
			h.HeartbeatPresent = true
			h.HeartbeatAge = now.Sub(hb.FinishedAt)
			h.ConsecutiveFailures = hb.ConsecutiveFailures
		}
		snap.Health[b.Name()] = h

		role, err := c.store.Role(b.Name())
		if err != nil {
			// A corrupt marker is treated as absent; the machine will
			// re-derive roles rather than refuse to run.
			slog.Warn("Ignoring unreadable role marker", "backend", b.Name(), "error", err)
			role = state.RoleNone
		}
		snap.Roles[b.Name()] = role
	}

	prior, err := c.store.Failover()
	if err != nil {
		return snap, err
	}
	snap.Prior = *prior
	return snap, nil
}

// Check runs one full evaluation and persists the outcome.
func (c *Coordinator) Check(ctx context.Context) (*Decision, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	d := c.machine.Evaluate(snap)

	if err := c.persist(&d); err != nil {
		return nil, err
	}

	if d.Initialized {
		slog.Info("Assigned initial scheduler roles",
			"primary", d.Primary(), "fallback", d.Fallback())
	}
	if d.Transition != nil {
		slog.Warn("Scheduler failover",
			"from", d.Transition.From,
			"to", d.Transition.To,
			"reason", d.Transition.Reason)
		if c.notifier != nil {
			if err := c.notifier.PublishTransition(ctx, *d.Transition); err != nil {
				slog.Warn("Failed to publish failover event", "error", err)
			}
		}
	}
	return &d, nil
}

// Trigger forces a role swap regardless of health, for operator-driven
// failover drills.
func (c *Coordinator) Trigger(ctx context.Context, reason string) (*Decision, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	d := c.machine.Evaluate(snap)
	primary, fallback := d.Primary(), d.Fallback()

	forced := state.Transition{
		At:     snap.Now,
		From:   primary,
		To:     fallback,
		Reason: reason,
		Scores: d.Scores,
	}
	d.RolesAfter[fallback] = state.RolePrimary
	d.RolesAfter[primary] = state.RoleFallback
	d.Transition = &forced

	next := state.FailoverState{Transitions: snap.Prior.Transitions}
	next.RecordTransition(forced)
	if fallback != c.machine.cfg.Preferred {
		at := snap.Now
		next.FailedOverAt = &at
	}
	d.Next = next

	if err := c.persist(&d); err != nil {
		return nil, err
	}
	slog.Warn("Manual scheduler failover", "from", forced.From, "to", forced.To, "reason", reason)
	if c.notifier != nil {
		if err := c.notifier.PublishTransition(ctx, forced); err != nil {
			slog.Warn("Failed to publish failover event", "error", err)
		}
	}
	return &d, nil
}

func (c *Coordinator) persist(d *Decision) error {
	for b, r := range d.RolesAfter {
		if d.RolesBefore[b] != r {
			if err := c.store.SetRole(b, r); err != nil {
				return err
			}
		}
	}
	return c.store.WriteFailover(&d.Next)
}
