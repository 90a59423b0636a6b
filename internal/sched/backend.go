// Package sched manages the two OS scheduling backends (cron and systemd
// timers) that drive renewal runs. Both are kept installed at all times; the
// failover machinery decides which one is primary.
package sched

import (
	"context"
	"os"

	"github.com/takops/takops/internal/config"
)

// Status describes one backend's installation and liveness.
type Status struct {
	Backend config.BackendName `json:"backend"`
	// Installed reports whether the schedule artifact (cron.d file, timer
	// unit) is present.
	Installed bool `json:"installed"`
	// SchedulerActive reports whether the underlying scheduler is running
	// (cron daemon active, timer unit active).
	SchedulerActive bool   `json:"scheduler_active"`
	Detail          string `json:"detail,omitempty"`
}

// Backend provisions and inspects one scheduling mechanism.
type Backend interface {
	Name() config.BackendName
	// Setup installs the schedule so the backend invokes `takops renew`.
	Setup(ctx context.Context) error
	// Remove uninstalls the schedule.
	Remove(ctx context.Context) error
	// Status reports installation and scheduler liveness.
	Status(ctx context.Context) (*Status, error)
}

// executablePath resolves the takops binary path for generated schedule
// entries, falling back to the conventional install location.
func executablePath() string {
	if p, err := os.Executable(); err == nil && p != "" {
		return p
	}
	return "/usr/local/bin/takops"
}
