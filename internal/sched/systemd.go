package sched

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/takops/takops/internal/config"
	"github.com/takops/takops/internal/errors"
	"github.com/takops/takops/internal/execx"
)

const (
	renewServiceUnit = "takops-renew.service"
	renewTimerUnit   = "takops-renew.timer"
)

// SystemdBackend manages a service/timer unit pair under /etc/systemd/system.
type SystemdBackend struct {
	runner     execx.Runner
	onCalendar string
	// unitDir is /etc/systemd/system in production, overridable for tests.
	unitDir    string
	binPath    string
	configPath string
}

// NewSystemdBackend constructs a systemd backend from configuration.
func NewSystemdBackend(runner execx.Runner, cfg *config.Config, configPath string) *SystemdBackend {
	return &SystemdBackend{
		runner:     runner,
		onCalendar: cfg.Schedule.SystemdOnCalendar,
		unitDir:    "/etc/systemd/system",
		binPath:    executablePath(),
		configPath: configPath,
	}
}

// Name implements Backend.
func (s *SystemdBackend) Name() config.BackendName { return config.BackendSystemd }

func (s *SystemdBackend) servicePath() string { return filepath.Join(s.unitDir, renewServiceUnit) }
func (s *SystemdBackend) timerPath() string   { return filepath.Join(s.unitDir, renewTimerUnit) }

func (s *SystemdBackend) serviceUnit() string {
	return strings.Join([]string{
		"[Unit]",
		"Description=takops certificate renewal run",
		"After=network-online.target",
		"Wants=network-online.target",
		"",
		"[Service]",
		"Type=oneshot",
		fmt.Sprintf("ExecStart=%s -c %s renew --backend systemd", s.binPath, s.configPath),
		"",
	}, "\n")
}

func (s *SystemdBackend) timerUnit() string {
	return strings.Join([]string{
		"[Unit]",
		"Description=takops certificate renewal schedule",
		"",
		"[Timer]",
		fmt.Sprintf("OnCalendar=%s", s.onCalendar),
		"RandomizedDelaySec=300",
		"Persistent=true",
		"",
		"[Install]",
		"WantedBy=timers.target",
		"",
	}, "\n")
}

// Setup implements Backend: write both units, reload, enable the timer.
func (s *SystemdBackend) Setup(ctx context.Context) error {
	if err := os.WriteFile(s.servicePath(), []byte(s.serviceUnit()), 0o644); err != nil {
		return errors.WrapError(err, errors.CategorySystemd, "write renewal service unit")
	}
	if err := os.WriteFile(s.timerPath(), []byte(s.timerUnit()), 0o644); err != nil {
		return errors.WrapError(err, errors.CategorySystemd, "write renewal timer unit")
	}

	if _, err := s.runner.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		return errors.WrapError(err, errors.CategorySystemd, "systemctl daemon-reload")
	}
	if _, err := s.runner.Run(ctx, "systemctl", "enable", "--now", renewTimerUnit); err != nil {
		return errors.WrapError(err, errors.CategorySystemd, "enable renewal timer")
	}
	slog.Info("Installed systemd schedule", "timer", renewTimerUnit, "on_calendar", s.onCalendar)
	return nil
}

// Remove implements Backend: disable the timer and delete both units.
func (s *SystemdBackend) Remove(ctx context.Context) error {
	// Disable failures are tolerated; the unit may already be gone.
	if _, err := s.runner.Run(ctx, "systemctl", "disable", "--now", renewTimerUnit); err != nil {
		slog.Warn("Failed to disable renewal timer", "error", err)
	}

	for _, p := range []string{s.timerPath(), s.servicePath()} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.WrapError(err, errors.CategorySystemd, fmt.Sprintf("remove unit %s", p))
		}
	}
	if _, err := s.runner.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		return errors.WrapError(err, errors.CategorySystemd, "systemctl daemon-reload")
	}
	slog.Info("Removed systemd schedule", "timer", renewTimerUnit)
	return nil
}

// Status implements Backend.
func (s *SystemdBackend) Status(ctx context.Context) (*Status, error) {
	st := &Status{Backend: config.BackendSystemd}

	if _, err := os.Stat(s.timerPath()); err == nil {
		st.Installed = true
	} else if !os.IsNotExist(err) {
		return nil, errors.WrapError(err, errors.CategorySystemd, "stat timer unit")
	}

	res, err := s.runner.Run(ctx, "systemctl", "is-active", "--quiet", renewTimerUnit)
	if err == nil && res.ExitCode == 0 {
		st.SchedulerActive = true
		st.Detail = "renewal timer active"
	} else {
		st.Detail = "renewal timer not active"
	}
	return st, nil
}
