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

// cronDaemonUnits are tried in order; distros disagree on the unit name.
var cronDaemonUnits = []string{"cron", "crond", "cronie"}

// CronBackend manages a drop-in file under /etc/cron.d that invokes
// `takops renew --backend cron` on the configured schedule.
type CronBackend struct {
	runner   execx.Runner
	cronExpr string
	// dropInDir is /etc/cron.d in production, overridable for tests.
	dropInDir string
	// binPath is the takops executable written into the cron line.
	binPath    string
	configPath string
}

// NewCronBackend constructs a cron backend from configuration.
func NewCronBackend(runner execx.Runner, cfg *config.Config, configPath string) *CronBackend {
	return &CronBackend{
		runner:     runner,
		cronExpr:   cfg.Schedule.CronExpr,
		dropInDir:  "/etc/cron.d",
		binPath:    executablePath(),
		configPath: configPath,
	}
}

// Name implements Backend.
func (c *CronBackend) Name() config.BackendName { return config.BackendCron }

func (c *CronBackend) dropInPath() string {
	return filepath.Join(c.dropInDir, "takops")
}

// Setup implements Backend. The drop-in is rewritten unconditionally so a
// changed cron_expr takes effect on the next setup.
func (c *CronBackend) Setup(ctx context.Context) error {
	if _, err := parser.Parse(c.cronExpr); err != nil {
		return errors.WrapError(err, errors.CategoryCron,
			fmt.Sprintf("invalid cron expression %q", c.cronExpr))
	}

	content := strings.Join([]string{
		"SHELL=/bin/sh",
		"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
		fmt.Sprintf("%s root %s -c %s renew --backend cron", c.cronExpr, c.binPath, c.configPath),
		"",
	}, "\n")

	if err := os.WriteFile(c.dropInPath(), []byte(content), 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryCron, "write cron drop-in")
	}
	slog.Info("Installed cron schedule", "path", c.dropInPath(), "expr", c.cronExpr)
	return nil
}

// Remove implements Backend.
func (c *CronBackend) Remove(ctx context.Context) error {
	if err := os.Remove(c.dropInPath()); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WrapError(err, errors.CategoryCron, "remove cron drop-in")
	}
	slog.Info("Removed cron schedule", "path", c.dropInPath())
	return nil
}

// Status implements Backend.
func (c *CronBackend) Status(ctx context.Context) (*Status, error) {
	st := &Status{Backend: config.BackendCron}

	if _, err := os.Stat(c.dropInPath()); err == nil {
		st.Installed = true
	} else if !os.IsNotExist(err) {
		return nil, errors.WrapError(err, errors.CategoryCron, "stat cron drop-in")
	}

	for _, unit := range cronDaemonUnits {
		res, err := c.runner.Run(ctx, "systemctl", "is-active", "--quiet", unit)
		if err == nil && res.ExitCode == 0 {
			st.SchedulerActive = true
			st.Detail = fmt.Sprintf("cron daemon %s active", unit)
			break
		}
	}
	if !st.SchedulerActive {
		st.Detail = "no active cron daemon found"
	}
	return st, nil
}
