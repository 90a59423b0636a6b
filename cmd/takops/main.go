package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/takops/takops/internal/config"
	opserrors "github.com/takops/takops/internal/errors"
	"github.com/takops/takops/internal/version"
)

var CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"/etc/takops/takops.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `help:"Print version and exit"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Write a default configuration file"`

	Schedule struct {
		Setup struct {
			Backend string `help:"Backend to install" enum:"cron,systemd,both" default:"both"`
		} `cmd:"" help:"Install renewal schedules and assign roles"`
		Remove struct {
			Backend string `help:"Backend to remove" enum:"cron,systemd,both" default:"both"`
		} `cmd:"" help:"Uninstall renewal schedules"`
		Status struct {
			Backend string `help:"Backend to inspect" enum:"cron,systemd,both" default:"both"`
		} `cmd:"" help:"Show schedule installation status"`
	} `cmd:"" help:"Manage the cron and systemd renewal schedules"`

	Renew struct {
		Backend string `help:"Invoking backend" enum:"cron,systemd,manual" default:"manual"`
		Force   bool   `help:"Run even when this backend holds the fallback role"`
	} `cmd:"" help:"Run one certificate renewal"`

	Health struct {
		Quiet bool `help:"Suppress the report, exit code only"`
	} `cmd:"" help:"Evaluate deployment health (exit code 0-3)"`

	Failover struct {
		Status  struct{} `cmd:"" help:"Show roles, scores, and transition history"`
		Trigger struct {
			Reason string `help:"Reason recorded with the swap" default:"manual trigger"`
		} `cmd:"" help:"Force a role swap"`
	} `cmd:"" help:"Inspect or force scheduler failover"`

	Provision struct {
		Target string `arg:"" help:"Service to provision (tak|node-red|mumble|mediamtx|all)"`
		Force  bool   `help:"Regenerate credentials"`
	} `cmd:"" help:"Provision TAK companion services"`

	SyncTemplates struct {
		URL string `help:"Template repository URL (overrides config)"`
		Ref string `help:"Branch to sync (overrides config)"`
	} `cmd:"" name:"sync-templates" help:"Clone or update the deployment template repository"`

	Report struct {
		Format string `help:"Output format" enum:"markdown,html" default:"markdown"`
		Output string `short:"o" help:"Write the report to a file instead of stdout"`
	} `cmd:"" help:"Build the operator status report"`

	Status struct{} `cmd:"" help:"One-line-per-component deployment status"`

	Daemon struct {
		Listen string `help:"HTTP listen address (overrides config)"`
	} `cmd:"" help:"Run the in-process scheduler and HTTP surface"`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("takops"),
		kong.Description("TAK Server deployment and certificate lifecycle tooling"),
		kong.Vars{"version": fmt.Sprintf("takops %s (%s, built %s)", version.Version, version.GitCommit, version.BuildTime)})

	setupLogging(CLI.Verbose, nil)
	adapter := opserrors.NewCLIErrorAdapter(CLI.Verbose, slog.Default())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch kctx.Command() {
	case "init":
		adapter.HandleError(runInit())
	case "schedule setup":
		adapter.HandleError(runScheduleSetup(ctx, CLI.Schedule.Setup.Backend))
	case "schedule remove":
		adapter.HandleError(runScheduleRemove(ctx, CLI.Schedule.Remove.Backend))
	case "schedule status":
		adapter.HandleError(runScheduleStatus(ctx, CLI.Schedule.Status.Backend))
	case "renew":
		os.Exit(runRenew(ctx, adapter))
	case "health":
		os.Exit(runHealth(ctx, adapter))
	case "failover status":
		adapter.HandleError(runFailoverStatus(ctx))
	case "failover trigger":
		adapter.HandleError(runFailoverTrigger(ctx))
	case "provision <target>":
		adapter.HandleError(runProvision(ctx))
	case "sync-templates":
		adapter.HandleError(runSyncTemplates(ctx))
	case "report":
		adapter.HandleError(runReport(ctx))
	case "status":
		os.Exit(runStatus(ctx, adapter))
	case "daemon":
		adapter.HandleError(runDaemon(ctx))
	}
}

// setupLogging configures the default slog handler. Scheduler-invoked runs
// additionally append to a log file so unattended failures stay inspectable.
func setupLogging(verbose bool, logFile io.Writer) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	if logFile != nil {
		w = io.MultiWriter(os.Stderr, logFile)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// openRunLog opens the append-only log file for scheduler-invoked runs.
func openRunLog(cfg *config.Config) io.WriteCloser {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		slog.Warn("Cannot create log directory, logging to stderr only", "dir", cfg.LogDir, "error", err)
		return nil
	}
	path := filepath.Join(cfg.LogDir, "renew.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Warn("Cannot open run log, logging to stderr only", "path", path, "error", err)
		return nil
	}
	return f
}

func runInit() error {
	slog.Info("Initializing configuration", "path", CLI.Config, "force", CLI.Init.Force)
	return config.Init(CLI.Config, CLI.Init.Force)
}
