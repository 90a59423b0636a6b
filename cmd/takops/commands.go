package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/takops/takops/internal/config"
	"github.com/takops/takops/internal/daemon"
	opserrors "github.com/takops/takops/internal/errors"
	"github.com/takops/takops/internal/execx"
	"github.com/takops/takops/internal/failover"
	"github.com/takops/takops/internal/gitsync"
	"github.com/takops/takops/internal/health"
	"github.com/takops/takops/internal/metrics"
	"github.com/takops/takops/internal/notify"
	"github.com/takops/takops/internal/provision"
	"github.com/takops/takops/internal/renew"
	"github.com/takops/takops/internal/report"
	"github.com/takops/takops/internal/sched"
	"github.com/takops/takops/internal/state"
)

// stack bundles the wired components most commands need.
type stack struct {
	cfg         *config.Config
	store       *state.Store
	runner      execx.Runner
	backends    []sched.Backend
	notifier    notify.Notifier
	coordinator *failover.Coordinator
	checker     *health.Checker
}

func buildStack(cfg *config.Config) (*stack, error) {
	store, err := state.NewStore(cfg.StateDir)
	if err != nil {
		return nil, opserrors.WrapError(err, opserrors.CategoryFileSystem, "open state directory")
	}

	runner := execx.NewSystemRunner()
	backends := []sched.Backend{
		sched.NewCronBackend(runner, cfg, CLI.Config),
		sched.NewSystemdBackend(runner, cfg, CLI.Config),
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.Enabled() {
		n, err := notify.NewNATSNotifier(cfg)
		if err != nil {
			slog.Warn("Notifications disabled", "error", err)
		} else {
			notifier = n
		}
	}

	coordinator := failover.NewCoordinator(store, cfg, backends, notifier)
	return &stack{
		cfg:         cfg,
		store:       store,
		runner:      runner,
		backends:    backends,
		notifier:    notifier,
		coordinator: coordinator,
		checker:     health.NewChecker(coordinator, store, cfg),
	}, nil
}

func loadStack() (*stack, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, err
	}
	return buildStack(cfg)
}

// loadStackLenient falls back to a defaulted config when the file does not
// exist, so status and health work on half-provisioned hosts.
func loadStackLenient() (*stack, error) {
	cfg, err := config.LoadOrDefault(CLI.Config)
	if err != nil {
		return nil, err
	}
	return buildStack(cfg)
}

func (s *stack) close() {
	s.notifier.Close()
}

// selectBackends filters the stack's backends by the --backend flag value.
func (s *stack) selectBackends(sel string) []sched.Backend {
	if sel == "both" || sel == "" {
		return s.backends
	}
	for _, b := range s.backends {
		if string(b.Name()) == sel {
			return []sched.Backend{b}
		}
	}
	return nil
}

func runScheduleSetup(ctx context.Context, sel string) error {
	s, err := loadStack()
	if err != nil {
		return err
	}
	defer s.close()

	for _, b := range s.selectBackends(sel) {
		if err := b.Setup(ctx); err != nil {
			return err
		}
		fmt.Printf("%s: schedule installed\n", b.Name())
	}

	// Assign roles now so the very first scheduled runs already know who
	// stands primary.
	d, err := s.coordinator.Check(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("roles: primary=%s fallback=%s\n", d.Primary(), d.Fallback())
	return nil
}

func runScheduleRemove(ctx context.Context, sel string) error {
	s, err := loadStack()
	if err != nil {
		return err
	}
	defer s.close()

	for _, b := range s.selectBackends(sel) {
		if err := b.Remove(ctx); err != nil {
			return err
		}
		fmt.Printf("%s: schedule removed\n", b.Name())
	}

	if sel == "both" || sel == "" {
		if err := s.store.ClearRoles(); err != nil {
			return err
		}
		fmt.Println("roles: cleared")
	}
	return nil
}

func runScheduleStatus(ctx context.Context, sel string) error {
	s, err := loadStack()
	if err != nil {
		return err
	}
	defer s.close()

	for _, b := range s.selectBackends(sel) {
		st, err := b.Status(ctx)
		if err != nil {
			return err
		}
		role, err := s.store.Role(b.Name())
		if err != nil {
			role = state.RoleNone
		}
		roleStr := string(role)
		if roleStr == "" {
			roleStr = "unassigned"
		}
		fmt.Printf("%s: installed=%v scheduler_active=%v role=%s", b.Name(), st.Installed, st.SchedulerActive, roleStr)
		if st.Detail != "" {
			fmt.Printf(" (%s)", st.Detail)
		}
		fmt.Println()
	}
	return nil
}

func runRenew(ctx context.Context, adapter *opserrors.CLIErrorAdapter) int {
	s, err := loadStack()
	if err != nil {
		adapter.HandleError(err)
		return adapter.ExitCodeFor(err)
	}
	defer s.close()

	backend := config.BackendName(CLI.Renew.Backend)
	if backend != config.BackendManual {
		if f := openRunLog(s.cfg); f != nil {
			defer f.Close()
			setupLogging(CLI.Verbose, f)
		}
	}

	certbot := renew.NewCertbot(s.runner, s.cfg)
	deployer := renew.NewDeployer(s.runner, s.cfg, certbot.LivePath)
	orch := renew.NewOrchestrator(s.cfg, s.store, certbot, deployer, metrics.NoopRecorder{}, s.notifier)

	res := orch.Run(ctx, backend, CLI.Renew.Force)
	if res.Err != nil {
		fmt.Fprintln(os.Stderr, adapter.FormatError(res.Err))
		return adapter.ExitCodeFor(res.Err)
	}
	fmt.Printf("%s: %s\n", res.Outcome, res.Detail)
	return 0
}

func runHealth(ctx context.Context, adapter *opserrors.CLIErrorAdapter) int {
	s, err := loadStackLenient()
	if err != nil {
		adapter.HandleError(err)
		return adapter.ExitCodeFor(err)
	}
	defer s.close()

	rep, err := s.checker.Check(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, adapter.FormatError(err))
		return 3
	}
	if !CLI.Health.Quiet {
		fmt.Print(report.Markdown(rep, s.cfg.Domain))
	}
	return rep.ExitCode()
}

func runFailoverStatus(ctx context.Context) error {
	s, err := loadStack()
	if err != nil {
		return err
	}
	defer s.close()

	snap, err := s.coordinator.Snapshot(ctx)
	if err != nil {
		return err
	}

	for b, role := range snap.Roles {
		roleStr := string(role)
		if roleStr == "" {
			roleStr = "unassigned"
		}
		fmt.Printf("%s: role=%s score=%d\n", b, roleStr, failover.Score(snap.Health[b]))
	}
	fmt.Printf("failed_over=%v breach_count=%d\n", snap.Prior.FailedOverAt != nil, snap.Prior.BreachCount)
	for _, t := range snap.Prior.Transitions {
		fmt.Printf("  %s  %s -> %s  %s\n", t.At.Format(time.RFC3339), t.From, t.To, t.Reason)
	}
	return nil
}

func runFailoverTrigger(ctx context.Context) error {
	s, err := loadStack()
	if err != nil {
		return err
	}
	defer s.close()

	d, err := s.coordinator.Trigger(ctx, CLI.Failover.Trigger.Reason)
	if err != nil {
		return err
	}
	fmt.Printf("failover: %s -> %s\n", d.Transition.From, d.Transition.To)
	fmt.Printf("roles: primary=%s fallback=%s\n", d.Primary(), d.Fallback())
	return nil
}

func runProvision(ctx context.Context) error {
	if !provision.KnownTarget(CLI.Provision.Target) {
		return opserrors.ValidationError(fmt.Sprintf("unknown provision target %q", CLI.Provision.Target))
	}
	s, err := loadStack()
	if err != nil {
		return err
	}
	defer s.close()

	templatesDir := ""
	if dir := gitsync.TemplatesDir(s.cfg); dirExists(dir) {
		templatesDir = dir
		slog.Debug("Using synced templates", "dir", dir)
	}

	p := provision.New(s.runner, s.cfg, templatesDir)
	return p.Apply(ctx, CLI.Provision.Target, CLI.Provision.Force)
}

func runSyncTemplates(ctx context.Context) error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}
	if CLI.SyncTemplates.URL != "" {
		cfg.Templates.RepoURL = CLI.SyncTemplates.URL
	}
	if CLI.SyncTemplates.Ref != "" {
		cfg.Templates.Ref = CLI.SyncTemplates.Ref
	}

	dir, err := gitsync.NewClient(cfg).Sync(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("templates synced to %s\n", dir)
	return nil
}

func runReport(ctx context.Context) error {
	s, err := loadStack()
	if err != nil {
		return err
	}
	defer s.close()

	rep, err := s.checker.Check(ctx)
	if err != nil {
		return err
	}
	out, err := report.Render(rep, s.cfg.Domain, report.Format(CLI.Report.Format))
	if err != nil {
		return err
	}

	if CLI.Report.Output != "" {
		if err := os.WriteFile(CLI.Report.Output, []byte(out), 0o644); err != nil {
			return opserrors.WrapError(err, opserrors.CategoryFileSystem, "write report")
		}
		fmt.Printf("report written to %s\n", CLI.Report.Output)
		return nil
	}
	fmt.Print(out)
	return nil
}

func runStatus(ctx context.Context, adapter *opserrors.CLIErrorAdapter) int {
	s, err := loadStackLenient()
	if err != nil {
		adapter.HandleError(err)
		return adapter.ExitCodeFor(err)
	}
	defer s.close()

	rep, err := s.checker.Check(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, adapter.FormatError(err))
		return 3
	}

	fmt.Printf("domain     %s\n", s.cfg.Domain)
	fmt.Printf("overall    %s\n", rep.Overall)
	for _, br := range rep.Backends {
		role := string(br.Role)
		if role == "" {
			role = "unassigned"
		}
		fmt.Printf("%-10s %s score=%d role=%s\n", br.Backend, br.Band, br.Score, role)
	}
	if rep.Certificate != nil {
		fmt.Printf("cert       expires %s (%d days)\n",
			rep.Certificate.NotAfter.Format("2006-01-02"), rep.Certificate.DaysLeft)
	} else {
		fmt.Printf("cert       not issued\n")
	}
	if s.cfg.Notify.Enabled() {
		fmt.Printf("notify     nats %s\n", s.cfg.Notify.NATSURL)
	}
	return rep.ExitCode()
}

func runDaemon(ctx context.Context) error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}
	if CLI.Daemon.Listen != "" {
		cfg.Daemon.Listen = CLI.Daemon.Listen
	}

	// The daemon serves /metrics from the default registry; register the
	// recorder there once so reloads keep the same series.
	reg, _ := prom.DefaultRegisterer.(*prom.Registry)
	recorder := metrics.NewPrometheusRecorder(reg)

	builder := func(cfg *config.Config) (*daemon.Pipeline, error) {
		s, err := buildStack(cfg)
		if err != nil {
			return nil, err
		}
		certbot := renew.NewCertbot(s.runner, cfg)
		deployer := renew.NewDeployer(s.runner, cfg, certbot.LivePath)
		orch := renew.NewOrchestrator(cfg, s.store, certbot, deployer, recorder, s.notifier)

		// Baseline below zero so the first check only establishes the
		// transition history without counting old swaps.
		seenTransitions := -1

		return &daemon.Pipeline{
			Check: func(ctx context.Context) (*health.Report, error) {
				rep, err := s.checker.Check(ctx)
				if err != nil {
					return nil, err
				}
				recorder.IncHealthCheck(string(rep.Overall))
				if seenTransitions >= 0 && len(rep.Transitions) > seenTransitions {
					for _, t := range rep.Transitions[seenTransitions:] {
						recorder.IncFailover(string(t.From), string(t.To))
					}
				}
				seenTransitions = len(rep.Transitions)
				for _, br := range rep.Backends {
					recorder.SetBackendScore(string(br.Backend), br.Score)
				}
				if rep.Certificate != nil {
					recorder.SetCertDaysLeft(rep.Certificate.DaysLeft)
				}
				return rep, nil
			},
			Renew: func(ctx context.Context) *renew.Result {
				return orch.Run(ctx, config.BackendDaemon, true)
			},
		}, nil
	}

	d, err := daemon.New(cfg, CLI.Config, builder)
	if err != nil {
		return err
	}
	return d.Start(ctx)
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
