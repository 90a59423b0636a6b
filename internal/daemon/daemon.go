// Package daemon runs renewals and health checks on an in-process scheduler
// for hosts without managed cron or systemd, typically containers. It serves
// health, metrics, and a status page over HTTP.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/takops/takops/internal/config"
	"github.com/takops/takops/internal/health"
	"github.com/takops/takops/internal/renew"
	"github.com/takops/takops/internal/report"
)

// Pipeline bundles the operations the daemon schedules. Renew runs identify
// themselves as backend "daemon" and bypass the standby gate.
type Pipeline struct {
	Check func(ctx context.Context) (*health.Report, error)
	Renew func(ctx context.Context) *renew.Result
}

// Builder constructs a pipeline for a configuration. Called at startup and
// again after every config reload.
type Builder func(cfg *config.Config) (*Pipeline, error)

// Daemon schedules periodic renew/health runs and serves the HTTP surface.
type Daemon struct {
	mu       sync.RWMutex
	cfg      *config.Config
	pipeline *Pipeline

	cfgPath string
	build   Builder

	scheduler gocron.Scheduler
	jobs      []gocron.Job
	listener  net.Listener
	server    *http.Server
	watcher   *configWatcher
}

// New builds a daemon. cfgPath may be empty, which disables config watching.
func New(cfg *config.Config, cfgPath string, build Builder) (*Daemon, error) {
	pipeline, err := build(cfg)
	if err != nil {
		return nil, fmt.Errorf("build daemon pipeline: %w", err)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Daemon{
		cfg:       cfg,
		pipeline:  pipeline,
		cfgPath:   cfgPath,
		build:     build,
		scheduler: scheduler,
	}, nil
}

// Addr returns the bound listen address, valid after Start.
func (d *Daemon) Addr() string {
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// Start schedules the jobs, begins watching the config file, and serves HTTP
// until ctx is canceled.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.scheduleJobs(); err != nil {
		return err
	}
	d.scheduler.Start()

	if d.cfgPath != "" {
		watcher, err := watchConfig(d.cfgPath, func() { d.reload() })
		if err != nil {
			slog.Warn("Config watching disabled", "error", err)
		} else {
			d.watcher = watcher
		}
	}

	listener, err := net.Listen("tcp", d.currentConfig().Daemon.Listen)
	if err != nil {
		d.Stop()
		return fmt.Errorf("listen on %s: %w", d.currentConfig().Daemon.Listen, err)
	}
	d.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", d.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", d.handleStatus)
	d.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	slog.Info("Daemon started",
		"addr", listener.Addr().String(),
		"check_interval", d.currentConfig().Daemon.CheckInterval,
		"renew_interval", d.currentConfig().Daemon.RenewInterval)

	errCh := make(chan error, 1)
	go func() {
		if err := d.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return d.Stop()
	case err := <-errCh:
		d.Stop()
		return fmt.Errorf("daemon http server: %w", err)
	}
}

// Stop shuts everything down gracefully.
func (d *Daemon) Stop() error {
	if d.watcher != nil {
		d.watcher.close()
	}
	if err := d.scheduler.Shutdown(); err != nil {
		slog.Warn("Scheduler shutdown failed", "error", err)
	}
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
	}
	slog.Info("Daemon stopped")
	return nil
}

func (d *Daemon) scheduleJobs() error {
	cfg := d.currentConfig()

	checkJob, err := d.scheduler.NewJob(
		gocron.DurationJob(cfg.Daemon.CheckInterval),
		gocron.NewTask(d.runCheck),
		gocron.WithName("health-check"),
	)
	if err != nil {
		return fmt.Errorf("schedule health check: %w", err)
	}

	renewJob, err := d.scheduler.NewJob(
		gocron.DurationJob(cfg.Daemon.RenewInterval),
		gocron.NewTask(d.runRenew),
		gocron.WithName("renew"),
	)
	if err != nil {
		return fmt.Errorf("schedule renewal: %w", err)
	}

	d.jobs = []gocron.Job{checkJob, renewJob}
	return nil
}

func (d *Daemon) runCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := d.currentPipeline().Check(ctx); err != nil {
		slog.Error("Scheduled health check failed", "error", err)
	}
}

func (d *Daemon) runRenew() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	res := d.currentPipeline().Renew(ctx)
	if res.Err != nil {
		slog.Error("Scheduled renewal failed", "run_id", res.RunID, "error", res.Err)
	}
}

// reload re-reads the config file, rebuilds the pipeline, and reschedules
// jobs so new intervals take effect. A broken config keeps the old state.
func (d *Daemon) reload() {
	cfg, err := config.Load(d.cfgPath)
	if err != nil {
		slog.Error("Config reload failed, keeping previous configuration", "error", err)
		return
	}
	pipeline, err := d.build(cfg)
	if err != nil {
		slog.Error("Pipeline rebuild failed, keeping previous configuration", "error", err)
		return
	}

	d.mu.Lock()
	d.cfg = cfg
	d.pipeline = pipeline
	d.mu.Unlock()

	for _, job := range d.jobs {
		if err := d.scheduler.RemoveJob(job.ID()); err != nil {
			slog.Warn("Failed to remove stale job", "job", job.Name(), "error", err)
		}
	}
	if err := d.scheduleJobs(); err != nil {
		slog.Error("Failed to reschedule jobs after reload", "error", err)
		return
	}
	slog.Info("Configuration reloaded", "path", d.cfgPath)
}

func (d *Daemon) currentConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

func (d *Daemon) currentPipeline() *Pipeline {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pipeline
}

func (d *Daemon) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	rep, err := d.currentPipeline().Check(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch rep.Overall {
	case health.BandHealthy, health.BandDegraded:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		slog.Warn("Failed to encode health report", "error", err)
	}
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	rep, err := d.currentPipeline().Check(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	html, err := report.Render(rep, d.currentConfig().Domain, report.FormatHTML)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}
