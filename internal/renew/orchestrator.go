package renew

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/takops/takops/internal/config"
	opserrors "github.com/takops/takops/internal/errors"
	"github.com/takops/takops/internal/metrics"
	"github.com/takops/takops/internal/notify"
	"github.com/takops/takops/internal/retry"
	"github.com/takops/takops/internal/sched"
	"github.com/takops/takops/internal/state"
)

// Result summarizes one renewal run.
type Result struct {
	RunID   string
	Backend config.BackendName
	Outcome state.RunOutcome
	Detail  string
	Err     error
}

// Orchestrator runs a full renewal cycle: standby gate, certbot, deployment,
// heartbeat. One instance serves one invocation.
type Orchestrator struct {
	cfg      *config.Config
	store    *state.Store
	certbot  *Certbot
	deployer *Deployer
	policy   retry.Policy
	recorder metrics.Recorder
	notifier notify.Notifier
	now      func() time.Time
}

// NewOrchestrator wires a renewal run. recorder and notifier may be nil.
func NewOrchestrator(cfg *config.Config, store *state.Store, certbot *Certbot, deployer *Deployer, recorder metrics.Recorder, notifier notify.Notifier) *Orchestrator {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		certbot:  certbot,
		deployer: deployer,
		policy:   retry.FromConfig(cfg.Retry),
		recorder: recorder,
		notifier: notifier,
		now:      time.Now,
	}
}

// Run executes one renewal for the named backend. force bypasses the standby
// gate. The heartbeat is written for every path, including failures, so the
// health scorer always sees the latest run.
func (o *Orchestrator) Run(ctx context.Context, backend config.BackendName, force bool) *Result {
	started := o.now()
	res := &Result{
		RunID:   uuid.NewString(),
		Backend: backend,
	}
	log := slog.With("run_id", res.RunID, "backend", backend)

	if !o.cfg.ACME.Enabled {
		res.Outcome = state.OutcomeNotDue
		res.Detail = "letsencrypt disabled"
		log.Info("Renewal skipped, LetsEncrypt is disabled")
		o.finish(ctx, res, started)
		return res
	}

	if !force {
		if stand, why := o.standDown(backend); stand {
			res.Outcome = state.OutcomeSkippedStandby
			res.Detail = why
			log.Info("Standing down", "reason", why)
			o.finish(ctx, res, started)
			return res
		}
	}

	renewed, detail, err := o.obtain(ctx, log)
	if err != nil {
		res.Outcome = state.OutcomeFailed
		res.Detail = err.Error()
		res.Err = err
		log.Error("Renewal failed", "error", err)
		o.finish(ctx, res, started)
		return res
	}
	res.Detail = detail

	if !renewed {
		res.Outcome = state.OutcomeNotDue
		log.Info("Certificate not yet due for renewal")
		o.finish(ctx, res, started)
		return res
	}

	if err := o.deployer.Deploy(ctx); err != nil {
		res.Outcome = state.OutcomeFailed
		res.Detail = "renewed but deployment failed: " + err.Error()
		res.Err = opserrors.WrapError(err, opserrors.CategoryDeploy, "deploy renewed certificate")
		log.Error("Deployment failed after renewal", "error", err)
		o.finish(ctx, res, started)
		return res
	}

	res.Outcome = state.OutcomeRenewed
	log.Info("Certificate renewed and deployed", "detail", detail)
	o.finish(ctx, res, started)
	return res
}

// standDown implements failover activation: a fallback-role invocation only
// proceeds when the primary's heartbeat is missing or stale.
func (o *Orchestrator) standDown(backend config.BackendName) (bool, string) {
	role, err := o.store.Role(backend)
	if err != nil {
		// A corrupt marker must not block renewal; proceed as if unassigned.
		slog.Warn("Ignoring unreadable role marker", "backend", backend, "error", err)
		return false, ""
	}
	if role != state.RoleFallback {
		return false, ""
	}

	now := o.now()
	primary := o.primaryBackend(backend)
	age, ok, err := o.store.HeartbeatAge(primary, now)
	if err != nil {
		slog.Warn("Ignoring unreadable primary heartbeat", "backend", primary, "error", err)
		return false, ""
	}
	if !ok {
		return false, "primary has no heartbeat"
	}

	staleAfter, err := sched.StaleAfter(o.cfg.Schedule.CronExpr, o.cfg.Schedule.GraceFactor, now)
	if err != nil {
		slog.Warn("Cannot derive staleness window, proceeding with renewal", "error", err)
		return false, ""
	}
	if age > staleAfter {
		return false, "primary heartbeat stale"
	}
	return true, "primary heartbeat is fresh"
}

// primaryBackend returns the peer that should be primary relative to backend.
func (o *Orchestrator) primaryBackend(backend config.BackendName) config.BackendName {
	for _, b := range []config.BackendName{config.BackendCron, config.BackendSystemd} {
		if b == backend {
			continue
		}
		if role, err := o.store.Role(b); err == nil && role == state.RolePrimary {
			return b
		}
	}
	if backend == config.BackendCron {
		return config.BackendSystemd
	}
	return config.BackendCron
}

// obtain runs issuance or renewal, retrying transient certbot failures per the
// configured policy.
func (o *Orchestrator) obtain(ctx context.Context, log *slog.Logger) (renewed bool, detail string, err error) {
	firstIssue := !o.certbot.HasCertificate()

	attempt := 0
	err = o.policy.Do(ctx, func() error {
		if attempt > 0 {
			o.recorder.IncRenewRetry()
			log.Warn("Retrying certbot", "attempt", attempt)
		}
		attempt++

		if firstIssue {
			if issueErr := o.certbot.Issue(ctx); issueErr != nil {
				return issueErr
			}
			renewed, detail = true, "initial certificate issued"
			return nil
		}
		var runErr error
		renewed, detail, runErr = o.certbot.Renew(ctx)
		return runErr
	}, opserrors.IsRetryable)

	if err != nil {
		if opserrors.IsRetryable(err) {
			o.recorder.IncRenewRetryExhausted()
		}
		return false, "", err
	}
	return renewed, detail, nil
}

// finish stamps the result, writes the heartbeat, and emits metrics and the
// optional notification. State-write failures are logged, not fatal: the
// renewal outcome already happened.
func (o *Orchestrator) finish(ctx context.Context, res *Result, started time.Time) {
	finished := o.now()
	hb := &state.Heartbeat{
		RunID:      res.RunID,
		Backend:    res.Backend,
		StartedAt:  started,
		FinishedAt: finished,
		Outcome:    res.Outcome,
		Detail:     res.Detail,
	}
	if err := o.store.WriteHeartbeat(hb); err != nil {
		slog.Error("Failed to write heartbeat", "run_id", res.RunID, "error", err)
	}

	o.recorder.IncRenewOutcome(string(res.Outcome))
	o.recorder.ObserveRenewDuration(finished.Sub(started), string(res.Outcome))

	if err := o.notifier.PublishRenewal(ctx, *hb); err != nil {
		slog.Warn("Failed to publish renewal event", "error", err)
	}
}
