package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	renewDuration    *prom.HistogramVec
	renewOutcomes    *prom.CounterVec
	renewRetries     prom.Counter
	retriesExhausted prom.Counter
	backendScore     *prom.GaugeVec
	failovers        *prom.CounterVec
	healthChecks     *prom.CounterVec
	certDaysLeft     prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.renewDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "takops",
			Name:      "renew_duration_seconds",
			Help:      "Duration of certificate renewal runs",
			Buckets:   prom.DefBuckets,
		}, []string{"outcome"})
		pr.renewOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "takops",
			Name:      "renew_outcomes_total",
			Help:      "Renewal run outcomes",
		}, []string{"outcome"})
		pr.renewRetries = prom.NewCounter(prom.CounterOpts{
			Namespace: "takops",
			Name:      "renew_retries_total",
			Help:      "Certbot retries on transient failures",
		})
		pr.retriesExhausted = prom.NewCounter(prom.CounterOpts{
			Namespace: "takops",
			Name:      "renew_retry_exhausted_total",
			Help:      "Renewal runs that exhausted their retry budget",
		})
		pr.backendScore = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "takops",
			Name:      "backend_health_score",
			Help:      "Scheduler backend health score (0-100)",
		}, []string{"backend"})
		pr.failovers = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "takops",
			Name:      "failovers_total",
			Help:      "Scheduler role swaps",
		}, []string{"from", "to"})
		pr.healthChecks = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "takops",
			Name:      "health_checks_total",
			Help:      "Health check results by band",
		}, []string{"band"})
		pr.certDaysLeft = prom.NewGauge(prom.GaugeOpts{
			Namespace: "takops",
			Name:      "certificate_days_left",
			Help:      "Days until the deployed certificate expires",
		})
		reg.MustRegister(pr.renewDuration, pr.renewOutcomes, pr.renewRetries,
			pr.retriesExhausted, pr.backendScore, pr.failovers, pr.healthChecks, pr.certDaysLeft)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveRenewDuration(d time.Duration, outcome string) {
	if p == nil || p.renewDuration == nil {
		return
	}
	p.renewDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRenewOutcome(outcome string) {
	if p == nil || p.renewOutcomes == nil {
		return
	}
	p.renewOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncRenewRetry() {
	if p == nil || p.renewRetries == nil {
		return
	}
	p.renewRetries.Inc()
}

func (p *PrometheusRecorder) IncRenewRetryExhausted() {
	if p == nil || p.retriesExhausted == nil {
		return
	}
	p.retriesExhausted.Inc()
}

func (p *PrometheusRecorder) SetBackendScore(backend string, score int) {
	if p == nil || p.backendScore == nil {
		return
	}
	p.backendScore.WithLabelValues(backend).Set(float64(score))
}

func (p *PrometheusRecorder) IncFailover(from, to string) {
	if p == nil || p.failovers == nil {
		return
	}
	p.failovers.WithLabelValues(from, to).Inc()
}

func (p *PrometheusRecorder) IncHealthCheck(band string) {
	if p == nil || p.healthChecks == nil {
		return
	}
	p.healthChecks.WithLabelValues(band).Inc()
}

func (p *PrometheusRecorder) SetCertDaysLeft(days int) {
	if p == nil || p.certDaysLeft == nil {
		return
	}
	p.certDaysLeft.Set(float64(days))
}
