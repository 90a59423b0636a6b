package metrics

import "time"

// Recorder defines observability hooks for renewal runs and failover checks.
// Implementations may forward to Prometheus. All methods must be safe on the
// NoopRecorder so injection stays optional.
type Recorder interface {
	ObserveRenewDuration(d time.Duration, outcome string)
	IncRenewOutcome(outcome string) // outcome: renewed|not_due|skipped_standby|failed
	IncRenewRetry()
	IncRenewRetryExhausted()
	SetBackendScore(backend string, score int)
	IncFailover(from, to string)
	IncHealthCheck(band string)
	SetCertDaysLeft(days int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveRenewDuration(time.Duration, string) {}
func (NoopRecorder) IncRenewOutcome(string)                     {}
func (NoopRecorder) IncRenewRetry()                             {}
func (NoopRecorder) IncRenewRetryExhausted()                    {}
func (NoopRecorder) SetBackendScore(string, int)                {}
func (NoopRecorder) IncFailover(string, string)                 {}
func (NoopRecorder) IncHealthCheck(string)                      {}
func (NoopRecorder) SetCertDaysLeft(int)                        {}
