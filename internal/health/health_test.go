package health

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takops/takops/internal/config"
	"github.com/takops/takops/internal/failover"
	"github.com/takops/takops/internal/sched"
	"github.com/takops/takops/internal/state"
)

func TestBandExitCodes(t *testing.T) {
	cases := []struct {
		band Band
		want int
	}{
		{BandHealthy, 0},
		{BandDegraded, 1},
		{BandFailing, 2},
		{BandUnknown, 3},
		{Band("bogus"), 3},
	}
	for _, c := range cases {
		if got := c.band.ExitCode(); got != c.want {
			t.Fatalf("%s.ExitCode() = %d, want %d", c.band, got, c.want)
		}
	}
}

func TestBandForScore(t *testing.T) {
	cases := []struct {
		score int
		want  Band
	}{
		{100, BandHealthy}, {80, BandHealthy},
		{79, BandDegraded}, {50, BandDegraded},
		{49, BandFailing}, {1, BandFailing},
		{0, BandUnknown},
	}
	for _, c := range cases {
		if got := BandForScore(c.score); got != c.want {
			t.Fatalf("BandForScore(%d) = %s, want %s", c.score, got, c.want)
		}
	}
}

func backendReport(role state.Role, score int) BackendReport {
	return BackendReport{Role: role, Score: score, Band: BandForScore(score)}
}

func TestOverallAggregation(t *testing.T) {
	cases := []struct {
		name     string
		backends []BackendReport
		want     Band
	}{
		{
			"both healthy",
			[]BackendReport{backendReport(state.RolePrimary, 100), backendReport(state.RoleFallback, 100)},
			BandHealthy,
		},
		{
			"sick fallback degrades",
			[]BackendReport{backendReport(state.RolePrimary, 100), backendReport(state.RoleFallback, 40)},
			BandDegraded,
		},
		{
			"primary dominates",
			[]BackendReport{backendReport(state.RolePrimary, 30), backendReport(state.RoleFallback, 100)},
			BandFailing,
		},
		{
			"no backends",
			nil,
			BandUnknown,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := overall(c.backends); got != c.want {
				t.Fatalf("expected %s got %s", c.want, got)
			}
		})
	}
}

func writeSelfSigned(t *testing.T, dir, cn string, notAfter time.Time) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    notAfter.Add(-90 * 24 * time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	path := filepath.Join(dir, "fullchain.pem")
	out, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(out, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, out.Close())
	return path
}

func TestInspectCertificate(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	notAfter := now.Add(30 * 24 * time.Hour)
	path := writeSelfSigned(t, t.TempDir(), "tak.example.org", notAfter)

	info, err := InspectCertificate(path, now)
	require.NoError(t, err)
	assert.Equal(t, "tak.example.org", info.Subject)
	assert.Equal(t, 30, info.DaysLeft)
}

func TestInspectCertificateMissing(t *testing.T) {
	_, err := InspectCertificate(filepath.Join(t.TempDir(), "nope.pem"), time.Now())
	require.Error(t, err)
}

func TestInspectCertificateGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fullchain.pem")
	require.NoError(t, os.WriteFile(path, []byte("not pem"), 0o644))
	_, err := InspectCertificate(path, time.Now())
	require.Error(t, err)
}

type fixedBackend struct {
	name   config.BackendName
	status sched.Status
}

func (f *fixedBackend) Name() config.BackendName    { return f.name }
func (f *fixedBackend) Setup(context.Context) error { return nil }
func (f *fixedBackend) Remove(context.Context) error {
	return nil
}
func (f *fixedBackend) Status(context.Context) (*sched.Status, error) {
	st := f.status
	return &st, nil
}

// TestCheckerEndToEnd exercises the checker against a real store and stub
// backends via the coordinator.
func TestCheckerEndToEnd(t *testing.T) {
	store, err := state.NewStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.ACME.Enabled = false

	now := time.Now()
	for _, b := range []config.BackendName{config.BackendCron, config.BackendSystemd} {
		require.NoError(t, store.WriteHeartbeat(&state.Heartbeat{
			RunID: "seed", Backend: b,
			StartedAt: now.Add(-time.Hour), FinishedAt: now.Add(-time.Hour),
			Outcome: state.OutcomeNotDue,
		}))
	}

	backends := []sched.Backend{
		&fixedBackend{name: config.BackendCron, status: sched.Status{Backend: config.BackendCron, Installed: true, SchedulerActive: true}},
		&fixedBackend{name: config.BackendSystemd, status: sched.Status{Backend: config.BackendSystemd, Installed: true, SchedulerActive: true}},
	}
	coord := failover.NewCoordinator(store, cfg, backends, nil)
	checker := NewChecker(coord, store, cfg)

	report, err := checker.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BandHealthy, report.Overall)
	assert.Equal(t, 0, report.ExitCode())
	assert.Equal(t, config.BackendSystemd, report.Primary)
	require.Len(t, report.Backends, 2)
	assert.Equal(t, state.RolePrimary, report.Backends[0].Role)
	assert.Equal(t, 100, report.Backends[0].Score)
	assert.False(t, report.FailedOver)
}
