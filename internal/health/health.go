// Package health turns failover decisions into operator-facing reports and
// the 0-3 exit codes consumed by monitoring wrappers.
package health

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/takops/takops/internal/config"
	"github.com/takops/takops/internal/failover"
	"github.com/takops/takops/internal/state"
)

// Band classifies an overall or per-backend health state.
type Band string

const (
	BandHealthy  Band = "healthy"
	BandDegraded Band = "degraded"
	BandFailing  Band = "failing"
	BandUnknown  Band = "unknown"
)

// ExitCode maps a band onto the process exit code contract: 0 healthy,
// 1 degraded, 2 failing, 3 unknown.
func (b Band) ExitCode() int {
	switch b {
	case BandHealthy:
		return 0
	case BandDegraded:
		return 1
	case BandFailing:
		return 2
	default:
		return 3
	}
}

// BandForScore maps a 0-100 score to a band.
func BandForScore(score int) Band {
	switch {
	case score >= 80:
		return BandHealthy
	case score >= 50:
		return BandDegraded
	case score >= 1:
		return BandFailing
	default:
		return BandUnknown
	}
}

// BackendReport is one backend's slice of the health report.
type BackendReport struct {
	Backend   config.BackendName     `json:"backend"`
	Role      state.Role             `json:"role"`
	Score     int                    `json:"score"`
	Band      Band                   `json:"band"`
	Health    failover.BackendHealth `json:"health"`
	Heartbeat *state.Heartbeat       `json:"heartbeat,omitempty"`
}

// CertInfo summarizes the deployed certificate.
type CertInfo struct {
	Subject  string    `json:"subject"`
	NotAfter time.Time `json:"not_after"`
	DaysLeft int       `json:"days_left"`
	Issuer   string    `json:"issuer"`
	Path     string    `json:"path"`
}

// Report is the complete health check output.
type Report struct {
	Overall     Band               `json:"overall"`
	GeneratedAt time.Time          `json:"generated_at"`
	Primary     config.BackendName `json:"primary"`
	Fallback    config.BackendName `json:"fallback"`
	Backends    []BackendReport    `json:"backends"`
	Certificate *CertInfo          `json:"certificate,omitempty"`
	Transitions []state.Transition `json:"recent_transitions,omitempty"`
	FailedOver  bool               `json:"failed_over"`
}

// ExitCode returns the exit code for the report's overall band.
func (r *Report) ExitCode() int { return r.Overall.ExitCode() }

// Checker assembles health reports. Each call runs a full failover
// evaluation, so a health check is also where failover activates.
type Checker struct {
	coordinator *failover.Coordinator
	store       *state.Store
	cfg         *config.Config
}

// NewChecker wires a Checker.
func NewChecker(coordinator *failover.Coordinator, store *state.Store, cfg *config.Config) *Checker {
	return &Checker{coordinator: coordinator, store: store, cfg: cfg}
}

// Check evaluates failover and builds the report.
func (c *Checker) Check(ctx context.Context) (*Report, error) {
	d, err := c.coordinator.Check(ctx)
	if err != nil {
		return nil, err
	}
	return c.buildReport(ctx, d)
}

func (c *Checker) buildReport(ctx context.Context, d *failover.Decision) (*Report, error) {
	snap, err := c.coordinator.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	r := &Report{
		GeneratedAt: snap.Now,
		Primary:     d.Primary(),
		Fallback:    d.Fallback(),
		Transitions: d.Next.Transitions,
		FailedOver:  d.Next.FailedOverAt != nil,
	}

	for _, b := range []config.BackendName{d.Primary(), d.Fallback()} {
		h := snap.Health[b]
		score := failover.Score(h)
		hb, err := c.store.Heartbeat(b)
		if err != nil {
			return nil, err
		}
		r.Backends = append(r.Backends, BackendReport{
			Backend:   b,
			Role:      d.RolesAfter[b],
			Score:     score,
			Band:      BandForScore(score),
			Health:    h,
			Heartbeat: hb,
		})
	}

	r.Overall = overall(r.Backends)

	if c.cfg.ACME.Enabled && c.cfg.Domain != "" {
		if info, err := InspectCertificate(filepath.Join(c.cfg.ACME.LiveDir, c.cfg.Domain, "fullchain.pem"), snap.Now); err == nil {
			r.Certificate = info
			// A certificate inside its renewal window with a failing primary
			// is worse than the backend scores alone suggest.
			if info.DaysLeft <= 7 && r.Overall == BandDegraded {
				r.Overall = BandFailing
			}
		}
	}

	return r, nil
}

// overall derives the aggregate band: the primary dominates, a sick fallback
// degrades an otherwise healthy deployment.
func overall(backends []BackendReport) Band {
	if len(backends) == 0 {
		return BandUnknown
	}

	var primary, fallback *BackendReport
	for i := range backends {
		switch backends[i].Role {
		case state.RolePrimary:
			primary = &backends[i]
		case state.RoleFallback:
			fallback = &backends[i]
		}
	}
	if primary == nil {
		return BandUnknown
	}

	band := primary.Band
	if band == BandHealthy && fallback != nil && fallback.Band != BandHealthy {
		band = BandDegraded
	}
	return band
}

// InspectCertificate parses the first certificate in a PEM bundle.
func InspectCertificate(path string, now time.Time) (*CertInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate %s: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no certificate PEM block in %s", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate %s: %w", path, err)
	}

	return &CertInfo{
		Subject:  cert.Subject.CommonName,
		Issuer:   cert.Issuer.CommonName,
		NotAfter: cert.NotAfter,
		DaysLeft: int(cert.NotAfter.Sub(now).Hours() / 24),
		Path:     path,
	}, nil
}
