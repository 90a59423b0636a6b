// Package renew runs one certificate renewal: the certbot invocation, the
// standby gate that implements failover activation, and deployment of fresh
// certificates into the TAK services.
package renew

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/takops/takops/internal/config"
	opserrors "github.com/takops/takops/internal/errors"
	"github.com/takops/takops/internal/execx"
)

// Certbot wraps the certbot CLI for a single domain.
type Certbot struct {
	runner execx.Runner
	acme   config.ACMEConfig
	domain string
}

// NewCertbot builds a certbot wrapper from configuration.
func NewCertbot(runner execx.Runner, cfg *config.Config) *Certbot {
	return &Certbot{runner: runner, acme: cfg.ACME, domain: cfg.Domain}
}

// HasCertificate reports whether a live certificate directory exists for the
// domain, i.e. whether issuance already happened.
func (c *Certbot) HasCertificate() bool {
	_, err := os.Stat(filepath.Join(c.acme.LiveDir, c.domain, "fullchain.pem"))
	return err == nil
}

// LivePath returns the path of a live certificate file (e.g. "fullchain.pem").
func (c *Certbot) LivePath(file string) string {
	return filepath.Join(c.acme.LiveDir, c.domain, file)
}

// Issue performs first-time issuance via `certbot certonly`.
func (c *Certbot) Issue(ctx context.Context) error {
	args := []string{
		"certonly",
		"--non-interactive",
		"--agree-tos",
		"-m", c.acme.Email,
		"-d", c.domain,
	}
	args = append(args, c.authenticatorArgs()...)
	if c.acme.Staging {
		args = append(args, "--staging")
	}

	slog.Info("Requesting initial certificate", "domain", c.domain, "method", c.acme.Method)
	if _, err := c.runner.Run(ctx, c.acme.CertbotPath, args...); err != nil {
		return classify(err, "certbot certonly failed")
	}
	return nil
}

// Renew runs `certbot renew` for the domain. The returned bool reports
// whether a new certificate was actually obtained (as opposed to not yet
// being due).
func (c *Certbot) Renew(ctx context.Context) (bool, string, error) {
	args := []string{
		"renew",
		"--non-interactive",
		"--cert-name", c.domain,
	}
	args = append(args, c.authenticatorArgs()...)

	res, err := c.runner.Run(ctx, c.acme.CertbotPath, args...)
	if err != nil {
		return false, "", classify(err, "certbot renew failed")
	}

	out := res.Stdout + res.Stderr
	if strings.Contains(out, "not yet due for renewal") ||
		strings.Contains(out, "No renewals were attempted") {
		return false, "certificate not yet due", nil
	}
	return true, "certificate renewed", nil
}

func (c *Certbot) authenticatorArgs() []string {
	switch c.acme.Method {
	case config.ACMEMethodStandalone:
		return []string{"--standalone"}
	default:
		return []string{"--webroot", "-w", c.acme.WebrootPath}
	}
}

// transientMarkers are stderr fragments that indicate a failure worth
// retrying: network hiccups and CA-side saturation, not misconfiguration.
var transientMarkers = []string{
	"connection",
	"timeout",
	"timed out",
	"temporarily",
	"rate limit",
	"service busy",
	"502",
	"503",
}

// classify wraps a certbot failure, marking transient-looking ones retryable.
func classify(err error, msg string) error {
	var ee *execx.ExitError
	if errors.As(err, &ee) {
		low := strings.ToLower(ee.Stderr)
		for _, m := range transientMarkers {
			if strings.Contains(low, m) {
				return opserrors.WrapRetryable(err, opserrors.CategoryCertbot, opserrors.SeverityError, msg)
			}
		}
		return opserrors.Wrap(err, opserrors.CategoryCertbot, opserrors.SeverityError, msg)
	}
	return opserrors.Wrap(err, opserrors.CategoryCertbot, opserrors.SeverityError, fmt.Sprintf("%s (certbot did not run)", msg))
}
