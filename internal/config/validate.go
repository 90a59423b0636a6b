package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"golang.org/x/net/publicsuffix"

	"github.com/takops/takops/internal/errors"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks the configuration for problems that would make every
// subsequent operation fail. It intentionally does not touch the filesystem.
func (c *Config) Validate() error {
	if c.ACME.Enabled {
		if c.Domain == "" {
			return errors.ConfigError("domain is required when acme is enabled (set domain: or TAK_URI)")
		}
		if err := ValidateDomain(c.Domain); err != nil {
			return err
		}
		if c.ACME.Email == "" {
			return errors.ConfigError("acme.email is required when acme is enabled (set acme.email: or LE_EMAIL)")
		}
		if !strings.Contains(c.ACME.Email, "@") {
			return errors.ConfigError(fmt.Sprintf("acme.email %q is not a valid address", c.ACME.Email))
		}
		switch c.ACME.Method {
		case ACMEMethodWebroot, ACMEMethodStandalone:
		default:
			return errors.ConfigError(fmt.Sprintf("acme.method %q is not supported (webroot|standalone)", c.ACME.Method))
		}
	}

	if _, err := cronParser.Parse(c.Schedule.CronExpr); err != nil {
		return errors.WrapError(err, errors.CategoryConfig,
			fmt.Sprintf("schedule.cron_expr %q is not a valid cron expression", c.Schedule.CronExpr))
	}
	if c.Schedule.GraceFactor < 1 {
		return errors.ConfigError("schedule.grace_factor must be >= 1")
	}

	f := c.Failover
	if f.Threshold < 0 || f.Threshold > 100 {
		return errors.ConfigError("failover.threshold must be in 0..100")
	}
	if f.PromoteThreshold < f.Threshold {
		return errors.ConfigError("failover.promote_threshold must be >= failover.threshold")
	}
	if f.Consecutive < 1 {
		return errors.ConfigError("failover.consecutive must be >= 1")
	}
	if f.Preferred != BackendCron && f.Preferred != BackendSystemd {
		return errors.ConfigError(fmt.Sprintf("failover.preferred %q must be cron or systemd", f.Preferred))
	}

	return nil
}

// ValidateDomain rejects hostnames that could never receive a public
// certificate: bare TLDs, names without a registrable suffix, wildcards.
func ValidateDomain(domain string) error {
	d := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if d == "" {
		return errors.ValidationError("domain is empty")
	}
	if strings.Contains(d, "*") {
		return errors.ValidationError(fmt.Sprintf("wildcard domain %q is not supported", domain))
	}
	if strings.Contains(d, "://") || strings.Contains(d, "/") {
		return errors.ValidationError(fmt.Sprintf("domain %q must be a bare hostname, not a URL", domain))
	}

	suffix, icann := publicsuffix.PublicSuffix(d)
	if !icann {
		// Private suffixes (e.g. *.duckdns.org) are fine for ACME; only reject
		// names that are nothing but their suffix.
		if d == suffix {
			return errors.ValidationError(fmt.Sprintf("domain %q has no registrable name", domain))
		}
		return nil
	}
	if d == suffix {
		return errors.ValidationError(fmt.Sprintf("domain %q is a bare public suffix", domain))
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(d); err != nil {
		return errors.ValidationError(fmt.Sprintf("domain %q is not registrable: %v", domain, err))
	}
	return nil
}
