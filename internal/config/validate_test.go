package config

import "testing"

func TestValidateDomain(t *testing.T) {
	valid := []string{
		"tak.example.org",
		"gs.unit42.mil.example.com",
		"TAK.Example.ORG",
		"tak.example.org.",
		"myteam.duckdns.org",
	}
	for _, d := range valid {
		if err := ValidateDomain(d); err != nil {
			t.Errorf("ValidateDomain(%q) = %v, want nil", d, err)
		}
	}

	invalid := []string{
		"",
		"com",
		"co.uk",
		"*.example.org",
		"https://tak.example.org",
		"tak.example.org/path",
	}
	for _, d := range invalid {
		if err := ValidateDomain(d); err == nil {
			t.Errorf("ValidateDomain(%q) = nil, want error", d)
		}
	}
}

func TestValidateFailoverBounds(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.Failover.PromoteThreshold = 10 // below threshold
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected promote_threshold validation error")
	}

	cfg = &Config{}
	cfg.ApplyDefaults()
	cfg.Failover.Preferred = BackendDaemon
	if err := cfg.Validate(); err == nil {
		t.Fatalf("daemon must not be a preferred scheduler backend")
	}
}

func TestKnownBackend(t *testing.T) {
	for _, s := range []string{"cron", "systemd", "daemon", "manual", " Cron "} {
		if !KnownBackend(s) {
			t.Errorf("KnownBackend(%q) = false, want true", s)
		}
	}
	if KnownBackend("anacron") {
		t.Errorf("KnownBackend(anacron) = true, want false")
	}
}
