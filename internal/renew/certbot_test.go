package renew

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/takops/takops/internal/config"
	opserrors "github.com/takops/takops/internal/errors"
	"github.com/takops/takops/internal/execx"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{Domain: "tak.example.org"}
	cfg.ACME.Enabled = true
	cfg.ACME.Email = "ops@example.org"
	cfg.ApplyDefaults()
	cfg.ACME.LiveDir = t.TempDir()
	return cfg
}

func writeLiveCert(t *testing.T, cfg *config.Config) {
	t.Helper()
	dir := filepath.Join(cfg.ACME.LiveDir, cfg.Domain)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"fullchain.pem", "privkey.pem"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("dummy pem\n"), 0o640); err != nil {
			t.Fatal(err)
		}
	}
}

func TestHasCertificate(t *testing.T) {
	cfg := testConfig(t)
	cb := NewCertbot(execx.NewFakeRunner(), cfg)

	if cb.HasCertificate() {
		t.Fatalf("expected no certificate in empty live dir")
	}
	writeLiveCert(t, cfg)
	if !cb.HasCertificate() {
		t.Fatalf("expected certificate after writing live files")
	}
}

func TestIssuePassesAuthenticator(t *testing.T) {
	cfg := testConfig(t)
	cfg.ACME.Method = config.ACMEMethodStandalone
	cfg.ACME.Staging = true
	runner := execx.NewFakeRunner()
	cb := NewCertbot(runner, cfg)

	if err := cb.Issue(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.Calls) != 1 {
		t.Fatalf("expected one certbot call, got %d", len(runner.Calls))
	}
	line := runner.Calls[0].String()
	for _, want := range []string{"certonly", "--standalone", "--staging", "-d tak.example.org", "-m ops@example.org"} {
		if !strings.Contains(line, want) {
			t.Errorf("certbot call missing %q: %s", want, line)
		}
	}
}

func TestIssueWebrootArgs(t *testing.T) {
	cfg := testConfig(t)
	runner := execx.NewFakeRunner()
	cb := NewCertbot(runner, cfg)

	if err := cb.Issue(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	line := runner.Calls[0].String()
	if !strings.Contains(line, "--webroot -w "+cfg.ACME.WebrootPath) {
		t.Errorf("expected webroot authenticator, got: %s", line)
	}
	if strings.Contains(line, "--staging") {
		t.Errorf("staging flag set without staging config: %s", line)
	}
}

func TestRenewNotDue(t *testing.T) {
	cfg := testConfig(t)
	runner := execx.NewFakeRunner()
	runner.Responses["certbot"] = execx.FakeResponse{
		Stdout: "Certificate not yet due for renewal\nNo renewals were attempted.\n",
	}
	cb := NewCertbot(runner, cfg)

	renewed, detail, err := cb.Renew(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if renewed {
		t.Fatalf("expected not renewed")
	}
	if detail != "certificate not yet due" {
		t.Fatalf("unexpected detail: %q", detail)
	}
}

func TestRenewSuccess(t *testing.T) {
	cfg := testConfig(t)
	runner := execx.NewFakeRunner()
	runner.Responses["certbot"] = execx.FakeResponse{
		Stdout: "Congratulations, all renewals succeeded\n",
	}
	cb := NewCertbot(runner, cfg)

	renewed, _, err := cb.Renew(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !renewed {
		t.Fatalf("expected renewal")
	}
}

func TestRenewFailureClassification(t *testing.T) {
	tests := []struct {
		name      string
		stderr    string
		retryable bool
	}{
		{"transient network", "Failed to establish connection to ACME server", true},
		{"rate limited", "Error creating new order :: rate limit exceeded", true},
		{"gateway error", "urn:ietf:params:acme:error:serverInternal :: 503", true},
		{"misconfiguration", "No certificate found with name tak.example.org", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			runner := execx.NewFakeRunner()
			runner.Responses["certbot"] = execx.FakeResponse{ExitCode: 1, Stderr: tt.stderr}
			cb := NewCertbot(runner, cfg)

			_, _, err := cb.Renew(context.Background())
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := opserrors.IsRetryable(err); got != tt.retryable {
				t.Errorf("retryable = %v, want %v", got, tt.retryable)
			}
			if !opserrors.IsCategory(err, opserrors.CategoryCertbot) {
				t.Errorf("expected certbot category, got %v", opserrors.GetCategory(err))
			}
		})
	}
}
