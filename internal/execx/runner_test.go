package execx

import (
	"context"
	"errors"
	"testing"
)

func TestExitErrorMessage(t *testing.T) {
	e := &ExitError{Cmd: "certbot", ExitCode: 1, Stderr: "Some challenges have failed.\nSee the logfile"}
	want := "certbot exited with status 1: Some challenges have failed."
	if e.Error() != want {
		t.Fatalf("got %q want %q", e.Error(), want)
	}

	bare := &ExitError{Cmd: "systemctl", ExitCode: 3}
	if bare.Error() != "systemctl exited with status 3" {
		t.Fatalf("got %q", bare.Error())
	}
}

func TestFakeRunnerScripting(t *testing.T) {
	f := NewFakeRunner()
	f.Responses["systemctl"] = FakeResponse{Stdout: "active\n"}
	f.Responses["certbot"] = FakeResponse{ExitCode: 1, Stderr: "rate limited"}

	res, err := f.Run(context.Background(), "systemctl", "is-active", "cron")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "active\n" {
		t.Fatalf("unexpected stdout %q", res.Stdout)
	}

	_, err = f.Run(context.Background(), "certbot", "renew")
	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExitError got %v", err)
	}
	if ee.ExitCode != 1 {
		t.Fatalf("expected exit code 1 got %d", ee.ExitCode)
	}

	// Unscripted commands succeed.
	if _, err := f.Run(context.Background(), "docker", "ps"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !f.CalledWith("systemctl", "is-active") {
		t.Fatalf("expected recorded systemctl call")
	}
	if f.CalledWith("crontab") {
		t.Fatalf("crontab was never called")
	}
	if len(f.Calls) != 3 {
		t.Fatalf("expected 3 recorded calls got %d", len(f.Calls))
	}
}

func TestSystemRunnerRuns(t *testing.T) {
	r := NewSystemRunner()
	res, err := r.Run(context.Background(), "sh", "-c", "echo hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "hello\n" {
		t.Fatalf("unexpected stdout %q", res.Stdout)
	}

	_, err = r.Run(context.Background(), "sh", "-c", "echo oops >&2; exit 4")
	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExitError got %v", err)
	}
	if ee.ExitCode != 4 {
		t.Fatalf("expected exit code 4 got %d", ee.ExitCode)
	}
}
