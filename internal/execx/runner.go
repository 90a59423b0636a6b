// Package execx wraps external command invocation (certbot, systemctl, docker,
// openssl, keytool) behind a small interface so callers can be tested without
// touching the host.
package execx

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Result captures one command invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes external commands.
type Runner interface {
	// Run executes name with args and returns the captured result. A non-zero
	// exit code is returned as an *ExitError; other failures (binary missing,
	// context canceled) come back as-is.
	Run(ctx context.Context, name string, args ...string) (*Result, error)
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Cmd      string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Cmd, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + firstLine(s)
	}
	return msg
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// SystemRunner runs commands on the host via os/exec.
type SystemRunner struct {
	// Timeout bounds each invocation when the caller's context has no deadline.
	Timeout time.Duration
}

// NewSystemRunner returns a SystemRunner with a 10 minute default timeout,
// generous enough for a slow certbot handshake.
func NewSystemRunner() *SystemRunner {
	return &SystemRunner{Timeout: 10 * time.Minute}
}

// Run implements Runner.
func (r *SystemRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	if _, ok := ctx.Deadline(); !ok && r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			res.ExitCode = ee.ExitCode()
			slog.Debug("Command exited non-zero",
				"cmd", name,
				"exit_code", res.ExitCode,
				"duration", res.Duration)
			return res, &ExitError{Cmd: name, ExitCode: res.ExitCode, Stderr: res.Stderr}
		}
		return res, fmt.Errorf("run %s: %w", name, err)
	}

	slog.Debug("Command completed", "cmd", name, "duration", res.Duration)
	return res, nil
}

// Call records one invocation seen by a FakeRunner.
type Call struct {
	Name string
	Args []string
}

// String renders the call as a shell-like line for assertions.
func (c Call) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// FakeRunner is a scripted Runner for tests. Responses are matched by command
// name; unmatched commands succeed with empty output.
type FakeRunner struct {
	Calls     []Call
	Responses map[string]FakeResponse
}

// FakeResponse scripts the outcome for a command name.
type FakeResponse struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Responses: make(map[string]FakeResponse)}
}

// Run implements Runner.
func (f *FakeRunner) Run(_ context.Context, name string, args ...string) (*Result, error) {
	f.Calls = append(f.Calls, Call{Name: name, Args: args})

	resp, ok := f.Responses[name]
	if !ok {
		return &Result{}, nil
	}
	res := &Result{Stdout: resp.Stdout, Stderr: resp.Stderr, ExitCode: resp.ExitCode}
	if resp.Err != nil {
		return res, resp.Err
	}
	if resp.ExitCode != 0 {
		return res, &ExitError{Cmd: name, ExitCode: resp.ExitCode, Stderr: resp.Stderr}
	}
	return res, nil
}

// CalledWith reports whether any recorded call begins with the given words.
func (f *FakeRunner) CalledWith(words ...string) bool {
	for _, c := range f.Calls {
		line := c.String()
		if strings.HasPrefix(line, strings.Join(words, " ")) {
			return true
		}
	}
	return false
}
