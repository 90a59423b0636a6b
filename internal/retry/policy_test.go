package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/takops/takops/internal/config"
)

// TestDefaultPolicy verifies the baseline default values.
func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Mode != config.RetryBackoffExponential {
		t.Fatalf("expected exponential default mode got %s", p.Mode)
	}
	if p.Initial != 5*time.Second {
		t.Fatalf("expected initial 5s got %v", p.Initial)
	}
	if p.Max != 2*time.Minute {
		t.Fatalf("expected max 2m got %v", p.Max)
	}
	if p.MaxRetries != 2 {
		t.Fatalf("expected max retries 2 got %d", p.MaxRetries)
	}
}

// TestFromConfigOverrides checks override precedence and clamping when initial > max.
func TestFromConfigOverrides(t *testing.T) {
	p := FromConfig(config.RetryConfig{
		Mode:       config.RetryBackoffFixed,
		Initial:    5 * time.Second,
		Max:        2 * time.Second,
		MaxRetries: 5,
	})
	if p.Initial != 2*time.Second {
		t.Fatalf("expected clamped initial 2s got %v", p.Initial)
	}
	if p.Mode != config.RetryBackoffFixed {
		t.Fatalf("expected fixed mode got %s", p.Mode)
	}
	if p.MaxRetries != 5 {
		t.Fatalf("expected maxRetries 5 got %d", p.MaxRetries)
	}
}

// TestDelayModes ensures fixed, linear, exponential behave and respect cap.
func TestDelayModes(t *testing.T) {
	fixed := FromConfig(config.RetryConfig{Mode: config.RetryBackoffFixed, Initial: 100 * time.Millisecond, Max: 500 * time.Millisecond, MaxRetries: 3})
	for i := 1; i <= 3; i++ {
		if d := fixed.Delay(i); d != 100*time.Millisecond {
			t.Fatalf("fixed attempt %d expected 100ms got %v", i, d)
		}
	}

	linear := FromConfig(config.RetryConfig{Mode: config.RetryBackoffLinear, Initial: 100 * time.Millisecond, Max: 250 * time.Millisecond, MaxRetries: 5})
	cases := []struct {
		attempt int
		want    time.Duration
	}{{1, 100 * time.Millisecond}, {2, 200 * time.Millisecond}, {3, 250 * time.Millisecond}, {4, 250 * time.Millisecond}}
	for _, c := range cases {
		if got := linear.Delay(c.attempt); got != c.want {
			t.Fatalf("linear attempt %d expected %v got %v", c.attempt, c.want, got)
		}
	}

	exp := FromConfig(config.RetryConfig{Mode: config.RetryBackoffExponential, Initial: 50 * time.Millisecond, Max: 160 * time.Millisecond, MaxRetries: 5})
	expCases := []struct {
		attempt int
		want    time.Duration
	}{{1, 50 * time.Millisecond}, {2, 100 * time.Millisecond}, {3, 160 * time.Millisecond}, {4, 160 * time.Millisecond}}
	for _, c := range expCases {
		if got := exp.Delay(c.attempt); got != c.want {
			t.Fatalf("exp attempt %d expected %v got %v", c.attempt, c.want, got)
		}
	}
}

// TestDelayEdgeCases ensures non-positive attempts yield zero and negative attempts don't panic.
func TestDelayEdgeCases(t *testing.T) {
	p := FromConfig(config.RetryConfig{Mode: config.RetryBackoffLinear, Initial: 10 * time.Millisecond, Max: 20 * time.Millisecond, MaxRetries: 1})
	if d := p.Delay(0); d != 0 {
		t.Fatalf("attempt 0 expected 0 got %v", d)
	}
	if d := p.Delay(-1); d != 0 {
		t.Fatalf("attempt -1 expected 0 got %v", d)
	}
}

// TestDoRetriesTransient verifies Do retries transient failures and stops on permanent ones.
func TestDoRetriesTransient(t *testing.T) {
	p := Policy{Mode: config.RetryBackoffFixed, Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: 3}

	transient := errors.New("transient")
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return transient
		}
		return nil
	}, func(error) bool { return true })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls got %d", calls)
	}

	permanent := errors.New("permanent")
	calls = 0
	err = p.Do(context.Background(), func() error {
		calls++
		return permanent
	}, func(error) bool { return false })
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error got %v", err)
	}
	if calls != 1 {
		t.Fatalf("permanent error should not retry, got %d calls", calls)
	}
}

// TestDoRespectsContext verifies cancellation interrupts the backoff wait.
func TestDoRespectsContext(t *testing.T) {
	p := Policy{Mode: config.RetryBackoffFixed, Initial: time.Hour, Max: time.Hour, MaxRetries: 1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Do(ctx, func() error { return errors.New("fail") }, func(error) bool { return true })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled got %v", err)
	}
}

// TestValidate covers validation error paths.
func TestValidate(t *testing.T) {
	badInitial := Policy{Mode: config.RetryBackoffLinear, Initial: 0, Max: time.Second, MaxRetries: 1}
	if err := badInitial.Validate(); err == nil {
		t.Fatalf("expected error for zero initial")
	}
	good := Policy{Mode: config.RetryBackoffLinear, Initial: time.Second, Max: 2 * time.Second, MaxRetries: 0}
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
