// Package notify publishes renewal and failover events for fleet monitoring.
// It is optional: without a configured NATS URL everything is a no-op.
package notify

import (
	"context"
	"time"

	"github.com/takops/takops/internal/config"
	"github.com/takops/takops/internal/state"
)

// Event is the wire format published on the configured subject.
type Event struct {
	Kind    string             `json:"kind"` // renewal | failover
	Host    string             `json:"host"`
	Domain  string             `json:"domain,omitempty"`
	At      time.Time          `json:"at"`
	Backend config.BackendName `json:"backend,omitempty"`
	Outcome state.RunOutcome   `json:"outcome,omitempty"`
	Detail  string             `json:"detail,omitempty"`
	From    config.BackendName `json:"from,omitempty"`
	To      config.BackendName `json:"to,omitempty"`
	Reason  string             `json:"reason,omitempty"`
}

// Notifier publishes events.
type Notifier interface {
	PublishRenewal(ctx context.Context, hb state.Heartbeat) error
	PublishTransition(ctx context.Context, t state.Transition) error
	Close()
}

// Noop discards all events.
type Noop struct{}

func (Noop) PublishRenewal(context.Context, state.Heartbeat) error     { return nil }
func (Noop) PublishTransition(context.Context, state.Transition) error { return nil }
func (Noop) Close()                                                    {}
