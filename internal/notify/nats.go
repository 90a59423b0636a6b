package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/takops/takops/internal/config"
	"github.com/takops/takops/internal/state"
)

// NATSNotifier publishes events to a NATS subject, fire-and-forget with a
// bounded flush so a dead broker cannot stall a renewal run.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	domain  string
	timeout time.Duration
	host    string
}

// NewNATSNotifier connects to NATS per configuration.
func NewNATSNotifier(cfg *config.Config) (*NATSNotifier, error) {
	if !cfg.Notify.Enabled() {
		return nil, fmt.Errorf("notifications are not configured")
	}

	conn, err := nats.Connect(cfg.Notify.NATSURL,
		nats.Name("takops"),
		nats.Timeout(cfg.Notify.Timeout),
		nats.MaxReconnects(2),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	host, _ := os.Hostname()
	slog.Info("NATS notifier initialized",
		"url", cfg.Notify.NATSURL,
		"subject", cfg.Notify.Subject)

	return &NATSNotifier{
		conn:    conn,
		subject: cfg.Notify.Subject,
		domain:  cfg.Domain,
		timeout: cfg.Notify.Timeout,
		host:    host,
	}, nil
}

// PublishRenewal implements Notifier.
func (n *NATSNotifier) PublishRenewal(ctx context.Context, hb state.Heartbeat) error {
	return n.publish(ctx, Event{
		Kind:    "renewal",
		Host:    n.host,
		Domain:  n.domain,
		At:      hb.FinishedAt,
		Backend: hb.Backend,
		Outcome: hb.Outcome,
		Detail:  hb.Detail,
	})
}

// PublishTransition implements Notifier.
func (n *NATSNotifier) PublishTransition(ctx context.Context, t state.Transition) error {
	return n.publish(ctx, Event{
		Kind:   "failover",
		Host:   n.host,
		Domain: n.domain,
		At:     t.At,
		From:   t.From,
		To:     t.To,
		Reason: t.Reason,
	})
}

func (n *NATSNotifier) publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	timeout := n.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}
	if err := n.conn.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("flush event: %w", err)
	}
	return nil
}

// Close drains the connection.
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}
