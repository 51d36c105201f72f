package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsNotifier publishes billing changes to a NATS subject.
type NatsNotifier struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNatsNotifier connects to the broker and returns a notifier publishing on
// the given subject.
func NewNatsNotifier(url, subject string, logger *slog.Logger) (*NatsNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.Name("hearthside-billing"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}

	return &NatsNotifier{
		conn:    conn,
		subject: subject,
		logger:  logger.With("component", "nats_notifier"),
	}, nil
}

func (n *NatsNotifier) BillingChanged(ctx context.Context, change BillingChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal billing change: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish billing change: %w", err)
	}
	return nil
}

// Close drains the connection, flushing pending publishes.
func (n *NatsNotifier) Close() {
	if err := n.conn.Drain(); err != nil {
		n.logger.Warn("nats drain failed", "error", err)
	}
}

var _ Notifier = (*NatsNotifier)(nil)
