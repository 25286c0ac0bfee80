/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/athleon_scheduler/internal/events"
)

// NATSNotifier publishes committed schedule changes to NATS, one subject
// per competition event.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	nodeID  string
	logger  zerolog.Logger
}

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL     string
	Token   string
	Subject string // pattern with one %s for the event id

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Subject:       "athleon.schedules.%s",
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewNATSNotifier connects to NATS.
func NewNATSNotifier(cfg NATSConfig, nodeID string, logger zerolog.Logger) (*NATSNotifier, error) {
	if !strings.Contains(cfg.Subject, "%s") {
		return nil, fmt.Errorf("nats subject %q must contain %%s for the event id", cfg.Subject)
	}

	opts := []nats.Option{
		nats.Name("athleon-scheduler-" + nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	logger.Info().Str("url", cfg.URL).Str("subject", cfg.Subject).Msg("NATS notifier initialized")

	return &NATSNotifier{
		conn:    conn,
		subject: cfg.Subject,
		nodeID:  nodeID,
		logger:  logger.With().Str("component", "nats_notifier").Logger(),
	}, nil
}

// SubjectFor returns the subject a change of eventID is published on.
func (n *NATSNotifier) SubjectFor(eventID string) string {
	return fmt.Sprintf(n.subject, eventID)
}

// Notify publishes the change and waits for the server to acknowledge the
// flush, bounded by ctx.
func (n *NATSNotifier) Notify(ctx context.Context, change events.ScheduleChange) error {
	data, err := marshalMessage(change, n.nodeID)
	if err != nil {
		return err
	}

	subject := n.SubjectFor(change.EventID)
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}

	n.logger.Debug().
		Str("subject", subject).
		Int("version", change.Version).
		Msg("published schedule change to NATS")
	return nil
}

// Close drains pending messages and closes the connection.
func (n *NATSNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}

// changeMessage is the wire format shared by the NATS and Redis notifiers.
type changeMessage struct {
	Change    events.ScheduleChange `json:"change"`
	NodeID    string                `json:"node_id"`
	MessageID string                `json:"message_id"` // For deduplication
}

func marshalMessage(change events.ScheduleChange, nodeID string) ([]byte, error) {
	msg := changeMessage{
		Change:    change,
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal change message: %w", err)
	}
	return data, nil
}

func unmarshalMessage(data []byte) (*changeMessage, error) {
	var msg changeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal change message: %w", err)
	}
	return &msg, nil
}
