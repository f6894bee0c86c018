package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/muurk/aqualogic/internal/logging"
	"github.com/muurk/aqualogic/internal/state"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSPublisher publishes every snapshot as JSON on a subject
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	source  string
}

// Message is the JSON body published on the subject
type Message struct {
	Source string      `json:"source,omitempty"`
	State  state.State `json:"state"`
	SentAt time.Time   `json:"sent_at"`
}

// NewNATSPublisher connects to url. source is copied into every message so
// consumers can tell bridges apart.
func NewNATSPublisher(url, subject, source string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("aqualogic"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logging.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	logging.Info("Connected to NATS", zap.String("url", url), zap.String("subject", subject))
	return &NATSPublisher{conn: conn, subject: subject, source: source}, nil
}

// Name implements Sink
func (p *NATSPublisher) Name() string { return "nats" }

// Publish implements Sink
func (p *NATSPublisher) Publish(ctx context.Context, snap state.State) error {
	data, err := EncodeMessage(p.source, snap, time.Now())
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return p.conn.FlushWithContext(ctx)
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// EncodeMessage builds the JSON body for one snapshot
func EncodeMessage(source string, snap state.State, sentAt time.Time) ([]byte, error) {
	data, err := json.Marshal(Message{Source: source, State: snap, SentAt: sentAt.UTC()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return data, nil
}
