// Package notify publishes finished operations as JSON events on NATS so
// other systems can react to updates and reverts.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/store"
)

// Publisher is the part of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Event is the message body published for each operation.
type Event struct {
	Event       string    `json:"event"`
	OperationID string    `json:"operation_id"`
	Kind        string    `json:"kind"`
	InstallRoot string    `json:"install_root"`
	Success     bool      `json:"success"`
	Code        string    `json:"code,omitempty"`
	Message     string    `json:"message,omitempty"`
	FromVersion string    `json:"from_version,omitempty"`
	ToVersion   string    `json:"to_version,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// NewEvent builds the event for an operation. The event name is
// "<kind>.succeeded" or "<kind>.failed".
func NewEvent(op *store.Operation) Event {
	outcome := "succeeded"
	if !op.Success {
		outcome = "failed"
	}
	return Event{
		Event:       op.Kind + "." + outcome,
		OperationID: op.ID,
		Kind:        op.Kind,
		InstallRoot: op.InstallRoot,
		Success:     op.Success,
		Code:        op.Code,
		Message:     op.Message,
		FromVersion: op.FromVersion,
		ToVersion:   op.ToVersion,
		StartedAt:   op.StartedAt,
		FinishedAt:  op.FinishedAt,
	}
}

// Notifier publishes operation events.
type Notifier struct {
	pub     Publisher
	subject string
	conn    *nats.Conn
	logger  *zap.Logger
}

// New creates a Notifier publishing to subject through pub.
func New(pub Publisher, subject string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{pub: pub, subject: subject, logger: logger}
}

// Connect dials the NATS server at url and returns a Notifier that owns the
// connection. The client reconnects indefinitely once connected.
func Connect(url, subject string, logger *zap.Logger) (*Notifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []nats.Option{
		nats.Name("themeupdater"),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}

	n := New(nc, subject, logger)
	n.conn = nc
	return n, nil
}

// Observe publishes the event for a finished operation. Publish failures
// are logged and never affect the operation.
func (n *Notifier) Observe(ctx context.Context, op *store.Operation) {
	if err := n.Publish(NewEvent(op)); err != nil {
		n.logger.Warn("failed to publish operation event",
			zap.String("operation_id", op.ID), zap.Error(err))
	}
}

// Publish sends one event.
func (n *Notifier) Publish(ev Event) error {
	if n.conn != nil && n.conn.IsClosed() {
		return fmt.Errorf("nats connection closed")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return n.pub.Publish(n.subject, data)
}

// Close drains and closes an owned connection.
func (n *Notifier) Close() {
	if n.conn != nil {
		n.conn.Drain()
		n.conn.Close()
	}
}
