// Package publisher fans published snapshots out to NATS subscribers.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/LabartaPablo/BUS-REALTIME/internal/logging"
	"github.com/LabartaPablo/BUS-REALTIME/internal/snapshot"
)

// DefaultPrefix is used when no subject prefix is configured.
const DefaultPrefix = "busrt"

// Conn is the part of *nats.Conn the sink needs.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
	Close()
}

// SnapshotMessage is the payload published on the positions subject.
type SnapshotMessage struct {
	Seq       uint64                     `json:"seq"`
	Timestamp time.Time                  `json:"timestamp"`
	Count     int                        `json:"count"`
	Positions []snapshot.VehiclePosition `json:"positions"`
}

// NATSSink publishes every snapshot as one JSON message on
// <prefix>.positions and, when enabled, each vehicle on
// <prefix>.vehicles.<route>.<vehicle>.
type NATSSink struct {
	conn       Conn
	prefix     string
	perVehicle bool
	logger     *slog.Logger
}

// Option configures a NATSSink.
type Option func(*NATSSink)

// WithVehicleSubjects also publishes one message per vehicle.
func WithVehicleSubjects() Option {
	return func(s *NATSSink) { s.perVehicle = true }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *NATSSink) { s.logger = l }
}

// NewNATSSink wraps an established connection. prefix may contain dots.
func NewNATSSink(conn Conn, prefix string, opts ...Option) *NATSSink {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	s := &NATSSink{conn: conn, prefix: prefix, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "nats_sink"))
	return s
}

// Connect dials the NATS server at url and logs connection state changes.
// The client reconnects indefinitely after the first successful connect.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "nats_sink"))

	nc, err := nats.Connect(url,
		nats.Name("bus-realtime"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logging.LogWarn(logger, "nats disconnected", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.LogOperation(logger, "nats_reconnected", slog.String("url", c.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logging.LogOperation(logger, "nats_closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	logging.LogOperation(logger, "nats_connected", slog.String("url", nc.ConnectedUrl()))
	return nc, nil
}

// Name implements realtime.Sink.
func (s *NATSSink) Name() string {
	return "nats"
}

// PositionsSubject is the subject carrying whole snapshots.
func (s *NATSSink) PositionsSubject() string {
	return s.prefix + ".positions"
}

// VehicleSubject is the subject carrying updates for one vehicle.
func (s *NATSSink) VehicleSubject(p snapshot.VehiclePosition) string {
	return fmt.Sprintf("%s.vehicles.%s.%s", s.prefix, subjectToken(p.RouteName), subjectToken(p.ID))
}

// Deliver implements realtime.Sink. It returns once the server has
// acknowledged the batch or ctx is done.
func (s *NATSSink) Deliver(ctx context.Context, snap snapshot.Snapshot) error {
	positions := snap.Positions
	if positions == nil {
		positions = []snapshot.VehiclePosition{}
	}
	b, err := json.Marshal(SnapshotMessage{
		Seq:       snap.Seq,
		Timestamp: snap.Timestamp,
		Count:     len(positions),
		Positions: positions,
	})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := s.conn.Publish(s.PositionsSubject(), b); err != nil {
		return fmt.Errorf("failed to publish %s: %w", s.PositionsSubject(), err)
	}

	if s.perVehicle {
		for _, p := range positions {
			vb, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("failed to encode vehicle %s: %w", p.ID, err)
			}
			subject := s.VehicleSubject(p)
			if err := s.conn.Publish(subject, vb); err != nil {
				return fmt.Errorf("failed to publish %s: %w", subject, err)
			}
		}
	}

	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush nats connection: %w", err)
	}
	s.logger.Debug("snapshot delivered",
		slog.Uint64("seq", snap.Seq),
		slog.Int("vehicles", len(positions)))
	return nil
}

// Close drains pending messages and closes the connection.
func (s *NATSSink) Close() error {
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to drain nats connection: %w", err)
	}
	return nil
}

// subjectToken makes s safe as a single NATS subject token.
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
