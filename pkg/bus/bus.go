// Package bus publishes advisory keydesk lifecycle events to NATS. Events are
// fire-and-forget telemetry for fleet operators watching many dashboard
// clients; no store transition ever depends on a publish succeeding.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
)

// Subjects emitted by the stores.
const (
	SubjectSessionLogin  = "keydesk.session.login"
	SubjectSessionLogout = "keydesk.session.logout"
	SubjectKeyGenerated  = "keydesk.keys.generated"
)

// Bus wraps a core NATS connection for publishing client lifecycle events.
type Bus struct {
	conn *nats.Conn
}

// Connect dials the provided NATS endpoint.
func Connect(url string, opts ...nats.Option) (*Bus, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("bus: nats url is required")
	}

	opts = append([]nats.Option{nats.Name("keydesk")}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &Bus{conn: nc}, nil
}

// Close shuts down the underlying NATS connection, flushing pending
// publishes first.
func (b *Bus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Publish encodes v as JSON and publishes it to the given subject. The
// context bounds only local work; core NATS publishes do not wait for
// acknowledgement.
func (b *Bus) Publish(ctx context.Context, subject string, v any) error {
	if b == nil || b.conn == nil {
		return errors.New("bus: not connected")
	}
	if subject == "" {
		return errors.New("bus: subject is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.conn.Publish(subject, data)
}
