package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultSubject is the NATS subject every node publishes and subscribes on.
const DefaultSubject = "chat.events"

type relayEnvelope struct {
	Origin     string          `json:"origin"`
	Recipients []string        `json:"recipients"`
	Event      json.RawMessage `json:"event"`
}

// NATSRelay fans events out to every node over NATS. Each node, this one
// included, delivers what it receives to its own channels.
type NATSRelay struct {
	conn    *nats.Conn
	subject string
	nodeID  string
	sub     *nats.Subscription
	logger  zerolog.Logger
}

// NewNATSRelay subscribes on subject and hands received events to gw.
func NewNATSRelay(conn *nats.Conn, subject, nodeID string, gw *Gateway) (*NATSRelay, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	r := &NATSRelay{
		conn:    conn,
		subject: subject,
		nodeID:  nodeID,
		logger:  log.With().Str("component", "relay").Str("node_id", nodeID).Logger(),
	}
	sub, err := conn.Subscribe(subject, func(m *nats.Msg) {
		var env relayEnvelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			r.logger.Warn().Err(err).Msg("discarding malformed relay message")
			return
		}
		gw.Deliver(env.Recipients, env.Event)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	r.sub = sub
	return r, nil
}

func (r *NATSRelay) Publish(recipients []string, data []byte) error {
	payload, err := json.Marshal(relayEnvelope{
		Origin:     r.nodeID,
		Recipients: recipients,
		Event:      data,
	})
	if err != nil {
		return fmt.Errorf("encode relay envelope: %w", err)
	}
	if err := r.conn.Publish(r.subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", r.subject, err)
	}
	return nil
}

func (r *NATSRelay) Close() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Unsubscribe()
}
