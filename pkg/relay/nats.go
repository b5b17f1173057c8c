package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is the root of every subject published by NATSRelay.
const SubjectPrefix = "battlecards.games"

var _ Relay = &NATSRelay{}

// NATSRelay publishes every event to battlecards.games.<gameId>.<type>.
type NATSRelay struct {
	conn *nats.Conn
}

type NewNATSRelayOptions struct {
	URL  string
	Name string
}

func NewNATSRelay(opts NewNATSRelayOptions) (*NATSRelay, error) {
	conn, err := nats.Connect(opts.URL, nats.Name(opts.Name), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %v", err)
	}
	return &NATSRelay{
		conn: conn,
	}, nil
}

func (r *NATSRelay) Name() string {
	return "nats"
}

func (r *NATSRelay) Publish(_ context.Context, event *Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %v", err)
	}
	if err := r.conn.Publish(Subject(event.GameID, event.Type), b); err != nil {
		return fmt.Errorf("failed to publish event: %v", err)
	}
	return nil
}

// Close flushes pending publishes before closing the connection.
func (r *NATSRelay) Close() error {
	defer r.conn.Close()
	if err := r.conn.Flush(); err != nil {
		return fmt.Errorf("failed to flush NATS connection: %v", err)
	}
	return nil
}

// Subject returns the subject an event is published to.
func Subject(gameID, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, EscapeKey(gameID), EscapeKey(eventType))
}
