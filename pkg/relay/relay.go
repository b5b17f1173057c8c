package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event is a room broadcast mirrored to external subscribers.
type Event struct {
	GameID    string          `json:"gameId"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Relay publishes room events outside the process.
type Relay interface {
	Name() string
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// EscapeKey makes a game ID safe as a single NATS subject token and a single
// Firebase path segment. Letters, digits, '-' and '_' are kept and every other
// byte becomes %XX, so distinct IDs stay distinct.
func EscapeKey(id string) string {
	var b strings.Builder
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
