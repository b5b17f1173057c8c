package network

import (
	"context"
	"fmt"

	"github.com/cbodonnell/battlecards/pkg/messages"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	DefaultServerHostname = "localhost"
	DefaultServerWSPort   = 3000
)

// WSClient represents a client of the realtime gateway.
type WSClient struct {
	serverURL string
	conn      *websocket.Conn
}

// NewWSClient creates a new client for a ws://, wss://, http:// or https:// endpoint URL.
func NewWSClient(serverURL string) *WSClient {
	return &WSClient{
		serverURL: serverURL,
	}
}

// DefaultServerURL returns the gateway endpoint on the given host.
func DefaultServerURL(hostname string) string {
	return fmt.Sprintf("ws://%s:%d/ws", hostname, DefaultServerWSPort)
}

// Connect dials the server.
func (c *WSClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.serverURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %v", err)
	}
	conn.SetReadLimit(messages.MessageBufferSize)
	c.conn = conn
	return nil
}

// Send marshals payload and sends it as a message of the given type.
func (c *WSClient) Send(ctx context.Context, messageType string, payload interface{}) error {
	msg, err := messages.NewMessage(messageType, payload)
	if err != nil {
		return err
	}
	return c.SendMessage(ctx, msg)
}

// SendMessage sends a message to the server.
func (c *WSClient) SendMessage(ctx context.Context, msg *messages.Message) error {
	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		return fmt.Errorf("failed to write message to WebSocket connection: %v", err)
	}
	return nil
}

// SendRaw sends b as a single text frame without encoding it.
func (c *WSClient) SendRaw(ctx context.Context, b []byte) error {
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("failed to write to WebSocket connection: %v", err)
	}
	return nil
}

// Receive blocks until the next message arrives or ctx is done.
func (c *WSClient) Receive(ctx context.Context) (*messages.Message, error) {
	msg := &messages.Message{}
	if err := wsjson.Read(ctx, c.conn, msg); err != nil {
		return nil, fmt.Errorf("failed to read message from WebSocket connection: %v", err)
	}
	return msg, nil
}

// Close closes the connection with a normal closure.
func (c *WSClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close(websocket.StatusNormalClosure, "client closed")
}
