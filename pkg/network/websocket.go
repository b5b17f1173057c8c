package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cbodonnell/battlecards/pkg/log"
	"github.com/cbodonnell/battlecards/pkg/messages"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	// DefaultWriteTimeout bounds every write to a single connection
	DefaultWriteTimeout = 5 * time.Second
	// WSPath is the path the websocket endpoint is served on
	WSPath = "/ws"
)

// WSServer represents a WebSocket server.
type WSServer struct {
	port           int
	tls            *TLSConfig
	originPatterns []string
	writeTimeout   time.Duration
	// conns tracks running read loops, including their disconnect handling
	conns sync.WaitGroup
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewWSServerOptions struct {
	Port int
	TLS  *TLSConfig
	// OriginPatterns restricts cross-origin connections. Empty allows every origin.
	OriginPatterns []string
	WriteTimeout   time.Duration
}

// NewWSServer creates a new WebSocket server.
func NewWSServer(opts NewWSServerOptions) *WSServer {
	s := &WSServer{
		port:           opts.Port,
		tls:            opts.TLS,
		originPatterns: opts.OriginPatterns,
		writeTimeout:   opts.WriteTimeout,
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = DefaultWriteTimeout
	}
	return s
}

// Conn is the write side of a client connection.
type Conn interface {
	WriteMessage(ctx context.Context, msg *messages.Message) error
	Close(reason string) error
	RemoteAddr() string
}

type ConnectHandler func(conn Conn) (clientID string)

type DisconnectHandler func(clientID string)

type MessageHandler func(ctx context.Context, clientID string, message *messages.Message)

// Handler returns the http.Handler serving the websocket endpoint.
func (s *WSServer) Handler(connectHandler ConnectHandler, disconnectHandler DisconnectHandler, messageHandler MessageHandler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(WSPath, func(w http.ResponseWriter, r *http.Request) {
		opts := &websocket.AcceptOptions{
			OriginPatterns:     s.originPatterns,
			InsecureSkipVerify: len(s.originPatterns) == 0,
		}
		conn, err := websocket.Accept(w, r, opts)
		if err != nil {
			log.Error("Failed to upgrade to WebSocket: %v", err)
			return
		}
		conn.SetReadLimit(messages.MessageBufferSize)

		wsConn := &wsConn{
			conn:         conn,
			remoteAddr:   r.RemoteAddr,
			writeTimeout: s.writeTimeout,
		}
		log.Debug("New WebSocket connection from %s", wsConn.RemoteAddr())
		s.conns.Add(1)
		defer s.conns.Done()
		s.handleWSConnection(r.Context(), wsConn, connectHandler, disconnectHandler, messageHandler)
	})
	return mux
}

// Start starts the WebSocket server and blocks until ctx is cancelled or the server fails.
// After a shutdown it also waits for every connection to be disconnected.
func (s *WSServer) Start(ctx context.Context, connectHandler ConnectHandler, disconnectHandler DisconnectHandler, messageHandler MessageHandler) error {
	addr := fmt.Sprintf(":%d", s.port)
	server := &http.Server{
		Addr:    addr,
		Handler: s.Handler(connectHandler, disconnectHandler, messageHandler),
		// connection contexts are cancelled on shutdown so read loops exit
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	var listenAndServe func() error
	if s.tls != nil {
		log.Info("WebSocket server listening on %s with TLS", addr)
		listenAndServe = func() error {
			return server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("WebSocket server listening on %s", addr)
		listenAndServe = server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.Wait()
			log.Info("WebSocket server closed")
			return nil
		}
		return fmt.Errorf("websocket server error: %v", err)
	}
	return nil
}

// Wait blocks until every connection accepted so far has been read to the end
// and its disconnect handler has returned.
func (s *WSServer) Wait() {
	s.conns.Wait()
}

// handleWSConnection reads messages until the connection closes. Messages are
// handled in the order they arrive.
func (s *WSServer) handleWSConnection(ctx context.Context, conn *wsConn, connectHandler ConnectHandler, disconnectHandler DisconnectHandler, messageHandler MessageHandler) {
	clientID := connectHandler(conn)
	defer func() {
		disconnectHandler(clientID)
		conn.Close("connection closed")
	}()

	for {
		message, err := conn.ReadMessage(ctx)
		if err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				log.Warn("Malformed message from client %s: %v", clientID, err)
				if err := conn.WriteMessage(ctx, messages.NewErrorMessage("Malformed message")); err != nil {
					log.Error("Failed to write error to client %s: %v", clientID, err)
					return
				}
				continue
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Trace("Connection closed for client %s", clientID)
			default:
				if ctx.Err() == nil {
					log.Debug("Error reading WebSocket message from client %s: %v", clientID, err)
				}
			}
			return
		}

		messageHandler(ctx, clientID, message)
	}
}

type wsConn struct {
	conn         *websocket.Conn
	remoteAddr   string
	writeTimeout time.Duration
}

// ReadMessage reads a single text frame and decodes its message envelope.
func (c *wsConn) ReadMessage(ctx context.Context) (*messages.Message, error) {
	_, b, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	msg := &messages.Message{}
	if err := json.Unmarshal(b, msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return msg, nil
}

// WriteMessage writes a Message to the WebSocket connection. It is safe for concurrent use.
func (c *wsConn) WriteMessage(ctx context.Context, msg *messages.Message) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		return fmt.Errorf("failed to write message to WebSocket connection: %v", err)
	}
	return nil
}

func (c *wsConn) Close(reason string) error {
	return c.conn.Close(websocket.StatusNormalClosure, reason)
}

func (c *wsConn) RemoteAddr() string {
	return c.remoteAddr
}
