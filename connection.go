package halyard

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
)

// Connection is the transport a session runs over: a duplex stream of
// discrete text frames. The handshake and framing are the transport's
// business. Implement this to drive a Server or Connector with something
// other than github.com/coder/websocket; see Server.HandleConnection and
// Connector.SetDialer.
type Connection interface {
	// Read blocks until the next text frame arrives, the connection closes,
	// or ctx is done.
	Read(ctx context.Context) (string, error)
	// Write sends one text frame.
	Write(ctx context.Context, text string) error
	// Close closes the connection with the given status and reason.
	Close(status Status, reason string) error
}

// WebSocketConnection is a Connection implementation that wraps
// github.com/coder/websocket.Conn. This is the default connection type used
// by the server when handling HTTP WebSocket upgrades, and by the connector's
// default dialer.
type WebSocketConnection struct {
	webSocketConnection *websocket.Conn
}

var _ Connection = &WebSocketConnection{}

// NewWebSocketConnection creates a WebSocketConnection from a
// github.com/coder/websocket.Conn.
func NewWebSocketConnection(websocketConnection *websocket.Conn) *WebSocketConnection {
	return &WebSocketConnection{
		webSocketConnection: websocketConnection,
	}
}

// Read reads the next text frame. Binary frames are rejected with
// ErrUnsupportedFrame.
func (c *WebSocketConnection) Read(ctx context.Context) (string, error) {
	messageType, data, err := c.webSocketConnection.Read(ctx)
	if err != nil {
		return "", err
	}
	if messageType != websocket.MessageText {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFrame, messageType)
	}
	return string(data), nil
}

// Write sends a text frame.
func (c *WebSocketConnection) Write(ctx context.Context, text string) error {
	return c.webSocketConnection.Write(ctx, websocket.MessageText, []byte(text))
}

// Close closes the WebSocket connection with the given status code and
// reason.
func (c *WebSocketConnection) Close(status Status, reason string) error {
	return c.webSocketConnection.Close(websocket.StatusCode(status), reason)
}
