// Package gorillaconn runs halyard sessions over github.com/gorilla/websocket
// connections instead of the default github.com/coder/websocket ones.
//
//	upgrader := &websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
//	http.Handle("/ws", gorillaconn.Upgrade(upgrader, server))
//
//	connector.SetDialer(gorillaconn.Dialer(websocket.DefaultDialer, nil))
package gorillaconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/RobertWHurst/halyard"
	"github.com/gorilla/websocket"
)

// closeTimeout bounds the close handshake write.
const closeTimeout = time.Second

// Conn adapts a *websocket.Conn to halyard.Connection.
type Conn struct {
	wsConn *websocket.Conn
}

var _ halyard.Connection = &Conn{}

// New wraps conn.
func New(conn *websocket.Conn) *Conn {
	return &Conn{wsConn: conn}
}

// UnderlyingConn returns the wrapped gorilla connection.
func (c *Conn) UnderlyingConn() *websocket.Conn {
	return c.wsConn
}

// Read reads the next text frame. A normal close by the peer is reported as
// io.EOF; binary frames fail with halyard.ErrUnsupportedFrame.
func (c *Conn) Read(ctx context.Context) (string, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.wsConn.SetReadDeadline(time.Now())
	})
	defer stop()

	mt, data, err := c.wsConn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return "", io.EOF
		}
		return "", err
	}
	if mt != websocket.TextMessage {
		return "", fmt.Errorf("%w: %d", halyard.ErrUnsupportedFrame, mt)
	}
	return string(data), nil
}

// Write sends a text frame. The write deadline follows ctx's deadline.
func (c *Conn) Write(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := c.wsConn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.wsConn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close sends a close frame with the given status and reason, then closes
// the underlying network connection.
func (c *Conn) Close(status halyard.Status, reason string) error {
	msg := websocket.FormatCloseMessage(int(status), reason)
	err := c.wsConn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
	if closeErr := c.wsConn.Close(); err == nil || errors.Is(err, websocket.ErrCloseSent) {
		err = closeErr
	}
	return err
}

// Upgrade returns an http.Handler that upgrades requests with upgrader and
// runs a session for each connection on server.
func Upgrade[S any](upgrader *websocket.Upgrader, server *halyard.Server[S]) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		server.HandleConnection(r.Context(), New(wsConn))
	})
}

// Dialer returns a halyard.DialFunc that dials with d and the given request
// headers. A nil d selects websocket.DefaultDialer.
func Dialer(d *websocket.Dialer, reqHeader http.Header) halyard.DialFunc {
	if d == nil {
		d = websocket.DefaultDialer
	}
	return func(ctx context.Context, url string) (halyard.Connection, error) {
		conn, _, err := d.DialContext(ctx, url, reqHeader)
		if err != nil {
			return nil, err
		}
		return New(conn), nil
	}
}
