package halyard

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// DefaultBackoff is how long a connector waits after a disconnect before
// dialing again.
const DefaultBackoff = 2 * time.Second

// DialFunc opens a connection to url.
type DialFunc func(ctx context.Context, url string) (Connection, error)

// DialWebSocket is the default DialFunc. It dials url with
// github.com/coder/websocket.
func DialWebSocket(ctx context.Context, url string) (Connection, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketConnection(conn), nil
}

// Connector is the client side: it keeps one connection to a server open
// for as long as Run is running, reconnecting whenever it drops. Commands
// from the server are routed to handlers exactly as on the Server, except
// that params never carry a uuid and SendTo is unavailable.
//
// Failed dials are retried immediately. After an established connection
// ends, the connector fires DISCONNECTED, waits a fixed backoff (two seconds
// by default) and dials again. There is no retry limit and the backoff does
// not grow.
type Connector[S any] struct {
	router[S]

	url        string
	dial       DialFunc
	backoff    time.Duration
	retryDelay time.Duration

	running atomic.Bool
	state   atomic.Int32
	current atomic.Pointer[Dispatcher]
}

// NewConnector creates a connector for url holding the given shared
// application state.
func NewConnector[S any](url string, state S) *Connector[S] {
	return &Connector[S]{
		router:  router[S]{state: state},
		url:     url,
		dial:    DialWebSocket,
		backoff: DefaultBackoff,
	}
}

// URL returns the address the connector dials.
func (c *Connector[S]) URL() string {
	return c.url
}

// SetDialer replaces the default WebSocket dialer.
func (c *Connector[S]) SetDialer(dial DialFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustNotBeFrozen()
	if dial == nil {
		dial = DialWebSocket
	}
	c.dial = dial
}

// SetBackoff sets the wait between a disconnect and the next dial.
func (c *Connector[S]) SetBackoff(backoff time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustNotBeFrozen()
	c.backoff = backoff
}

// SetRetryDelay sets the wait between failed dials. The default is zero:
// failed dials are retried immediately.
func (c *Connector[S]) SetRetryDelay(delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustNotBeFrozen()
	c.retryDelay = delay
}

// State returns the connector's current state.
func (c *Connector[S]) State() ConnectorState {
	return ConnectorState(c.state.Load())
}

// Send queues text on the live connection. It returns ErrNotConnected if
// there is none.
func (c *Connector[S]) Send(text string) error {
	d := c.current.Load()
	if d == nil {
		return ErrNotConnected
	}
	if err := d.Send(text); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return ErrNotConnected
		}
		return err
	}
	return nil
}

// SendCommand encodes a command and sends it on the live connection.
func (c *Connector[S]) SendCommand(name string, params Params) error {
	return c.Send(Encode(name, params))
}

// Run connects and keeps reconnecting until ctx is done, then returns
// ctx.Err(). It is meant to run for the lifetime of the process.
func (c *Connector[S]) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	e := c.freeze()
	c.mu.Lock()
	dial, backoff, retryDelay := c.dial, c.backoff, c.retryDelay
	c.mu.Unlock()

	logger := e.logger.With(slog.String("url", c.url))

	for {
		c.setState(e, logger, Connecting)

		conn, err := c.connect(ctx, e, logger, dial, retryDelay)
		if err != nil {
			return err
		}

		c.setState(e, logger, Connected)
		s := newSession("", conn, e, nil)
		c.current.Store(s.dispatcher)
		s.run(ctx)
		c.current.CompareAndSwap(s.dispatcher, nil)

		if err := ctx.Err(); err != nil {
			return err
		}

		c.setState(e, logger, Backoff)
		e.metrics.reconnecting()

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (c *Connector[S]) connect(ctx context.Context, e *engine[S], logger *slog.Logger, dial DialFunc, retryDelay time.Duration) (Connection, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e.metrics.connectAttempted()
		conn, err := dial(ctx, c.url)
		if err == nil {
			return conn, nil
		}
		logger.Debug("connect failed", slog.String("error", err.Error()))

		if retryDelay > 0 {
			timer := time.NewTimer(retryDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}
	}
}

func (c *Connector[S]) setState(e *engine[S], logger *slog.Logger, state ConnectorState) {
	c.state.Store(int32(state))
	e.metrics.connectorStateChanged(state)
	logger.Info("connector state changed", slog.String("state", state.String()))
}
