package halyard

import (
	"context"
	"log/slog"
	"time"
)

// writeTimeout bounds a single frame write so a stalled peer cannot hold a
// session open forever.
const writeTimeout = 10 * time.Second

type inboundFrame struct {
	text string
	err  error
}

type closeRequest struct {
	status Status
	reason string
}

// session owns one open connection. Its loop is the only writer to the
// transport; inbound frames come from a separate reader goroutine, and
// every dispatched command runs on its own goroutine.
type session[S any] struct {
	id       string
	conn     Connection
	engine   *engine[S]
	registry *Registry

	outbound   *queue[string]
	done       chan struct{}
	closeReq   chan closeRequest
	dispatcher *Dispatcher
}

// newSession creates a session. A nil registry makes it a client session:
// no registry entry, no uuid parameter.
func newSession[S any](id string, conn Connection, e *engine[S], registry *Registry) *session[S] {
	s := &session[S]{
		id:       id,
		conn:     conn,
		engine:   e,
		registry: registry,
		outbound: newQueue[string](),
		done:     make(chan struct{}),
		closeReq: make(chan closeRequest, 1),
	}
	s.dispatcher = &Dispatcher{
		id:       id,
		outbound: s.outbound,
		registry: registry,
		done:     s.done,
		close:    s.requestClose,
	}
	return s
}

func (s *session[S]) isServer() bool {
	return s.registry != nil
}

func (s *session[S]) lifecycleParams() Params {
	if s.isServer() {
		return Params{UUIDKey: s.id}
	}
	return Params{}
}

func (s *session[S]) requestClose(status Status, reason string) {
	select {
	case s.closeReq <- closeRequest{status: status, reason: reason}:
	default:
	}
}

// run drives the session until the connection ends, ctx is done, or a
// handler closes it. It fires CONNECTED before reading and DISCONNECTED once
// after the loop exits.
func (s *session[S]) run(ctx context.Context) {
	logger := s.engine.logger.With(slog.String("connection_id", s.id))
	handlerCtx := withConnectionID(context.WithoutCancel(ctx), s.id)

	if s.isServer() {
		s.registry.insert(s.id, s.outbound)
	}
	s.engine.metrics.sessionOpened()
	logger.Info("session opened")

	s.engine.dispatch(handlerCtx, ConnectedCommand, s.lifecycleParams(), s.dispatcher)

	// The reader outlives ctx so a shutdown can still flush and complete
	// the close handshake; cancelRead ends it once the connection is closed.
	readCtx, cancelRead := context.WithCancel(context.WithoutCancel(ctx))
	frames := make(chan inboundFrame)
	go s.readLoop(readCtx, frames)

	status, reason := s.loop(ctx, handlerCtx, frames, logger)

	if s.isServer() {
		s.registry.remove(s.id)
	}
	s.outbound.Close()
	close(s.done)
	s.engine.metrics.sessionClosed()

	s.engine.dispatch(handlerCtx, DisconnectedCommand, s.lifecycleParams(), s.dispatcher)

	if err := s.conn.Close(status, reason); err != nil {
		logger.Debug("error closing connection", slog.String("error", err.Error()))
	}
	cancelRead()

	logger.Info("session closed", slog.Int("status", int(status)), slog.String("reason", reason))
}

func (s *session[S]) loop(ctx context.Context, handlerCtx context.Context, frames <-chan inboundFrame, logger *slog.Logger) (Status, string) {
	for {
		select {
		case <-ctx.Done():
			_ = s.flush(handlerCtx, logger)
			return StatusGoingAway, "shutting down"

		case req := <-s.closeReq:
			_ = s.flush(handlerCtx, logger)
			return req.status, req.reason

		case <-s.outbound.Ready():
			if err := s.flush(handlerCtx, logger); err != nil {
				logger.Warn("failed to write to connection", slog.String("error", err.Error()))
				return StatusInternalError, "write failed"
			}

		case frame := <-frames:
			if frame.err != nil {
				if isCleanClose(frame.err) {
					logger.Debug("connection closed by peer", slog.String("error", frame.err.Error()))
				} else {
					logger.Warn("failed to read from connection", slog.String("error", frame.err.Error()))
				}
				return StatusNormalClosure, ""
			}
			s.handleFrame(handlerCtx, frame.text, logger)
		}
	}
}

// readLoop forwards frames until a read fails. The failing read is
// forwarded too so the loop can end the session.
func (s *session[S]) readLoop(ctx context.Context, frames chan<- inboundFrame) {
	for {
		text, err := s.conn.Read(ctx)
		select {
		case frames <- inboundFrame{text: text, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *session[S]) handleFrame(ctx context.Context, text string, logger *slog.Logger) {
	s.engine.metrics.frameReceived()

	text, ok := s.engine.interceptors.run(ctx, Incoming, text, s.id, s.engine.state)
	if !ok {
		logger.Debug("incoming frame vetoed by interceptor")
		s.engine.metrics.frameDropped(Incoming)
		return
	}

	command := Decode(text)
	params := command.Params
	if s.isServer() {
		params[UUIDKey] = s.id
	} else {
		delete(params, UUIDKey)
	}

	s.engine.dispatch(ctx, command.Name, params, s.dispatcher)
}

// flush writes everything queued so far, in queue order.
func (s *session[S]) flush(ctx context.Context, logger *slog.Logger) error {
	for _, text := range s.outbound.PopAll() {
		text, ok := s.engine.interceptors.run(ctx, Outgoing, text, s.id, s.engine.state)
		if !ok {
			logger.Debug("outgoing message vetoed by interceptor")
			s.engine.metrics.frameDropped(Outgoing)
			continue
		}

		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := s.conn.Write(writeCtx, text)
		cancel()
		if err != nil {
			return err
		}
		s.engine.metrics.frameSent()
	}
	return nil
}
