package halyard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Server accepts many connections and routes their commands to handlers.
// It implements http.Handler for easy integration with Go's standard HTTP
// servers, and can be driven with any Connection via HandleConnection.
//
// Routes, layers and interceptors must be registered before the first
// connection is handled; after that the configuration is frozen and every
// session shares it without locking.
type Server[S any] struct {
	router[S]

	registry *Registry
	origins  []string

	runOnce sync.Once
	ctx     context.Context
	cancel  context.CancelFunc
}

var _ http.Handler = &Server[struct{}]{}

// NewServer creates a server holding the given shared application state.
// The state is handed to every handler, layer and interceptor and is never
// replaced; synchronizing any mutable fields inside it is up to the caller.
func NewServer[S any](state S) *Server[S] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server[S]{
		router:   router[S]{state: state},
		registry: NewRegistry(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetOrigins configures the allowed origin patterns for WebSocket
// connections accepted by ServeHTTP. If not set, all origins are allowed
// (equivalent to []string{"*"}).
//
// Origin patterns support wildcards, for example:
//   - "https://example.com" - exact match
//   - "https://*.example.com" - subdomain wildcard
//   - "*" - allow all origins (default)
func (s *Server[S]) SetOrigins(origins []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.origins = origins
}

// SetRelay binds the server's registry to a relay so handlers can address
// connections held by other servers.
func (s *Server[S]) SetRelay(relay Relay) error {
	return s.registry.SetRelay(relay)
}

// Registry returns the server's connection registry.
func (s *Server[S]) Registry() *Registry {
	return s.registry
}

// SendTo queues text for the connection with the given id. It is the same as
// Dispatcher.SendTo, for code outside of handlers.
func (s *Server[S]) SendTo(connectionID string, text string) {
	s.start()
	s.registry.SendTo(connectionID, text)
}

// ServeHTTP implements the http.Handler interface. It upgrades WebSocket
// requests and runs a session until the connection ends. If the request is
// not a WebSocket upgrade request, it returns a 400 Bad Request error.
func (s *Server[S]) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	if !strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
		res.WriteHeader(http.StatusBadRequest)
		_, _ = res.Write([]byte("Bad Request. Expected websocket upgrade request"))
		return
	}

	s.mu.Lock()
	origins := s.origins
	s.mu.Unlock()
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	conn, err := websocket.Accept(res, req, &websocket.AcceptOptions{
		OriginPatterns: origins,
	})
	if err != nil {
		s.freeze().logger.Warn("failed to accept websocket connection",
			slog.String("remote_addr", req.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	s.HandleConnection(req.Context(), NewWebSocketConnection(conn))
}

// HandleConnection runs a session over connection and blocks until it ends.
// This allows driving the server with custom transports. The session also
// ends when ctx is done or the server is closed.
func (s *Server[S]) HandleConnection(ctx context.Context, connection Connection) {
	e := s.start()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	newSession(uuid.NewString(), connection, e, s.registry).run(ctx)
}

// ListenAndServe listens on addr and serves WebSocket connections until ctx
// is done, then shuts the listener down and closes the server.
func (s *Server[S]) ListenAndServe(ctx context.Context, addr string) error {
	e := s.start()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		e.logger.Info("server listening", slog.String("addr", addr))
		errChan <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errChan; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close ends every session with StatusGoingAway and stops addressed
// delivery. Handlers already running are not interrupted.
func (s *Server[S]) Close() {
	s.cancel()
	_ = s.registry.Close()
}

// start freezes the configuration and starts the registry's dispatch
// goroutine the first time it is called.
func (s *Server[S]) start() *engine[S] {
	e := s.freeze()
	s.runOnce.Do(func() {
		s.registry.attach(e.logger, e.metrics)
		go s.registry.Run(s.ctx)
	})
	return e
}
