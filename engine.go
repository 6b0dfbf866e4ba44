package halyard

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
)

type route[S any] struct {
	name    string
	handler Handler[S]
}

// router collects routes, layers and interceptors before serving starts.
// Server and Connector embed it.
type router[S any] struct {
	mu           sync.Mutex
	frozen       *engine[S]
	routes       []route[S]
	layers       []*Layer[S]
	interceptors interceptors[S]
	state        S
	logger       *slog.Logger
	metrics      *Metrics
}

// Route binds a handler to a command name. Names are matched exactly and
// the first route registered for a name wins. The reserved names CONNECTED
// and DISCONNECTED receive the lifecycle events.
//
// The handler must be a Handler, a HandlerFunc, or a
// func(context.Context, Params, *Dispatcher, S). Route panics with ErrFrozen
// once serving has started.
//
//	server.Route("SAY", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *Room) {
//	    _ = d.SendCommand("ECHO", halyard.Params{"text": p.Get("text")})
//	})
func (r *router[S]) Route(name string, handler any) {
	if name == "" {
		panic("route name must not be empty")
	}
	h := toHandler[S](handler)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustNotBeFrozen()
	r.routes = append(r.routes, route[S]{name: name, handler: h})
}

// Layer appends layers to the pipeline run before every route handler,
// lifecycle events included. Layers run in the order they were added.
func (r *router[S]) Layer(layers ...*Layer[S]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustNotBeFrozen()
	for _, l := range layers {
		if l == nil {
			panic("nil layer provided")
		}
		r.layers = append(r.layers, l)
	}
}

// Intercept installs the interceptor for a direction, replacing any previous
// one. The handler must be an InterceptorHandler, an InterceptorFunc, or a
// func(context.Context, string, string, S) (string, bool).
func (r *router[S]) Intercept(direction Direction, handler any) {
	h := toInterceptorHandler[S](handler)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustNotBeFrozen()
	r.interceptors.set(direction, h)
}

// SetLogger sets the structured logger used for diagnostics. A nil logger
// selects slog.Default().
func (r *router[S]) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustNotBeFrozen()
	r.logger = logger
}

// SetMetrics sets the collectors that record routing activity. Metrics are
// optional; nil disables them.
func (r *router[S]) SetMetrics(metrics *Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustNotBeFrozen()
	r.metrics = metrics
}

// State returns the shared application state.
func (r *router[S]) State() S {
	return r.state
}

func (r *router[S]) mustNotBeFrozen() {
	if r.frozen != nil {
		panic(ErrFrozen)
	}
}

// freeze snapshots the configuration. Every session shares the snapshot, so
// nothing in it may change afterwards.
func (r *router[S]) freeze() *engine[S] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen != nil {
		return r.frozen
	}

	logger := r.logger
	if logger == nil {
		logger = slog.Default()
	}

	layers := make([]*Layer[S], len(r.layers))
	for i, l := range r.layers {
		layers[i] = l.snapshot()
	}

	r.frozen = &engine[S]{
		routes:       append([]route[S](nil), r.routes...),
		layers:       layers,
		interceptors: r.interceptors,
		state:        r.state,
		logger:       logger,
		metrics:      r.metrics,
	}
	return r.frozen
}

// engine is the frozen, read-only routing configuration.
type engine[S any] struct {
	routes       []route[S]
	layers       []*Layer[S]
	interceptors interceptors[S]
	state        S
	logger       *slog.Logger
	metrics      *Metrics
}

func (e *engine[S]) lookup(name string) (Handler[S], bool) {
	for _, r := range e.routes {
		if r.name == name {
			return r.handler, true
		}
	}
	return nil, false
}

// dispatch looks up the route for name and runs the layer pipeline and
// handler on their own goroutine. It reports whether a route was found.
func (e *engine[S]) dispatch(ctx context.Context, name string, params Params, d *Dispatcher) bool {
	if name == "" {
		e.logger.Debug("dropped frame without a command name",
			slog.String("connection_id", d.id))
		e.metrics.routeMissed()
		return false
	}

	handler, ok := e.lookup(name)
	if !ok {
		if name != ConnectedCommand && name != DisconnectedCommand {
			e.logger.Debug("no route for command",
				slog.String("route", name),
				slog.String("connection_id", d.id))
			e.metrics.routeMissed()
		}
		return false
	}

	e.metrics.routeDispatched(name)
	go e.invoke(ctx, name, handler, params, d)
	return true
}

func (e *engine[S]) invoke(ctx context.Context, name string, handler Handler[S], params Params, d *Dispatcher) {
	defer e.recoverHandler(name, d)

	ctx = withRouteName(ctx, name)
	outcome := runLayers(ctx, e.layers, name, params, d, e.state)
	if outcome.blocked {
		e.logger.Debug("dispatch cancelled by layer",
			slog.String("route", name),
			slog.String("layer", outcome.blockedBy),
			slog.String("connection_id", d.id))
		e.metrics.layerBlocked(name, outcome.blockedBy)
		return
	}

	params = outcome.params
	if d.registry != nil && params.Get(UUIDKey) != d.id {
		params = params.With(UUIDKey, d.id)
	}

	handler.Handle(ctx, params, d, e.state)
}

// recoverHandler keeps a panicking handler from taking the process down
// with it. The peer is told nothing.
func (e *engine[S]) recoverHandler(name string, d *Dispatcher) {
	maybeErr := recover()
	if maybeErr == nil {
		return
	}

	err, ok := maybeErr.(error)
	if !ok {
		err = fmt.Errorf("%v", maybeErr)
	}

	stackLines := strings.Split(string(debug.Stack()), "\n")
	if len(stackLines) > 6 {
		stackLines = stackLines[6:]
	}

	e.logger.Error("route handler panicked",
		slog.String("route", name),
		slog.String("connection_id", d.id),
		slog.String("error", err.Error()),
		slog.String("stack", strings.Join(stackLines, "\n")))
	e.metrics.handlerPanicked(name)
}
