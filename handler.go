package halyard

import (
	"context"
	"reflect"
)

// Handler is a route handler object interface. Any object that implements
// this interface can be bound to a command name with Route.
type Handler[S any] interface {
	Handle(ctx context.Context, params Params, d *Dispatcher, state S)
}

// HandlerFunc is a function adapter that allows ordinary functions to be used
// as route handlers.
type HandlerFunc[S any] func(ctx context.Context, params Params, d *Dispatcher, state S)

// Handle calls the function.
func (f HandlerFunc[S]) Handle(ctx context.Context, params Params, d *Dispatcher, state S) {
	f(ctx, params, d, state)
}

// LayerHandler is the guard run by a Layer. Returning true passes the
// (possibly modified) params on to the next layer; returning false cancels
// the dispatch and the route handler never runs.
type LayerHandler[S any] interface {
	HandleLayer(ctx context.Context, params Params, d *Dispatcher, state S) (Params, bool)
}

// LayerFunc is a function adapter for LayerHandler.
type LayerFunc[S any] func(ctx context.Context, params Params, d *Dispatcher, state S) (Params, bool)

// HandleLayer calls the function.
func (f LayerFunc[S]) HandleLayer(ctx context.Context, params Params, d *Dispatcher, state S) (Params, bool) {
	return f(ctx, params, d, state)
}

// InterceptorHandler transforms or vetoes a raw text frame. Returning true
// passes the (possibly rewritten) text on; returning false drops the frame.
// connectionID is empty on the client.
type InterceptorHandler[S any] interface {
	Intercept(ctx context.Context, text string, connectionID string, state S) (string, bool)
}

// InterceptorFunc is a function adapter for InterceptorHandler.
type InterceptorFunc[S any] func(ctx context.Context, text string, connectionID string, state S) (string, bool)

// Intercept calls the function.
func (f InterceptorFunc[S]) Intercept(ctx context.Context, text string, connectionID string, state S) (string, bool) {
	return f(ctx, text, connectionID, state)
}

func toHandler[S any](handler any) Handler[S] {
	switch h := handler.(type) {
	case Handler[S]:
		return h
	case func(context.Context, Params, *Dispatcher, S):
		return HandlerFunc[S](h)
	case nil:
		panic("no handler provided")
	}
	panic("invalid handler type. Must be Handler, HandlerFunc, or " +
		"func(context.Context, Params, *Dispatcher, S). Got: " + reflect.TypeOf(handler).String())
}

func toLayerHandler[S any](handler any) LayerHandler[S] {
	switch h := handler.(type) {
	case LayerHandler[S]:
		return h
	case func(context.Context, Params, *Dispatcher, S) (Params, bool):
		return LayerFunc[S](h)
	case nil:
		panic("no layer handler provided")
	}
	panic("invalid layer handler type. Must be LayerHandler, LayerFunc, or " +
		"func(context.Context, Params, *Dispatcher, S) (Params, bool). Got: " + reflect.TypeOf(handler).String())
}

func toInterceptorHandler[S any](handler any) InterceptorHandler[S] {
	switch h := handler.(type) {
	case InterceptorHandler[S]:
		return h
	case func(context.Context, string, string, S) (string, bool):
		return InterceptorFunc[S](h)
	case nil:
		panic("no interceptor handler provided")
	}
	panic("invalid interceptor handler type. Must be InterceptorHandler, InterceptorFunc, or " +
		"func(context.Context, string, string, S) (string, bool). Got: " + reflect.TypeOf(handler).String())
}
