package halyard

import (
	"context"
	"maps"
)

// Layer is a named guard that runs before route handlers. A layer may be
// scoped to a set of routes with Allow, or exclude routes with Block. When a
// route appears in both sets, Block wins.
//
// The sets are copied when serving starts; Allow and Block calls made after
// that do not affect the running configuration.
//
// A layer's handler may rewrite the params it passes on, or cancel the
// dispatch. On the server the uuid parameter is put back after the layers
// run, whatever they return. Cancelling sends nothing to the peer; if a
// rejection message is wanted the layer sends it itself through the
// Dispatcher.
type Layer[S any] struct {
	name    string
	allow   map[string]struct{}
	block   map[string]struct{}
	handler LayerHandler[S]
}

// NewLayer creates a layer. The handler must be a LayerHandler, a LayerFunc,
// or a func(context.Context, Params, *Dispatcher, S) (Params, bool).
//
// Example:
//
//	auth := halyard.NewLayer("auth", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *State) (halyard.Params, bool) {
//	    if !s.IsAuthorized(p.Get("uuid")) {
//	        _ = d.SendCommand("DENIED", nil)
//	        return p, false
//	    }
//	    return p, true
//	}).Block("LOGIN")
func NewLayer[S any](name string, handler any) *Layer[S] {
	return &Layer[S]{
		name:    name,
		allow:   map[string]struct{}{},
		block:   map[string]struct{}{},
		handler: toLayerHandler[S](handler),
	}
}

// Name returns the layer's name.
func (l *Layer[S]) Name() string {
	return l.name
}

// Allow restricts the layer to the given routes. Any route not listed is
// blocked by this layer, lifecycle events included. An empty allow set
// admits every route. To run a guard on some routes only, check
// RouteName(ctx) in the handler instead.
func (l *Layer[S]) Allow(routes ...string) *Layer[S] {
	for _, r := range routes {
		l.allow[r] = struct{}{}
	}
	return l
}

// Block prevents the given routes from passing this layer.
func (l *Layer[S]) Block(routes ...string) *Layer[S] {
	for _, r := range routes {
		l.block[r] = struct{}{}
	}
	return l
}

// Admits reports whether a route may pass this layer's allow and block sets.
// It does not run the handler.
func (l *Layer[S]) Admits(route string) bool {
	if _, blocked := l.block[route]; blocked {
		return false
	}
	if len(l.allow) == 0 {
		return true
	}
	_, allowed := l.allow[route]
	return allowed
}

func (l *Layer[S]) snapshot() *Layer[S] {
	return &Layer[S]{
		name:    l.name,
		allow:   maps.Clone(l.allow),
		block:   maps.Clone(l.block),
		handler: l.handler,
	}
}

type layerOutcome struct {
	params    Params
	blocked   bool
	blockedBy string
}

// runLayers runs the layers in order for route. The first layer that blocks
// short-circuits the rest.
func runLayers[S any](ctx context.Context, layers []*Layer[S], route string, params Params, d *Dispatcher, state S) layerOutcome {
	for _, layer := range layers {
		if !layer.Admits(route) {
			return layerOutcome{params: params, blocked: true, blockedBy: layer.name}
		}
		next, ok := layer.handler.HandleLayer(ctx, params, d, state)
		if !ok {
			return layerOutcome{params: params, blocked: true, blockedBy: layer.name}
		}
		if next == nil {
			next = Params{}
		}
		params = next
	}
	return layerOutcome{params: params}
}
