// Package require provides layers that cancel a dispatch when the command is
// missing parameters.
package require

import (
	"context"
	"slices"

	"github.com/RobertWHurst/halyard"
)

// MissingKey is the parameter naming the first missing key in a rejection
// sent by Rejecting.
const MissingKey = "missing"

// Layer creates a layer that cancels dispatches of routes unless every key
// is present with a non-empty value. Other routes pass untouched; an empty
// routes list guards every route. Nothing is sent to the peer.
//
//	server.Layer(require.Layer[*Room]("need-text", []string{"SAY"}, "text"))
func Layer[S any](name string, routes []string, keys ...string) *halyard.Layer[S] {
	return halyard.NewLayer[S](name, func(ctx context.Context, params halyard.Params, d *halyard.Dispatcher, state S) (halyard.Params, bool) {
		if !guards(ctx, routes) {
			return params, true
		}
		_, missing := firstMissing(params, keys)
		return params, !missing
	})
}

// Rejecting is like Layer but tells the peer why. It sends the command
// rejectName with the first missing key under MissingKey, for example
// @ERROR #missing 'text'.
func Rejecting[S any](name string, rejectName string, routes []string, keys ...string) *halyard.Layer[S] {
	return halyard.NewLayer[S](name, func(ctx context.Context, params halyard.Params, d *halyard.Dispatcher, state S) (halyard.Params, bool) {
		if !guards(ctx, routes) {
			return params, true
		}
		key, missing := firstMissing(params, keys)
		if !missing {
			return params, true
		}
		_ = d.SendCommand(rejectName, halyard.Params{MissingKey: key})
		return params, false
	})
}

func guards(ctx context.Context, routes []string) bool {
	return len(routes) == 0 || slices.Contains(routes, halyard.RouteName(ctx))
}

func firstMissing(params halyard.Params, keys []string) (string, bool) {
	for _, key := range keys {
		if params.Get(key) == "" {
			return key, true
		}
	}
	return "", false
}
