package set

import (
	"context"

	"github.com/RobertWHurst/halyard"
)

// Layer creates a layer that sets a parameter to a fixed value before the
// handler runs. The value is set once when the layer is created and reused
// for every command. A value already present in the frame is overwritten.
//
// Example:
//
//	server.Layer(set.Layer[*Room]("api-version", "apiVersion", "v1"))
//
//	server.Route("INFO", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, room *Room) {
//	    _ = d.SendCommand("INFO", halyard.Params{"version": p.Get("apiVersion")}) // "v1"
//	})
//
// See also: setfn.Layer for dynamic values.
func Layer[S any](name string, key string, value string) *halyard.Layer[S] {
	return halyard.NewLayer[S](name, func(ctx context.Context, params halyard.Params, d *halyard.Dispatcher, state S) (halyard.Params, bool) {
		return params.With(key, value), true
	})
}
