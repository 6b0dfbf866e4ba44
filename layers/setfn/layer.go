package setfn

import (
	"context"

	"github.com/RobertWHurst/halyard"
)

// Layer creates a layer that sets a parameter to a freshly generated value.
// The valueFn function is called for each command.
//
// Use this when you need a unique value for each command (e.g., timestamps,
// request IDs).
//
// Example:
//
//	server.Layer(setfn.Layer[*Room]("request-id", "requestId", uuid.NewString))
//
//	server.Route("SAY", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, room *Room) {
//	    log.Printf("[%s] processing", p.Get("requestId")) // unique per command
//	})
//
// See also: set.Layer for constant values.
func Layer[S any](name string, key string, valueFn func() string) *halyard.Layer[S] {
	return halyard.NewLayer[S](name, func(ctx context.Context, params halyard.Params, d *halyard.Dispatcher, state S) (halyard.Params, bool) {
		return params.With(key, valueFn()), true
	})
}
