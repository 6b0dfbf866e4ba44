// Package halyard provides a small command router for text-framed WebSocket
// connections, with a server that tracks every connection and a client that
// reconnects on its own.
//
// Both sides speak the same line format: a command name prefixed with @ and
// any number of #key 'value' parameters.
//
//	@SAY #text 'hello there' #room 'lobby'
//
// # Key Features
//
//   - Exact-name routing with CONNECTED and DISCONNECTED lifecycle events
//   - Layers that guard or rewrite parameters before a handler runs
//   - Interceptors that veto or rewrite raw frames in either direction
//   - A connection registry for addressing other connections by id
//   - Relays (in-memory or NATS) for addressing connections on other servers
//   - A connector that redials forever with a fixed backoff
//   - Works with any HTTP router/framework via http.Handler interface
//
// # Quick Start
//
// Create a server with shared state, bind handlers, and serve:
//
//	server := halyard.NewServer(room)
//
//	server.Route("SAY", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, room *Room) {
//	    for _, id := range room.Members() {
//	        _ = d.SendTo(id, halyard.Encode("SAID", halyard.Params{"text": p.Get("text")}))
//	    }
//	})
//
//	http.ListenAndServe(":8167", server)
//
// On the server every dispatched command carries the connection id under
// the "uuid" parameter. A frame that does not start with an @name is
// dropped.
//
// # Client
//
// The connector routes server commands the same way and keeps the connection
// alive for as long as Run runs:
//
//	connector := halyard.NewConnector("ws://localhost:8167/", state)
//	connector.Route(halyard.ConnectedCommand, func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *State) {
//	    _ = d.SendCommand("NICK", halyard.Params{"name": "alice"})
//	})
//	err := connector.Run(ctx)
//
// # Layers
//
// Layers execute before handlers, including lifecycle handlers. Block stops
// the listed routes at a layer; Allow stops every route it does not list:
//
//	server.Layer(halyard.NewLayer[*Room]("auth", authorize).Block("LOGIN"))
//	server.Layer(require.Rejecting[*Room]("need-text", "ERROR", []string{"SAY"}, "text"))
//
// Registration must finish before the first connection is served. After
// that the configuration is frozen and further registration panics.
package halyard
