package halyard

// Relay carries addressed messages between registries, typically in
// different processes, so a handler can reach a connection held by another
// server. A registry hands a message to its relay only when the target id
// is not one of its own connections; messages arriving from the relay are
// only ever delivered locally.
//
// See the localrelay and natsrelay packages for implementations.
type Relay interface {
	// Dispatch publishes text for the connection with the given id to every
	// bound registry.
	Dispatch(connectionID string, text string) error

	// BindDispatch registers the handler a registry uses to receive relayed
	// messages.
	BindDispatch(registryID string, handler func(connectionID string, text string)) error

	// UnbindDispatch removes the registry's handler.
	UnbindDispatch(registryID string) error
}
