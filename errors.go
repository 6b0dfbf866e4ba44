package halyard

import "errors"

var (
	// ErrFrozen is the panic value when routes, layers or interceptors are
	// registered after the server or connector has started.
	ErrFrozen = errors.New("halyard: configuration is frozen once serving starts")

	// ErrSessionClosed is returned when sending on a session that has ended.
	ErrSessionClosed = errors.New("halyard: session closed")

	// ErrNotConnected is returned by Connector.Send while no connection is
	// live.
	ErrNotConnected = errors.New("halyard: not connected")

	// ErrNoRegistry is returned by Dispatcher.SendTo on the client, which has
	// no connection registry to address.
	ErrNoRegistry = errors.New("halyard: addressed delivery is only available on the server")

	// ErrAlreadyRunning is returned by Connector.Run when the connector is
	// already running.
	ErrAlreadyRunning = errors.New("halyard: connector already running")

	// ErrUnsupportedFrame is returned by connection adapters when the peer
	// sends a non-text frame.
	ErrUnsupportedFrame = errors.New("halyard: unsupported frame type")
)
