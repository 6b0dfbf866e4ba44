package halyard

// ConnectorState is the state of a Connector's reconnect loop.
type ConnectorState int32

const (
	// Connecting means the connector is dialing the server.
	Connecting ConnectorState = iota
	// Connected means a session is open.
	Connected
	// Backoff means the last session ended and the connector is waiting
	// before it dials again.
	Backoff
)

func (s ConnectorState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Backoff:
		return "backoff"
	default:
		return "unknown"
	}
}
