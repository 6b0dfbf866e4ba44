package halyard

import "context"

// Direction selects which side of a session an interceptor sees.
type Direction int

const (
	// Incoming interceptors see raw frames read from the transport, before
	// they are decoded.
	Incoming Direction = iota
	// Outgoing interceptors see queued text just before it is written to the
	// transport.
	Outgoing
)

func (d Direction) String() string {
	switch d {
	case Incoming:
		return "incoming"
	case Outgoing:
		return "outgoing"
	default:
		return "unknown"
	}
}

// interceptors holds at most one interceptor per direction.
type interceptors[S any] struct {
	incoming InterceptorHandler[S]
	outgoing InterceptorHandler[S]
}

func (i *interceptors[S]) set(direction Direction, handler InterceptorHandler[S]) {
	switch direction {
	case Incoming:
		i.incoming = handler
	case Outgoing:
		i.outgoing = handler
	default:
		panic("invalid interceptor direction: " + direction.String())
	}
}

// run passes text through the interceptor for direction. Without an
// interceptor the text passes unchanged.
func (i *interceptors[S]) run(ctx context.Context, direction Direction, text string, connectionID string, state S) (string, bool) {
	handler := i.incoming
	if direction == Outgoing {
		handler = i.outgoing
	}
	if handler == nil {
		return text, true
	}
	return handler.Intercept(ctx, text, connectionID, state)
}
