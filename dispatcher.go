package halyard

import "context"

// Dispatcher is handed to every handler, layer and lifecycle event. It sends
// text on the connection the event came from and, on the server, to any
// other connection by id.
//
// Sends are queued; they never block on the transport. A Dispatcher remains
// valid after its session ends, but sends then fail with ErrSessionClosed.
type Dispatcher struct {
	id       string
	outbound *queue[string]
	registry *Registry
	done     <-chan struct{}
	close    func(status Status, reason string)
}

// ID returns the connection id of the session. It is empty on the client.
func (d *Dispatcher) ID() string {
	return d.id
}

// Send queues text for the current connection.
func (d *Dispatcher) Send(text string) error {
	select {
	case <-d.done:
		return ErrSessionClosed
	default:
	}
	if !d.outbound.Push(text) {
		return ErrSessionClosed
	}
	return nil
}

// SendCommand encodes a command and queues it for the current connection.
func (d *Dispatcher) SendCommand(name string, params Params) error {
	return d.Send(Encode(name, params))
}

// SendTo queues text for the connection with the given id. Delivery happens
// on the registry's dispatch goroutine; if no such connection exists the
// message is dropped and no error is reported. On the client, which has no
// registry, SendTo returns ErrNoRegistry.
func (d *Dispatcher) SendTo(connectionID string, text string) error {
	if d.registry == nil {
		return ErrNoRegistry
	}
	d.registry.SendTo(connectionID, text)
	return nil
}

// Done is closed when the session ends.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// KeepAlive blocks until the session ends or ctx is done. It returns nil if
// the session ended, ctx.Err() otherwise.
func (d *Dispatcher) KeepAlive(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the session with the given status and reason. Messages already
// queued are flushed first. Closing an ended session does nothing.
func (d *Dispatcher) Close(status Status, reason string) {
	if d.close != nil {
		d.close(status, reason)
	}
}
