package halyard_test

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/RobertWHurst/halyard"
)

const testTimeout = 2 * time.Second

type mockConnection struct {
	incoming chan string
	outgoing chan string
	closed   chan struct{}

	hangUpOnce sync.Once
	closeOnce  sync.Once

	mu     sync.Mutex
	status halyard.Status
	reason string
}

var _ halyard.Connection = &mockConnection{}

func newMockConnection() *mockConnection {
	return &mockConnection{
		incoming: make(chan string, 10),
		outgoing: make(chan string, 10),
		closed:   make(chan struct{}),
	}
}

func (m *mockConnection) Read(ctx context.Context) (string, error) {
	select {
	case text, ok := <-m.incoming:
		if !ok {
			return "", io.EOF
		}
		return text, nil
	case <-m.closed:
		return "", net.ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *mockConnection) Write(ctx context.Context, text string) error {
	select {
	case <-m.closed:
		return net.ErrClosed
	default:
	}
	select {
	case m.outgoing <- text:
		return nil
	case <-m.closed:
		return net.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockConnection) Close(status halyard.Status, reason string) error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.status = status
		m.reason = reason
		m.mu.Unlock()
		close(m.closed)
	})
	return nil
}

// hangUp simulates the peer going away.
func (m *mockConnection) hangUp() {
	m.hangUpOnce.Do(func() { close(m.incoming) })
}

func (m *mockConnection) sendIncoming(text string) {
	m.incoming <- text
}

func (m *mockConnection) receiveOutgoing(t *testing.T) string {
	t.Helper()
	select {
	case text := <-m.outgoing:
		return text
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for outgoing message")
		return ""
	}
}

func (m *mockConnection) expectNoOutgoing(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case text := <-m.outgoing:
		t.Fatalf("unexpected outgoing message: %q", text)
	case <-time.After(wait):
	}
}

func (m *mockConnection) waitClosed(t *testing.T) (halyard.Status, string) {
	t.Helper()
	select {
	case <-m.closed:
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for connection to close")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.reason
}

// serve runs a session for conn on server. The returned channel is closed
// once the session has ended.
func serve[S any](server *halyard.Server[S], conn halyard.Connection) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.HandleConnection(context.Background(), conn)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for session to end")
	}
}

func receiveString(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for value")
		return ""
	}
}
