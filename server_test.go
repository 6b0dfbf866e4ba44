package halyard_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RobertWHurst/halyard"
	"github.com/coder/websocket"
	"github.com/davecgh/go-spew/spew"
)

type testState struct {
	name string
}

func echoRoute(server *halyard.Server[*testState]) {
	server.Route("SAY", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		_ = d.SendCommand("ECHO", halyard.Params{"text": p.Get("text")})
	})
	server.Route("PING", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		_ = d.SendCommand("PONG", nil)
	})
}

func TestServerConnectedCarriesUUID(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	server.Route(halyard.ConnectedCommand, func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		_ = d.SendCommand("HELLO", halyard.Params{
			"uuid": p.Get(halyard.UUIDKey),
			"id":   d.ID(),
			"ctx":  halyard.ConnectionID(ctx),
		})
	})

	conn := newMockConnection()
	serve(server, conn)

	hello := halyard.Decode(conn.receiveOutgoing(t))
	if hello.Name != "HELLO" {
		t.Fatalf("expected HELLO, got %s", spew.Sdump(hello))
	}
	if hello.Params.Get("uuid") == "" {
		t.Error("expected CONNECTED params to carry a uuid")
	}
	if hello.Params.Get("uuid") != hello.Params.Get("id") {
		t.Errorf("uuid param and dispatcher id differ: %s", spew.Sdump(hello.Params))
	}
	if hello.Params.Get("ctx") != hello.Params.Get("id") {
		t.Errorf("expected ConnectionID(ctx) to match the dispatcher id: %s", spew.Sdump(hello.Params))
	}
	if !server.Registry().Has(hello.Params.Get("id")) {
		t.Error("expected connection to be registered")
	}
}

func TestServerRoutesAndReplies(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()
	echoRoute(server)

	conn := newMockConnection()
	serve(server, conn)

	conn.sendIncoming("@SAY #text 'hello there'")
	if got := conn.receiveOutgoing(t); got != "@ECHO #text 'hello there'" {
		t.Errorf("unexpected reply: %q", got)
	}
}

func TestServerUUIDOverridesClientValue(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	server.Route("WHO", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		_ = d.SendCommand("YOU", halyard.Params{"uuid": p.Get(halyard.UUIDKey), "id": d.ID()})
	})

	conn := newMockConnection()
	serve(server, conn)

	conn.sendIncoming("@WHO #uuid 'forged'")
	reply := halyard.Decode(conn.receiveOutgoing(t))
	if reply.Params.Get("uuid") == "forged" {
		t.Error("client supplied uuid must be overwritten")
	}
	if reply.Params.Get("uuid") != reply.Params.Get("id") {
		t.Errorf("unexpected params: %s", spew.Sdump(reply.Params))
	}
}

func TestServerMissingRouteIsIgnored(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()
	echoRoute(server)

	conn := newMockConnection()
	serve(server, conn)

	conn.sendIncoming("@NOPE #a '1'")
	conn.sendIncoming("not a command at all")
	conn.sendIncoming("@PING")

	if got := conn.receiveOutgoing(t); got != "@PONG" {
		t.Errorf("expected @PONG, got %q", got)
	}
}

func TestServerFirstRouteWins(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	server.Route("DUP", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		_ = d.Send("first")
	})
	server.Route("DUP", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		_ = d.Send("second")
	})

	conn := newMockConnection()
	serve(server, conn)

	conn.sendIncoming("@DUP")
	if got := conn.receiveOutgoing(t); got != "first" {
		t.Errorf("expected first route to win, got %q", got)
	}
}

func TestServerLayerCancelsDispatch(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	var invoked atomic.Bool
	server.Layer(halyard.NewLayer[*testState]("auth", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) (halyard.Params, bool) {
		if p.Get("token") != "secret" {
			_ = d.SendCommand("DENIED", nil)
			return p, false
		}
		return p, true
	}).Allow("SECRET"))

	server.Route("SECRET", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		invoked.Store(true)
		_ = d.SendCommand("GRANTED", nil)
	})
	echoRoute(server)

	conn := newMockConnection()
	serve(server, conn)

	conn.sendIncoming("@SECRET #token 'wrong'")
	if got := conn.receiveOutgoing(t); got != "@DENIED" {
		t.Errorf("expected @DENIED, got %q", got)
	}
	if invoked.Load() {
		t.Error("handler must not run when a layer cancels")
	}

	conn.sendIncoming("@SECRET #token 'secret'")
	if got := conn.receiveOutgoing(t); got != "@GRANTED" {
		t.Errorf("expected @GRANTED, got %q", got)
	}
}

func TestServerLayerAllowScopesRoutes(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	server.Layer(halyard.NewLayer[*testState]("only-ping", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) (halyard.Params, bool) {
		return p, true
	}).Allow("PING"))
	echoRoute(server)

	conn := newMockConnection()
	serve(server, conn)

	conn.sendIncoming("@SAY #text 'blocked'")
	conn.sendIncoming("@PING")
	if got := conn.receiveOutgoing(t); got != "@PONG" {
		t.Errorf("expected @PONG, got %q", got)
	}
	conn.expectNoOutgoing(t, 100*time.Millisecond)
}

func TestServerLayerRewritesParams(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	server.Layer(halyard.NewLayer[*testState]("upper", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) (halyard.Params, bool) {
		return p.With("text", strings.ToUpper(p.Get("text"))), true
	}))
	echoRoute(server)

	conn := newMockConnection()
	serve(server, conn)

	conn.sendIncoming("@SAY #text 'quiet'")
	if got := conn.receiveOutgoing(t); got != "@ECHO #text 'QUIET'" {
		t.Errorf("unexpected reply: %q", got)
	}
}

func TestServerLayerCannotDropUUID(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	connected := make(chan string, 1)
	server.Layer(halyard.NewLayer[*testState]("wipe", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) (halyard.Params, bool) {
		if halyard.RouteName(ctx) == halyard.ConnectedCommand {
			return p, true
		}
		return nil, true
	}))
	server.Route(halyard.ConnectedCommand, func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		connected <- p.Get(halyard.UUIDKey)
	})
	server.Route("WHO", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		_ = d.SendCommand("YOU", halyard.Params{"uuid": p.Get(halyard.UUIDKey), "text": p.Get("text")})
	})

	conn := newMockConnection()
	serve(server, conn)
	id := receiveString(t, connected)

	conn.sendIncoming("@WHO #text 'dropped'")
	reply := halyard.Decode(conn.receiveOutgoing(t))
	if reply.Params.Get("uuid") != id {
		t.Errorf("expected uuid %q after layers, got %s", id, spew.Sdump(reply))
	}
	if reply.Params.Get("text") != "" {
		t.Errorf("expected the layer's empty params to reach the handler, got %s", spew.Sdump(reply))
	}
}

func TestServerIncomingInterceptorVeto(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	server.Intercept(halyard.Incoming, func(ctx context.Context, text string, connectionID string, s *testState) (string, bool) {
		return text, !strings.Contains(text, "drop")
	})
	echoRoute(server)

	conn := newMockConnection()
	done := serve(server, conn)

	conn.sendIncoming("@SAY #text 'drop me'")
	conn.sendIncoming("@SAY #text 'keep me'")

	if got := conn.receiveOutgoing(t); got != "@ECHO #text 'keep me'" {
		t.Errorf("unexpected reply: %q", got)
	}

	select {
	case <-done:
		t.Fatal("a vetoed frame must not end the session")
	default:
	}
}

func TestServerOutgoingInterceptor(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	server.Intercept(halyard.Outgoing, func(ctx context.Context, text string, connectionID string, s *testState) (string, bool) {
		if strings.Contains(text, "secret") {
			return "", false
		}
		return strings.ReplaceAll(text, "darn", "****"), true
	})
	echoRoute(server)

	conn := newMockConnection()
	serve(server, conn)

	conn.sendIncoming("@SAY #text 'secret'")
	conn.sendIncoming("@SAY #text 'darn it'")

	if got := conn.receiveOutgoing(t); got != "@ECHO #text '**** it'" {
		t.Errorf("unexpected reply: %q", got)
	}
	conn.expectNoOutgoing(t, 100*time.Millisecond)
}

func TestServerDisconnectRemovesFromRegistry(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	connected := make(chan string, 1)
	disconnected := make(chan string, 2)
	server.Route(halyard.ConnectedCommand, func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		connected <- p.Get(halyard.UUIDKey)
	})
	server.Route(halyard.DisconnectedCommand, func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		if err := d.Send("too late"); !errors.Is(err, halyard.ErrSessionClosed) {
			t.Errorf("expected ErrSessionClosed, got %v", err)
		}
		disconnected <- p.Get(halyard.UUIDKey)
	})

	conn := newMockConnection()
	done := serve(server, conn)

	id := receiveString(t, connected)
	conn.hangUp()
	waitDone(t, done)

	if got := receiveString(t, disconnected); got != id {
		t.Errorf("expected DISCONNECTED for %s, got %s", id, got)
	}
	if server.Registry().Has(id) {
		t.Error("expected connection to be removed from the registry")
	}

	select {
	case <-disconnected:
		t.Error("DISCONNECTED fired more than once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServerAddressedDelivery(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	connected := make(chan string, 2)
	server.Route(halyard.ConnectedCommand, func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		connected <- d.ID()
	})
	server.Route("TELL", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		if err := d.SendTo(p.Get("to"), halyard.Encode("TOLD", halyard.Params{"text": p.Get("text"), "from": d.ID()})); err != nil {
			t.Errorf("SendTo failed: %v", err)
		}
	})

	a := newMockConnection()
	serve(server, a)
	idA := receiveString(t, connected)

	b := newMockConnection()
	serve(server, b)
	idB := receiveString(t, connected)

	a.sendIncoming(halyard.Encode("TELL", halyard.Params{"to": idB, "text": "psst"}))

	told := halyard.Decode(b.receiveOutgoing(t))
	if told.Name != "TOLD" || told.Params.Get("text") != "psst" || told.Params.Get("from") != idA {
		t.Errorf("unexpected delivery: %s", spew.Sdump(told))
	}
	a.expectNoOutgoing(t, 100*time.Millisecond)
}

func TestServerSendToUnknownIsSilent(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	server.Route("TELL", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		if err := d.SendTo("nobody", "@HELLO"); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		_ = d.SendCommand("SENT", nil)
	})
	echoRoute(server)

	conn := newMockConnection()
	done := serve(server, conn)

	conn.sendIncoming("@TELL")
	if got := conn.receiveOutgoing(t); got != "@SENT" {
		t.Errorf("expected @SENT, got %q", got)
	}
	conn.sendIncoming("@PING")
	if got := conn.receiveOutgoing(t); got != "@PONG" {
		t.Errorf("expected @PONG, got %q", got)
	}

	select {
	case <-done:
		t.Fatal("session ended")
	default:
	}
}

func TestServerSendToFromOutside(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	connected := make(chan string, 1)
	server.Route(halyard.ConnectedCommand, func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		connected <- d.ID()
	})

	conn := newMockConnection()
	serve(server, conn)
	id := receiveString(t, connected)

	server.SendTo(id, "@NOTICE")
	if got := conn.receiveOutgoing(t); got != "@NOTICE" {
		t.Errorf("expected @NOTICE, got %q", got)
	}
}

func TestServerHandlersRunConcurrently(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	release := make(chan struct{})
	server.Route("SLOW", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		<-release
		_ = d.SendCommand("SLOW_DONE", nil)
	})
	echoRoute(server)

	slow := newMockConnection()
	serve(server, slow)
	other := newMockConnection()
	serve(server, other)

	slow.sendIncoming("@SLOW")
	slow.sendIncoming("@PING")
	other.sendIncoming("@PING")

	if got := slow.receiveOutgoing(t); got != "@PONG" {
		t.Errorf("a slow handler must not stall its own session, got %q", got)
	}
	if got := other.receiveOutgoing(t); got != "@PONG" {
		t.Errorf("a slow handler must not stall other sessions, got %q", got)
	}

	close(release)
	if got := slow.receiveOutgoing(t); got != "@SLOW_DONE" {
		t.Errorf("expected @SLOW_DONE, got %q", got)
	}
}

func TestServerConcurrentDispatchKeepsParamsApart(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	connected := make(chan string, 1)
	server.Route(halyard.ConnectedCommand, func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		connected <- p.Get(halyard.UUIDKey)
	})
	server.Route("TAG", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		p["owner"] = p.Get("n")
		runtime.Gosched()
		_ = d.SendCommand("TAGGED", p)
	})

	conn := newMockConnection()
	serve(server, conn)
	id := receiveString(t, connected)

	const count = 50
	go func() {
		for i := 0; i < count; i++ {
			n := strconv.Itoa(i)
			conn.sendIncoming(halyard.Encode("TAG", halyard.Params{"n": n, "k" + n: "v" + n}))
		}
	}()

	seen := map[string]bool{}
	for i := 0; i < count; i++ {
		reply := halyard.Decode(conn.receiveOutgoing(t))
		n := reply.Params.Get("n")
		want := halyard.Params{"n": n, "k" + n: "v" + n, "owner": n, halyard.UUIDKey: id}
		if reply.Name != "TAGGED" || !reflect.DeepEqual(reply.Params, want) {
			t.Fatalf("reply does not match its request:\n%s", spew.Sdump(reply))
		}
		if seen[n] {
			t.Fatalf("duplicate reply for %s", n)
		}
		seen[n] = true
	}
}

func TestServerHandlerPanicDoesNotEndSession(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	server.Route("BOOM", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		panic("boom")
	})
	echoRoute(server)

	conn := newMockConnection()
	serve(server, conn)

	conn.sendIncoming("@BOOM")
	conn.sendIncoming("@PING")
	if got := conn.receiveOutgoing(t); got != "@PONG" {
		t.Errorf("expected @PONG, got %q", got)
	}
}

func TestServerCloseFromHandler(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	server.Route("QUIT", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		_ = d.SendCommand("BYE", nil)
		d.Close(halyard.StatusPolicyViolation, "asked to leave")
	})

	conn := newMockConnection()
	done := serve(server, conn)

	conn.sendIncoming("@QUIT")
	if got := conn.receiveOutgoing(t); got != "@BYE" {
		t.Errorf("expected queued message to be flushed before close, got %q", got)
	}
	status, reason := conn.waitClosed(t)
	if status != halyard.StatusPolicyViolation || reason != "asked to leave" {
		t.Errorf("unexpected close: %v %q", status, reason)
	}
	waitDone(t, done)
}

func TestServerCloseEndsSessions(t *testing.T) {
	server := halyard.NewServer(&testState{})

	conn := newMockConnection()
	done := serve(server, conn)

	// wait for the session to be registered
	deadline := time.Now().Add(testTimeout)
	for server.Registry().Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	server.Close()
	status, _ := conn.waitClosed(t)
	if status != halyard.StatusGoingAway {
		t.Errorf("expected StatusGoingAway, got %v", status)
	}
	waitDone(t, done)
}

func TestServerRegisterAfterFreezePanics(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	conn := newMockConnection()
	serve(server, conn)
	server.SendTo("nobody", "@X")

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, halyard.ErrFrozen) {
			t.Errorf("expected ErrFrozen panic, got %v", r)
		}
	}()
	server.Route("LATE", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {})
}

func TestServerRouteInvalidHandlerPanics(t *testing.T) {
	server := halyard.NewServer(&testState{})

	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid handler")
		}
	}()
	server.Route("BAD", func() {})
}

func TestServerState(t *testing.T) {
	state := &testState{name: "lobby"}
	server := halyard.NewServer(state)

	if server.State() != state {
		t.Error("expected State to return the shared state")
	}
}

func TestServerServeHTTPNonWebSocket(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Expected websocket upgrade request") {
		t.Errorf("unexpected body: %q", rec.Body.String())
	}
}

func TestServerWebSocketEndToEnd(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()
	echoRoute(server)

	httpServer := httptest.NewServer(server)
	defer httpServer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, httpServer.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	if err := conn.Write(ctx, websocket.MessageText, []byte("@SAY #text 'over the wire'")); err != nil {
		t.Fatal(err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "@ECHO #text 'over the wire'" {
		t.Errorf("unexpected reply: %q", data)
	}
}

func TestServerOriginRestriction(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()
	server.SetOrigins([]string{"https://allowed.example.com"})

	httpServer := httptest.NewServer(server)
	defer httpServer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	_, _, err := websocket.Dial(ctx, httpServer.URL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example.com"}},
	})
	if err == nil {
		t.Error("expected dial from a disallowed origin to fail")
	}
}

func TestServerRouteNameInLayerContext(t *testing.T) {
	server := halyard.NewServer(&testState{})
	defer server.Close()

	server.Layer(halyard.NewLayer[*testState]("tag", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) (halyard.Params, bool) {
		return p.With("route", halyard.RouteName(ctx)), true
	}))
	server.Route("WHERE", func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		_ = d.SendCommand("HERE", halyard.Params{"route": p.Get("route")})
	})

	conn := newMockConnection()
	serve(server, conn)

	conn.sendIncoming("@WHERE")
	if got := conn.receiveOutgoing(t); got != "@HERE #route 'WHERE'" {
		t.Errorf("unexpected reply: %q", got)
	}
}

func TestServerCloseSendsGoingAwayOverWebSocket(t *testing.T) {
	server := halyard.NewServer(&testState{})

	connected := make(chan struct{}, 1)
	server.Route(halyard.ConnectedCommand, func(ctx context.Context, p halyard.Params, d *halyard.Dispatcher, s *testState) {
		connected <- struct{}{}
	})

	httpServer := httptest.NewServer(server)
	defer httpServer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, httpServer.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.CloseNow() }()

	select {
	case <-connected:
	case <-ctx.Done():
		t.Fatal("timed out waiting for CONNECTED")
	}

	server.Close()

	_, _, err = conn.Read(ctx)
	if status := websocket.CloseStatus(err); status != websocket.StatusGoingAway {
		t.Errorf("expected close status %v, got %v (%v)", websocket.StatusGoingAway, status, err)
	}
}
