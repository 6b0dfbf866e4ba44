package halyard

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/coder/websocket"
)

// Status represents a WebSocket close status code as defined in RFC 6455.
type Status = websocket.StatusCode

// WebSocket close status codes
const (
	StatusNormalClosure   Status = websocket.StatusNormalClosure   // 1000
	StatusGoingAway       Status = websocket.StatusGoingAway       // 1001
	StatusProtocolError   Status = websocket.StatusProtocolError   // 1002
	StatusUnsupportedData Status = websocket.StatusUnsupportedData // 1003
	StatusNoStatusRcvd    Status = websocket.StatusNoStatusRcvd    // 1005
	StatusAbnormalClosure Status = websocket.StatusAbnormalClosure // 1006
	StatusPolicyViolation Status = websocket.StatusPolicyViolation // 1008
	StatusMessageTooBig   Status = websocket.StatusMessageTooBig   // 1009
	StatusInternalError   Status = websocket.StatusInternalError   // 1011
	StatusServiceRestart  Status = websocket.StatusServiceRestart  // 1012
	StatusTryAgainLater   Status = websocket.StatusTryAgainLater   // 1013
)

// isCleanClose reports whether a read error is an ordinary end of the
// connection rather than a transport failure.
func isCleanClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled)
}
