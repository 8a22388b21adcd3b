package agent

import (
	"errors"
	"fmt"

	"github.com/coder/websocket"
)

var (
	// ErrConnectionTimeout means a connection attempt exceeded its
	// deadline. The caller may retry with a new Connect.
	ErrConnectionTimeout = errors.New("connection attempt timed out")

	// ErrNotConnected means a send was attempted with no usable
	// connection. The payload was not queued.
	ErrNotConnected = errors.New("not connected")

	// ErrReconnectExhausted means the automatic reconnect budget was
	// spent. No further attempts happen until an explicit Connect.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// ErrTurnActive means a query was submitted while a prior turn is
	// still streaming. Cancel the turn or wait for completion.
	ErrTurnActive = errors.New("query turn already active")
)

// CloseError reports a transport-level closure with its close code.
type CloseError struct {
	Code   websocket.StatusCode
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("connection closed: code=%d reason=%q", e.Code, e.Reason)
}

// Abnormal reports whether the closure is eligible for reconnection.
// Only the explicit normal-closure code counts as intentional.
func (e *CloseError) Abnormal() bool {
	return e.Code != websocket.StatusNormalClosure
}

// closeStatus extracts the close code from a read error, or -1 when
// the error carries none (treated as abnormal).
func closeStatus(err error) websocket.StatusCode {
	return websocket.CloseStatus(err)
}
