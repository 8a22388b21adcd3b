package agent

import (
	"context"
	"fmt"
	"net/url"
	"path"

	"github.com/coder/websocket"
)

// maxFrameSize bounds inbound frames; agent log lines are small but
// tool output embedded in them can run long.
const maxFrameSize = 1 << 20 // 1MB

// Transport wraps one duplex, message-oriented connection to the
// backend. Implementations report terminal closure from Recv with an
// error whose close code classifies the closure.
type Transport interface {
	// Recv blocks until the next inbound frame or terminal closure.
	Recv(ctx context.Context) ([]byte, error)

	// Send transmits one outbound frame.
	Send(ctx context.Context, data []byte) error

	// Close terminates the connection with the given close code.
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens a Transport to the given endpoint URL. The client
// accepts any Dialer so the connection state machine is testable
// without a real socket.
type Dialer func(ctx context.Context, endpoint string) (Transport, error)

// DialWebSocket is the production Dialer.
func DialWebSocket(ctx context.Context, endpoint string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	conn.SetReadLimit(maxFrameSize)
	return &wsTransport{conn: conn}, nil
}

// wsTransport adapts websocket.Conn to Transport.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Recv(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) Send(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close(code websocket.StatusCode, reason string) error {
	return t.conn.Close(code, reason)
}

// endpointURL derives the per-session WebSocket endpoint from the
// backend base URL. The credential travels as a query parameter; the
// backend does not use an in-band auth frame.
func endpointURL(base, sessionID, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse backend url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported backend scheme %q", u.Scheme)
	}

	u.Path = path.Join(u.Path, "chat", "ws", sessionID)

	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}
