package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/NaqibAhmad/Biomni-frontend-sub000/internal/domain"
)

// fakeTransport scripts inbound frames and closures for the client
// state machine without a real socket.
type fakeTransport struct {
	mu      sync.Mutex
	sent    [][]byte
	sendErr error

	frames chan []byte
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		frames: make(chan []byte, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (t *fakeTransport) Recv(ctx context.Context) ([]byte, error) {
	select {
	case data := <-t.frames:
		return data, nil
	case err := <-t.errs:
		return nil, err
	case <-t.closed:
		return nil, errors.New("use of closed connection")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *fakeTransport) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) Close(code websocket.StatusCode, reason string) error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

func (t *fakeTransport) sentFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.sent...)
}

func (t *fakeTransport) pushFrame(s string) {
	t.frames <- []byte(s)
}

func testConfig(dialer Dialer) Config {
	return Config{
		BackendURL:          "http://localhost:8000",
		Dialer:              dialer,
		ConnectTimeout:      time.Second,
		ReconnectAttempts:   3,
		ReconnectBackoff:    time.Millisecond,
		ReconnectMaxBackoff: 10 * time.Millisecond,
	}
}

func waitEvent(t *testing.T, c *Client, pred func(domain.Event) bool) domain.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if pred(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
			return domain.Event{}
		}
	}
}

func waitState(t *testing.T, c *Client, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", c.State(), want)
}

func TestConnectIdempotent(t *testing.T) {
	tr := newFakeTransport()
	var dials int32
	c := NewClient("s1", testConfig(func(ctx context.Context, endpoint string) (Transport, error) {
		atomic.AddInt32(&dials, 1)
		return tr, nil
	}))
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if n := atomic.LoadInt32(&dials); n != 1 {
		t.Errorf("dials = %d, want 1", n)
	}
	if c.State() != StateOpen {
		t.Errorf("state = %v, want open", c.State())
	}
}

func TestConnectConcurrentSharesAttempt(t *testing.T) {
	tr := newFakeTransport()
	gate := make(chan struct{})
	var dials int32
	c := NewClient("s1", testConfig(func(ctx context.Context, endpoint string) (Transport, error) {
		atomic.AddInt32(&dials, 1)
		<-gate
		return tr, nil
	}))
	defer c.Disconnect()

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- c.Connect(context.Background()) }()
	}

	waitState(t, c, StateConnecting)
	close(gate)

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("connect: %v", err)
		}
	}
	if n := atomic.LoadInt32(&dials); n != 1 {
		t.Errorf("dials = %d, want 1", n)
	}
}

func TestSendNotConnected(t *testing.T) {
	c := NewClient("s1", testConfig(func(ctx context.Context, endpoint string) (Transport, error) {
		t.Fatal("dial should not happen")
		return nil, nil
	}))

	err := c.Send(context.Background(), QueryRequest{Prompt: "q"})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
	if c.TurnActive() {
		t.Error("failed send must not open a turn")
	}
}

func TestQueuedSendsFlushInOrder(t *testing.T) {
	tr := newFakeTransport()
	gate := make(chan struct{})
	c := NewClient("s1", testConfig(func(ctx context.Context, endpoint string) (Transport, error) {
		<-gate
		return tr, nil
	}))
	defer c.Disconnect()

	connectErr := make(chan error, 1)
	go func() { connectErr <- c.Connect(context.Background()) }()
	waitState(t, c, StateConnecting)

	for i := 0; i < 3; i++ {
		if err := c.Send(context.Background(), QueryRequest{Prompt: fmt.Sprintf("q%d", i)}); err != nil {
			t.Fatalf("queued send %d: %v", i, err)
		}
	}

	close(gate)
	if err := <-connectErr; err != nil {
		t.Fatalf("connect: %v", err)
	}

	sent := tr.sentFrames()
	if len(sent) != 3 {
		t.Fatalf("len(sent) = %d, want 3", len(sent))
	}
	for i, data := range sent {
		var f queryFrame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("unmarshal sent frame: %v", err)
		}
		if want := fmt.Sprintf("q%d", i); f.Message != want {
			t.Errorf("sent[%d].message = %q, want %q", i, f.Message, want)
		}
		if !f.UseToolRetriever {
			t.Errorf("sent[%d] missing use_tool_retriever", i)
		}
	}
}

func TestFailedConnectClearsQueue(t *testing.T) {
	gate := make(chan struct{})
	c := NewClient("s1", testConfig(func(ctx context.Context, endpoint string) (Transport, error) {
		<-gate
		return nil, errors.New("refused")
	}))

	connectErr := make(chan error, 1)
	go func() { connectErr <- c.Connect(context.Background()) }()
	waitState(t, c, StateConnecting)

	if err := c.Send(context.Background(), QueryRequest{Prompt: "q"}); err != nil {
		t.Fatalf("queued send: %v", err)
	}

	close(gate)
	if err := <-connectErr; err == nil {
		t.Fatal("connect should fail")
	}

	// The queue must not survive the failed attempt.
	if err := c.Send(context.Background(), QueryRequest{Prompt: "later"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("send after failed connect: %v, want ErrNotConnected", err)
	}
}

func TestSendRejectedWhileTurnActive(t *testing.T) {
	tr := newFakeTransport()
	c := NewClient("s1", testConfig(func(ctx context.Context, endpoint string) (Transport, error) {
		return tr, nil
	}))
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Send(context.Background(), QueryRequest{Prompt: "first"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := c.Send(context.Background(), QueryRequest{Prompt: "second"}); !errors.Is(err, ErrTurnActive) {
		t.Errorf("err = %v, want ErrTurnActive", err)
	}

	c.CancelTurn()
	if err := c.Send(context.Background(), QueryRequest{Prompt: "third"}); err != nil {
		t.Errorf("send after cancel: %v", err)
	}
}

func TestMalformedFrameKeepsStreaming(t *testing.T) {
	tr := newFakeTransport()
	c := NewClient("s1", testConfig(func(ctx context.Context, endpoint string) (Transport, error) {
		return tr, nil
	}))
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Send(context.Background(), QueryRequest{Prompt: "q"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	tr.pushFrame("this is not json")
	waitEvent(t, c, func(ev domain.Event) bool {
		return ev.Kind == domain.EventError && ev.Code == domain.CodeParseError
	})

	tr.pushFrame(`{"output":"still alive","step":1}`)
	ev := waitEvent(t, c, func(ev domain.Event) bool { return ev.Kind == domain.EventLog })
	if ev.Payload != "still alive" {
		t.Errorf("payload = %q", ev.Payload)
	}
	if c.State() != StateOpen {
		t.Errorf("state = %v, want open after malformed frame", c.State())
	}
}

func TestCompletionFinalizesTurn(t *testing.T) {
	tr := newFakeTransport()
	c := NewClient("s1", testConfig(func(ctx context.Context, endpoint string) (Transport, error) {
		return tr, nil
	}))
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Send(context.Background(), QueryRequest{Prompt: "q"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	tr.pushFrame(`{"output":"analyzing data","step":1}`)
	tr.pushFrame(`{"output":"<solution>Gene X is upregulated.</solution>","step":2,"is_complete":true}`)

	ev := waitEvent(t, c, func(ev domain.Event) bool { return ev.Kind == domain.EventCompletion })
	if !ev.IsSolution {
		t.Error("completion should carry a solution")
	}
	if ev.Payload != "Gene X is upregulated." {
		t.Errorf("payload = %q", ev.Payload)
	}

	turn := c.Turn()
	if turn.Status != domain.TurnCompleted {
		t.Errorf("turn status = %v, want completed", turn.Status)
	}
	if len(turn.Logs) != 2 {
		t.Errorf("len(logs) = %d, want 2", len(turn.Logs))
	}
	if c.TurnActive() {
		t.Error("turn still active after completion")
	}
}

func TestIdleTimeoutFinalizesHeuristically(t *testing.T) {
	tr := newFakeTransport()
	cfg := testConfig(func(ctx context.Context, endpoint string) (Transport, error) {
		return tr, nil
	})
	cfg.IdleTimeout = 30 * time.Millisecond
	c := NewClient("s1", cfg)
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Send(context.Background(), QueryRequest{Prompt: "q"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	// The backend stalls without ever setting is_complete.
	tr.pushFrame(`{"output":"<solution>Stalled but solved.</solution>","step":1}`)

	ev := waitEvent(t, c, func(ev domain.Event) bool { return ev.Kind == domain.EventCompletion })
	if !ev.IsSolution || ev.Payload != "Stalled but solved." {
		t.Errorf("completion = (%q, %v)", ev.Payload, ev.IsSolution)
	}
	if c.Turn().Status != domain.TurnCompleted {
		t.Errorf("turn status = %v, want completed", c.Turn().Status)
	}
}

func TestNormalClosureDoesNotReconnect(t *testing.T) {
	tr := newFakeTransport()
	var dials int32
	c := NewClient("s1", testConfig(func(ctx context.Context, endpoint string) (Transport, error) {
		atomic.AddInt32(&dials, 1)
		return tr, nil
	}))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	tr.errs <- websocket.CloseError{Code: websocket.StatusNormalClosure, Reason: "done"}
	waitState(t, c, StateClosed)

	time.Sleep(20 * time.Millisecond)
	if n := atomic.LoadInt32(&dials); n != 1 {
		t.Errorf("dials = %d, want 1 (no reconnect on normal closure)", n)
	}
}

func TestAbnormalClosureReconnects(t *testing.T) {
	tr1 := newFakeTransport()
	tr2 := newFakeTransport()
	var dials int32
	c := NewClient("s1", testConfig(func(ctx context.Context, endpoint string) (Transport, error) {
		if atomic.AddInt32(&dials, 1) == 1 {
			return tr1, nil
		}
		return tr2, nil
	}))
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Send(context.Background(), QueryRequest{Prompt: "q"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	tr1.errs <- websocket.CloseError{Code: websocket.StatusInternalError, Reason: "backend restart"}

	waitEvent(t, c, func(ev domain.Event) bool {
		return ev.Kind == domain.EventError && ev.Code == domain.CodeAbnormalClosure
	})
	waitState(t, c, StateOpen)

	if n := atomic.LoadInt32(&dials); n != 2 {
		t.Errorf("dials = %d, want 2", n)
	}
	if !c.TurnActive() {
		t.Error("active turn should survive an in-budget reconnect")
	}

	// The resumed stream keeps feeding the same turn.
	tr2.pushFrame(`{"output":"resumed","step":2}`)
	ev := waitEvent(t, c, func(ev domain.Event) bool { return ev.Kind == domain.EventLog })
	if ev.Payload != "resumed" {
		t.Errorf("payload = %q", ev.Payload)
	}
}

func TestReconnectExhausted(t *testing.T) {
	tr := newFakeTransport()
	var dials int32
	cfg := testConfig(func(ctx context.Context, endpoint string) (Transport, error) {
		if atomic.AddInt32(&dials, 1) == 1 {
			return tr, nil
		}
		return nil, errors.New("refused")
	})
	cfg.ReconnectAttempts = 2
	c := NewClient("s1", cfg)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Send(context.Background(), QueryRequest{Prompt: "q"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	tr.errs <- websocket.CloseError{Code: websocket.StatusInternalError, Reason: "gone"}

	waitEvent(t, c, func(ev domain.Event) bool {
		return ev.Kind == domain.EventError && ev.Code == domain.CodeReconnectExhausted
	})
	waitState(t, c, StateDisconnected)

	if n := atomic.LoadInt32(&dials); n != 3 {
		t.Errorf("dials = %d, want 3 (initial + 2 retries)", n)
	}
	if c.Turn().Status != domain.TurnFailed {
		t.Errorf("turn status = %v, want failed", c.Turn().Status)
	}
	if err := c.Send(context.Background(), QueryRequest{Prompt: "q2"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("send after exhaustion: %v, want ErrNotConnected", err)
	}
}

func TestDisconnectCancelsRetry(t *testing.T) {
	tr := newFakeTransport()
	var dials int32
	cfg := testConfig(func(ctx context.Context, endpoint string) (Transport, error) {
		atomic.AddInt32(&dials, 1)
		return tr, nil
	})
	cfg.ReconnectBackoff = time.Hour
	cfg.ReconnectMaxBackoff = time.Hour
	c := NewClient("s1", cfg)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	tr.errs <- websocket.CloseError{Code: websocket.StatusInternalError, Reason: "gone"}
	waitState(t, c, StateConnecting)

	c.Disconnect()
	waitState(t, c, StateDisconnected)

	time.Sleep(20 * time.Millisecond)
	if n := atomic.LoadInt32(&dials); n != 1 {
		t.Errorf("dials = %d, want 1 (disconnect must cancel the pending retry)", n)
	}
}

func TestDisconnectFailsActiveTurn(t *testing.T) {
	tr := newFakeTransport()
	c := NewClient("s1", testConfig(func(ctx context.Context, endpoint string) (Transport, error) {
		return tr, nil
	}))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Send(context.Background(), QueryRequest{Prompt: "q"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	c.Disconnect()

	if c.Turn().Status != domain.TurnFailed {
		t.Errorf("turn status = %v, want failed", c.Turn().Status)
	}
	select {
	case <-tr.closed:
	default:
		t.Error("transport not closed on disconnect")
	}
}

func TestSendFailureFailsTurn(t *testing.T) {
	tr := newFakeTransport()
	tr.sendErr = errors.New("broken pipe")
	c := NewClient("s1", testConfig(func(ctx context.Context, endpoint string) (Transport, error) {
		return tr, nil
	}))
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := c.Send(context.Background(), QueryRequest{Prompt: "q"}); err == nil {
		t.Fatal("send should fail")
	}
	if c.TurnActive() {
		t.Error("turn should be finalized after send failure")
	}
	if c.Turn().Status != domain.TurnFailed {
		t.Errorf("turn status = %v, want failed", c.Turn().Status)
	}
}
