package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/NaqibAhmad/Biomni-frontend-sub000/internal/domain"
	"github.com/NaqibAhmad/Biomni-frontend-sub000/internal/identity"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds client configuration.
type Config struct {
	// BackendURL is the backend base URL (http, https, ws or wss).
	BackendURL string

	// Tokens supplies the connection credential. A missing credential
	// is logged but does not block the attempt; the backend may reject
	// unauthenticated sockets itself.
	Tokens identity.TokenSource

	// Dialer opens the transport; defaults to DialWebSocket.
	Dialer Dialer

	ConnectTimeout      time.Duration
	ReconnectAttempts   int
	ReconnectBackoff    time.Duration
	ReconnectMaxBackoff time.Duration

	// IdleTimeout finalizes an active turn heuristically after the
	// stream has been idle this long. Zero disables the heuristic.
	IdleTimeout time.Duration

	// EventBuffer sizes the subscriber channel.
	EventBuffer int

	// TranscriptSize bounds the per-turn transcript tail buffer.
	TranscriptSize int
}

func (c Config) withDefaults() Config {
	if c.Dialer == nil {
		c.Dialer = DialWebSocket
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = 3
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = 1 * time.Second
	}
	if c.ReconnectMaxBackoff <= 0 {
		c.ReconnectMaxBackoff = 30 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	return c
}

// Client owns the lifecycle of one connection per logical session:
// connect, authenticate, queue-while-connecting, reconnect with
// backoff, disconnect. The Client is the sole owner of the transport;
// callers only ever hold the command surface (Connect, Send,
// Disconnect) and the event subscription.
//
// All transitions are serialized through the client's mutex. The
// transport has no compare-and-swap of its own, so correctness rests
// on never touching it from outside these entry points.
type Client struct {
	cfg       Config
	sessionID string

	mu    sync.Mutex
	state State
	tr    Transport

	// gen invalidates callbacks from superseded connections: every
	// new dial and every explicit disconnect bumps it, and stale
	// read-loop or dial completions are discarded.
	gen int

	// pending holds outbound frames queued while connecting. It is
	// only non-empty in StateConnecting and is flushed FIFO exactly
	// once on transition to StateOpen.
	pending [][]byte

	// connectDone is closed when the in-flight attempt settles;
	// connectErr carries the outcome. Joining an in-flight attempt
	// instead of dialing again is what makes Connect idempotent.
	connectDone chan struct{}
	connectErr  error

	attempts   int
	backoff    time.Duration
	retrying   bool
	retryTimer *time.Timer

	idleTimer *time.Timer

	turns  *TurnRecorder
	events chan domain.Event
}

// NewClient creates a client for one logical session. The connection
// is not opened until Connect.
func NewClient(sessionID string, cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:       cfg,
		sessionID: sessionID,
		state:     StateDisconnected,
		backoff:   cfg.ReconnectBackoff,
		turns:     NewTurnRecorder(cfg.TranscriptSize),
		events:    make(chan domain.Event, cfg.EventBuffer),
	}
}

// SessionID returns the session this client is bound to.
func (c *Client) SessionID() string {
	return c.sessionID
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events returns the subscription channel for decoded events and
// state changes. The channel is never closed; slow consumers drop
// events rather than block the read loop.
func (c *Client) Events() <-chan domain.Event {
	return c.events
}

// Turn returns a snapshot of the active (or last finalized) turn.
func (c *Client) Turn() domain.QueryTurn {
	return c.turns.Turn()
}

// TurnActive reports whether a query turn is currently accepting logs.
func (c *Client) TurnActive() bool {
	return c.turns.Active()
}

// Connect opens the connection for this session. It is idempotent:
// when already open it returns immediately, and while an attempt is
// in flight it joins that attempt instead of creating a second
// socket. A fresh attempt races against the connect timeout; on
// timeout the transport is forced closed and ErrConnectionTimeout is
// returned.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateOpen:
		c.mu.Unlock()
		return nil
	case StateConnecting:
		done := c.connectDone
		c.mu.Unlock()
		return c.awaitConnect(ctx, done)
	default:
	}

	c.stopRetryLocked()
	c.attempts = 0
	c.backoff = c.cfg.ReconnectBackoff
	c.retrying = false
	c.connectErr = nil
	done := make(chan struct{})
	c.connectDone = done
	c.gen++
	gen := c.gen
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	go c.dial(gen)

	return c.awaitConnect(ctx, done)
}

func (c *Client) awaitConnect(ctx context.Context, done chan struct{}) error {
	if done == nil {
		return c.stateError()
	}
	select {
	case <-done:
		c.mu.Lock()
		err := c.connectErr
		c.mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) stateError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateOpen {
		return nil
	}
	return ErrNotConnected
}

// dial runs one connection attempt outside the lock and reports the
// result through finishConnect.
func (c *Client) dial(gen int) {
	token := ""
	if c.cfg.Tokens != nil {
		t, err := c.cfg.Tokens.Token(context.Background())
		switch {
		case err != nil:
			slog.Warn("credential source failed, connecting unauthenticated",
				"session_id", c.sessionID, "error", err)
		case t == "":
			slog.Warn("no credential available, connecting unauthenticated",
				"session_id", c.sessionID)
		default:
			token = t
		}
	}

	endpoint, err := endpointURL(c.cfg.BackendURL, c.sessionID, token)
	if err != nil {
		c.finishConnect(gen, nil, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	tr, err := c.cfg.Dialer(ctx, endpoint)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w after %s: %v", ErrConnectionTimeout, c.cfg.ConnectTimeout, err)
		}
		c.finishConnect(gen, nil, err)
		return
	}
	c.finishConnect(gen, tr, nil)
}

// finishConnect applies the outcome of a dial attempt. Stale results
// (superseded by disconnect or a newer attempt) close the transport
// and are otherwise ignored.
func (c *Client) finishConnect(gen int, tr Transport, err error) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnecting {
		c.mu.Unlock()
		if tr != nil {
			_ = tr.Close(websocket.StatusNormalClosure, "superseded connection")
		}
		return
	}

	if err != nil {
		slog.Warn("connection attempt failed",
			"session_id", c.sessionID, "error", err, "retrying", c.retrying)
		if c.retrying {
			c.emitLocked(domain.Event{
				Kind:      domain.EventError,
				Code:      domain.CodeConnectionError,
				Payload:   err.Error(),
				Timestamp: time.Now(),
			})
			c.scheduleRetryLocked()
			c.mu.Unlock()
			return
		}
		c.pending = nil
		if c.turns.Active() {
			c.turns.Finalize(domain.TurnFailed, "", false)
		}
		c.connectErr = err
		c.settleConnectLocked()
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		return
	}

	c.tr = tr
	c.connectErr = nil
	c.attempts = 0
	c.backoff = c.cfg.ReconnectBackoff
	c.retrying = false

	// Flush frames queued while connecting, FIFO, exactly once.
	// Frames submitted during the flush land in pending and are
	// picked up by the same loop, preserving submission order.
	for len(c.pending) > 0 {
		data := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		sendErr := tr.Send(context.Background(), data)
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		if sendErr != nil {
			slog.Warn("flush of queued frame failed",
				"session_id", c.sessionID, "error", sendErr)
			c.emitLocked(domain.Event{
				Kind:      domain.EventError,
				Code:      domain.CodeSendFailure,
				Payload:   sendErr.Error(),
				Timestamp: time.Now(),
			})
		}
	}

	c.setStateLocked(StateOpen)
	c.settleConnectLocked()
	if c.turns.Active() {
		c.resetIdleLocked()
	}
	c.mu.Unlock()

	slog.Info("session connected", "session_id", c.sessionID)
	go c.readLoop(tr, gen)
}

// settleConnectLocked releases any Connect waiters with the current
// connectErr.
func (c *Client) settleConnectLocked() {
	if c.connectDone != nil {
		close(c.connectDone)
		c.connectDone = nil
	}
}

// Send submits a query. When open it transmits immediately; while
// connecting it queues the frame for the FIFO flush. In any other
// state it fails with ErrNotConnected and queues nothing, so callers
// never believe a dropped write was buffered. A new query is rejected
// with ErrTurnActive while a prior turn is still streaming.
func (c *Client) Send(ctx context.Context, req QueryRequest) error {
	data, err := json.Marshal(req.frame())
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}

	c.mu.Lock()
	switch c.state {
	case StateOpen:
		if c.turns.Active() {
			c.mu.Unlock()
			return ErrTurnActive
		}
		tr := c.tr
		c.turns.StartTurn()
		c.resetIdleLocked()
		c.mu.Unlock()

		if err := tr.Send(ctx, data); err != nil {
			c.mu.Lock()
			c.stopIdleLocked()
			c.turns.Finalize(domain.TurnFailed, "", false)
			c.mu.Unlock()
			return fmt.Errorf("send query: %w", err)
		}
		return nil

	case StateConnecting:
		// Queued submissions all join the same FIFO; the flush on open
		// preserves submission order, and their output streams into one
		// turn.
		if !c.turns.Active() {
			c.turns.StartTurn()
		}
		c.pending = append(c.pending, data)
		c.mu.Unlock()
		return nil

	default:
		c.mu.Unlock()
		return ErrNotConnected
	}
}

// CancelTurn abandons the active turn so a new query can be accepted.
func (c *Client) CancelTurn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.turns.Active() {
		return
	}
	c.stopIdleLocked()
	c.turns.Finalize(domain.TurnFailed, "", false)
	c.emitLocked(domain.Event{
		Kind:      domain.EventError,
		Code:      domain.CodeTurnFailed,
		Payload:   "turn cancelled",
		Timestamp: time.Now(),
	})
}

// Disconnect requests a normal closure, clears any queued frames,
// abandons pending reconnects, and resets the retry counters.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.stopRetryLocked()
	c.stopIdleLocked()
	c.gen++
	c.pending = nil
	c.attempts = 0
	c.backoff = c.cfg.ReconnectBackoff

	c.connectErr = ErrNotConnected
	c.settleConnectLocked()

	if c.turns.Active() {
		c.turns.Finalize(domain.TurnFailed, "", false)
		c.emitLocked(domain.Event{
			Kind:      domain.EventError,
			Code:      domain.CodeTurnFailed,
			Payload:   "disconnected before completion",
			Timestamp: time.Now(),
		})
	}

	tr := c.tr
	c.tr = nil
	if tr != nil {
		c.setStateLocked(StateClosing)
	}
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if tr != nil {
		_ = tr.Close(websocket.StatusNormalClosure, "client disconnect")
		slog.Info("session disconnected", "session_id", c.sessionID)
	}
}

// readLoop ingests inbound frames until the transport reports
// terminal closure.
func (c *Client) readLoop(tr Transport, gen int) {
	for {
		data, err := tr.Recv(context.Background())
		if err != nil {
			c.handleClosed(gen, err)
			return
		}
		if len(data) == 0 {
			continue
		}
		c.handleFrame(gen, data)
	}
}

func (c *Client) handleFrame(gen int, data []byte) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.resetIdleLocked()
	c.mu.Unlock()

	f, err := decodeFrame(data)
	if err != nil {
		// Malformed frames are visible but non-fatal: one bad frame
		// must not kill an otherwise healthy stream.
		slog.Warn("malformed inbound frame", "session_id", c.sessionID, "error", err)
		c.emit(domain.Event{
			Kind:      domain.EventError,
			Code:      domain.CodeParseError,
			Payload:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	ev := f.event()
	c.turns.Append(ev)
	if ev.Kind == domain.EventLog {
		c.emit(ev)
	}

	if f.IsComplete {
		c.mu.Lock()
		c.finalizeTurnLocked()
		c.mu.Unlock()
	}
}

// handleClosed classifies a transport closure and either schedules a
// reconnect (abnormal) or settles into a terminal state (normal).
func (c *Client) handleClosed(gen int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return // superseded by disconnect or a newer connection
	}

	c.stopIdleLocked()
	c.tr = nil

	code := closeStatus(err)
	if code == websocket.StatusNormalClosure {
		slog.Info("server closed session", "session_id", c.sessionID)
		if c.turns.Active() {
			c.turns.Finalize(domain.TurnFailed, "", false)
			c.emitLocked(domain.Event{
				Kind:      domain.EventError,
				Code:      domain.CodeTurnFailed,
				Payload:   "connection closed before completion",
				Timestamp: time.Now(),
			})
		}
		c.setStateLocked(StateClosed)
		return
	}

	closeErr := &CloseError{Code: code, Reason: err.Error()}
	slog.Warn("abnormal closure", "session_id", c.sessionID,
		"code", int(code), "error", err)
	c.emitLocked(domain.Event{
		Kind:      domain.EventError,
		Code:      domain.CodeAbnormalClosure,
		Payload:   closeErr.Error(),
		Timestamp: time.Now(),
	})

	// An active turn survives transient loss: recovery is transparent
	// and duplicate frames after resume are appended as-is.
	c.scheduleRetryLocked()
}

// scheduleRetryLocked arms the next reconnect attempt with doubling
// backoff, or surfaces ReconnectExhausted once the budget is spent.
func (c *Client) scheduleRetryLocked() {
	if c.attempts >= c.cfg.ReconnectAttempts {
		slog.Error("reconnect attempts exhausted",
			"session_id", c.sessionID, "attempts", c.attempts)
		c.pending = nil
		c.retrying = false
		c.connectErr = ErrReconnectExhausted
		c.settleConnectLocked()
		if c.turns.Active() {
			c.turns.Finalize(domain.TurnFailed, "", false)
		}
		c.emitLocked(domain.Event{
			Kind:      domain.EventError,
			Code:      domain.CodeReconnectExhausted,
			Payload:   ErrReconnectExhausted.Error(),
			Timestamp: time.Now(),
		})
		c.setStateLocked(StateDisconnected)
		return
	}

	c.attempts++
	delay := c.backoff
	c.backoff *= 2
	if c.backoff > c.cfg.ReconnectMaxBackoff {
		c.backoff = c.cfg.ReconnectMaxBackoff
	}

	c.retrying = true
	if c.connectDone == nil {
		c.connectDone = make(chan struct{})
	}
	c.setStateLocked(StateConnecting)

	slog.Info("scheduling reconnect", "session_id", c.sessionID,
		"attempt", c.attempts, "delay", delay)

	c.retryTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if !c.retrying || c.state != StateConnecting {
			c.mu.Unlock()
			return
		}
		c.gen++
		gen := c.gen
		c.mu.Unlock()
		c.dial(gen)
	})
}

func (c *Client) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.retrying = false
}

// finalizeTurnLocked completes the active turn, deriving the final
// output from the solution-block scan with log-line fallbacks.
func (c *Client) finalizeTurnLocked() {
	if !c.turns.Active() {
		return
	}
	c.stopIdleLocked()

	output, isSolution := resolveFinalOutput(c.turns.Transcript(), c.turns.Logs())
	c.turns.Finalize(domain.TurnCompleted, output, isSolution)
	c.emitLocked(domain.Event{
		Kind:       domain.EventCompletion,
		Payload:    output,
		IsSolution: isSolution,
		Timestamp:  time.Now(),
	})
}

// resetIdleLocked (re)arms the stream-idle heuristic while a turn is
// active.
func (c *Client) resetIdleLocked() {
	if c.cfg.IdleTimeout <= 0 || !c.turns.Active() {
		return
	}
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	gen := c.gen
	c.idleTimer = time.AfterFunc(c.cfg.IdleTimeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.gen || !c.turns.Active() {
			return
		}
		slog.Info("stream idle, finalizing turn heuristically",
			"session_id", c.sessionID, "idle", c.cfg.IdleTimeout)
		c.finalizeTurnLocked()
	})
}

func (c *Client) stopIdleLocked() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
}

// setStateLocked transitions the FSM and publishes the change.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.emitLocked(domain.Event{
		Kind:      domain.EventState,
		State:     s.String(),
		Timestamp: time.Now(),
	})
}

func (c *Client) emitLocked(ev domain.Event) {
	c.emit(ev)
}

// emit delivers an event without ever blocking the read loop; a full
// subscriber channel drops the event.
func (c *Client) emit(ev domain.Event) {
	select {
	case c.events <- ev:
	default:
		slog.Debug("event subscriber full, dropping event",
			"session_id", c.sessionID, "kind", string(ev.Kind))
	}
}
