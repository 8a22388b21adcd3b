package domain

import (
	"time"
)

// EventKind categorizes decoded client events.
type EventKind string

const (
	// EventLog is one incremental output unit for the active turn.
	EventLog EventKind = "log"
	// EventCompletion marks the end of a turn; Payload carries the
	// final output.
	EventCompletion EventKind = "completion"
	// EventError is a non-fatal or terminal error; Code identifies it.
	EventError EventKind = "error"
	// EventState announces a connection state transition; State names
	// the new state.
	EventState EventKind = "state"
)

// Error codes carried by EventError events.
const (
	CodeParseError         = "ParseError"
	CodeConnectionError    = "ConnectionError"
	CodeAbnormalClosure    = "AbnormalClosure"
	CodeReconnectExhausted = "ReconnectExhausted"
	CodeSendFailure        = "SendFailure"
	CodeTurnFailed         = "TurnFailed"
)

// Event is one decoded inbound frame or client-side notification.
// Events are transient: they are consumed by subscribers and the log
// aggregator, then discarded.
type Event struct {
	Kind    EventKind
	Payload string
	Code    string
	Step    int
	State   string
	// IsSolution is set on completion events whose payload came from
	// a delimited solution block.
	IsSolution bool
	Timestamp  time.Time
}
