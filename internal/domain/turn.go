package domain

import (
	"time"
)

// TurnStatus tracks the lifecycle of a single query turn as observed
// by the client.
type TurnStatus string

const (
	// TurnPending means the query was submitted and no output has
	// arrived yet.
	TurnPending TurnStatus = "pending"
	// TurnStreaming means at least one log frame has arrived.
	TurnStreaming TurnStatus = "streaming"
	// TurnCompleted means a completion signal was seen (explicit flag
	// or idle heuristic) and FinalOutput is populated.
	TurnCompleted TurnStatus = "completed"
	// TurnFailed means the turn ended without a completion signal.
	TurnFailed TurnStatus = "failed"
)

// QueryTurn is the server-side processing of one query request, as
// observed by the client. Logs are append-only in arrival order;
// duplicate frames after a reconnect are appended as-is because the
// backend provides no sequence numbers to dedupe on.
type QueryTurn struct {
	Logs        []string
	Status      TurnStatus
	FinalOutput string
	// IsSolution is true when FinalOutput was extracted from a
	// delimited solution block rather than a fallback log line.
	IsSolution bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Done reports whether the turn reached a terminal status.
func (t *QueryTurn) Done() bool {
	return t.Status == TurnCompleted || t.Status == TurnFailed
}
