package agent

import (
	"sync"
	"time"

	"github.com/NaqibAhmad/Biomni-frontend-sub000/internal/domain"
)

// TurnRecorder accumulates ordered log events for the lifetime of one
// query turn. At most one turn is open for appends at a time; starting
// a new turn discards an unfinished one without error, mirroring the
// UI behavior of clearing logs when a new query starts.
//
// Append keeps strict arrival order with no reordering and no
// deduplication: duplicate frames after a reconnect are appended
// as-is, because the backend provides no sequence numbers.
type TurnRecorder struct {
	mu         sync.Mutex
	turn       *domain.QueryTurn
	active     bool
	transcript *transcriptBuffer
}

// NewTurnRecorder creates a recorder whose transcript tail buffer
// holds transcriptSize bytes (0 for the default).
func NewTurnRecorder(transcriptSize int) *TurnRecorder {
	return &TurnRecorder{transcript: newTranscriptBuffer(transcriptSize)}
}

// StartTurn clears accumulated logs and opens a new pending turn.
func (r *TurnRecorder) StartTurn() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.turn = &domain.QueryTurn{
		Status:    domain.TurnPending,
		StartedAt: time.Now(),
	}
	r.active = true
	r.transcript.Reset()
}

// Append records one log event for the open turn. Events arriving
// with no open turn are dropped. Safe to call from the transport
// read callback; it never blocks beyond the internal mutex.
func (r *TurnRecorder) Append(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return
	}
	r.turn.Logs = append(r.turn.Logs, ev.Payload)
	r.turn.Status = domain.TurnStreaming
	r.transcript.WriteString(ev.Payload)
	r.transcript.WriteString("\n")
}

// Finalize freezes the open turn with the given outcome. A second
// finalize, or one with no open turn, is a no-op.
func (r *TurnRecorder) Finalize(status domain.TurnStatus, finalOutput string, isSolution bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return
	}
	r.turn.Status = status
	r.turn.FinalOutput = finalOutput
	r.turn.IsSolution = isSolution
	r.turn.FinishedAt = time.Now()
	r.active = false
}

// Active reports whether a turn is open for appends.
func (r *TurnRecorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Turn returns a snapshot of the current (or last finalized) turn.
func (r *TurnRecorder) Turn() domain.QueryTurn {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.turn == nil {
		return domain.QueryTurn{}
	}
	snapshot := *r.turn
	snapshot.Logs = append([]string(nil), r.turn.Logs...)
	return snapshot
}

// Logs returns a copy of the accumulated log lines.
func (r *TurnRecorder) Logs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.turn == nil {
		return nil
	}
	return append([]string(nil), r.turn.Logs...)
}

// Transcript returns the buffered tail of the concatenated log text.
func (r *TurnRecorder) Transcript() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcript.String()
}
