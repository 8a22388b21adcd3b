package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/NaqibAhmad/Biomni-frontend-sub000/internal/domain"
)

// frame is one inbound message from the backend agent.
type frame struct {
	SessionID  string `json:"session_id"`
	Output     string `json:"output"`
	Step       int    `json:"step"`
	IsComplete bool   `json:"is_complete"`
	Timestamp  string `json:"timestamp"`
}

// decodeFrame parses a raw inbound frame. A parse failure is not
// fatal to the connection; callers surface it as a ParseError event
// and keep reading.
func decodeFrame(data []byte) (*frame, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &f, nil
}

// event converts the frame into the caller-facing event form.
// is_complete=true is the only authoritative completion signal from
// the transport; everything else is a plain log event.
func (f *frame) event() domain.Event {
	kind := domain.EventLog
	if f.IsComplete {
		kind = domain.EventCompletion
	}
	return domain.Event{
		Kind:      kind,
		Payload:   f.Output,
		Step:      f.Step,
		Timestamp: f.time(),
	}
}

// time parses the frame timestamp, falling back to arrival time when
// the backend sends something unparseable.
func (f *frame) time() time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, f.Timestamp); err == nil {
			return ts
		}
	}
	return time.Now()
}
