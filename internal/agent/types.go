// Package agent implements the realtime query-streaming client for
// the Biomni backend agent: one duplex WebSocket per session, queued
// and flushed outbound queries, incremental log ingestion, completion
// detection, and transparent reconnection with capped backoff.
package agent

// QueryRequest is one user-issued prompt. It is immutable once
// submitted; exactly one query turn is created per accepted request.
type QueryRequest struct {
	Prompt             string
	SelfCritic         bool
	TestTimeScaleRound int
	Model              string
	Source             string
}

// queryFrame is the outbound wire format understood by the backend.
type queryFrame struct {
	Message            string `json:"message"`
	SelfCritic         bool   `json:"self_critic"`
	UseToolRetriever   bool   `json:"use_tool_retriever"`
	TestTimeScaleRound int    `json:"test_time_scale_round,omitempty"`
	Model              string `json:"model,omitempty"`
	Source             string `json:"source,omitempty"`
}

func (r QueryRequest) frame() queryFrame {
	return queryFrame{
		Message:            r.Prompt,
		SelfCritic:         r.SelfCritic,
		UseToolRetriever:   true,
		TestTimeScaleRound: r.TestTimeScaleRound,
		Model:              r.Model,
		Source:             r.Source,
	}
}
