package domain

// StreamEventType enumerates the ordered events of a streamed answer.
// "thread" is always first; "done" or "error" is always last.
type StreamEventType string

const (
	EventThread    StreamEventType = "thread"
	EventStep      StreamEventType = "step"
	EventClarify   StreamEventType = "clarify"
	EventRetrieval StreamEventType = "retrieval"
	EventAnswer    StreamEventType = "answer"
	EventDone      StreamEventType = "done"
	EventError     StreamEventType = "error"
)

// StreamEvent is one element of the finite, ordered answer stream.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	ThreadID  string          `json:"thread_id,omitempty"`
	Step      *TraceStep      `json:"step,omitempty"`
	Clarify   string          `json:"clarify,omitempty"`
	Chunks    []ScoredChunk   `json:"chunks,omitempty"`
	Text      string          `json:"text,omitempty"`
	Done      *AgentAnswer    `json:"done,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	ErrorText string          `json:"error_text,omitempty"`
}
