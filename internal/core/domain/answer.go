package domain

import "time"

// AnswerRequest is the inbound contract for one question.
type AnswerRequest struct {
	Query    string        `json:"query"`
	UserID   string        `json:"user_id"`
	ThreadID string        `json:"thread_id,omitempty"`
	History  []ChatMessage `json:"history,omitempty"`
	Scope    []string      `json:"scope,omitempty"`
	Rerank   bool          `json:"rerank,omitempty"`
}

// AgentAnswer is the final result of the orchestrator state machine.
type AgentAnswer struct {
	Answer        string         `json:"answer"`
	Clarification string         `json:"clarification,omitempty"`
	Chunks        []ScoredChunk  `json:"chunks"`
	Confidence    float64        `json:"confidence"`
	Sources       []DocumentRef  `json:"sources"`
	Trace         []TraceStep    `json:"trace"`
	Metadata      AnswerMetadata `json:"metadata"`
}

type AnswerMetadata struct {
	ThreadID           string    `json:"thread_id"`
	QueryType          QueryType `json:"query_type"`
	IsGeneralKnowledge bool      `json:"is_general_knowledge,omitempty"`
	Reranked           bool      `json:"reranked,omitempty"`
	Expanded           bool      `json:"expanded,omitempty"`
	FromCache          bool      `json:"from_cache,omitempty"`
	FallbackUsed       string    `json:"fallback_used,omitempty"`
	TokensUsed         int       `json:"tokens_used,omitempty"`
	DurationMS         float64   `json:"duration_ms"`
}

// ChatMessage is one turn persisted through the chat store.
type ChatMessage struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchLog is the analytics record of one answered query.
type SearchLog struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ThreadID   string    `json:"thread_id"`
	Query      string    `json:"query"`
	QueryType  QueryType `json:"query_type"`
	ChunkCount int       `json:"chunk_count"`
	Confidence float64   `json:"confidence"`
	DurationMS float64   `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// GenerateOptions tunes a single generation call.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
	JSON        bool
}

// Generation is the non-streamed output of the generation provider.
type Generation struct {
	Text       string
	TokensUsed int
}

// TextFragment is one ordered piece of a streamed generation. A fragment with
// Err set terminates the stream.
type TextFragment struct {
	Text string
	Err  error
}

// ConfidenceConfig carries the confidence weighting and floor corrections.
// The floors encode product judgment, so they stay configurable.
type ConfidenceConfig struct {
	TopWeight        float64
	AvgTop3Weight    float64
	CountWeight      float64
	DiversityWeight  float64
	HighRelevanceBar float64
	TopFloorScore    float64
	TopFloorValue    float64
}

func DefaultConfidenceConfig() ConfidenceConfig {
	return ConfidenceConfig{
		TopWeight:        0.40,
		AvgTop3Weight:    0.30,
		CountWeight:      0.20,
		DiversityWeight:  0.10,
		HighRelevanceBar: 0.70,
		TopFloorScore:    0.80,
		TopFloorValue:    75,
	}
}
