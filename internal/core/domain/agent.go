package domain

import "time"

// AgentLimits bounds the orchestrator state machine. Zero values fall back to
// defaults in the use case constructor.
type AgentLimits struct {
	ContextChunkLimit int

	// Threshold for the vector-only fallback retry after empty retrieval.
	FallbackThreshold float64

	// Top similarity below which a one-shot query expansion is attempted.
	LowConfidenceTopScore float64

	// Expansion retries run at the original threshold scaled by this ratio.
	ExpansionThresholdRatio float64

	// Rewrites longer than this are rejected and the original query kept.
	FollowUpMaxChars int

	// Queries with at most this many words may trigger a clarify step.
	ClarifyMaxWords int

	// Timeout for auxiliary provider calls (rewrite, clarify, expansion).
	StepTimeout time.Duration

	ResultCacheTTL time.Duration

	GeneralKnowledgeConfidence float64

	Confidence ConfidenceConfig
}
