package domain

// StepKind enumerates the orchestrator trace step variants.
type StepKind string

const (
	StepQueryAnalysis StepKind = "query_analysis"
	StepFollowUp      StepKind = "follow_up"
	StepClarify       StepKind = "clarify"
	StepRetrieval     StepKind = "retrieval"
	StepFallback      StepKind = "fallback"
	StepExpansion     StepKind = "expansion"
	StepAnswer        StepKind = "answer"
	StepPersist       StepKind = "persist"
)

// TraceStep is a tagged union of step-event variants with fixed payload
// shapes. Exactly one payload field matches Kind.
type TraceStep struct {
	Kind          StepKind           `json:"kind"`
	QueryAnalysis *QueryAnalysisStep `json:"query_analysis,omitempty"`
	FollowUp      *FollowUpStep      `json:"follow_up,omitempty"`
	Clarify       *ClarifyStep       `json:"clarify,omitempty"`
	Retrieval     *RetrievalStep     `json:"retrieval,omitempty"`
	Fallback      *FallbackStep      `json:"fallback,omitempty"`
	Expansion     *ExpansionStep     `json:"expansion,omitempty"`
	Answer        *AnswerStep        `json:"answer,omitempty"`
	Persist       *PersistStep       `json:"persist,omitempty"`
}

type QueryAnalysisStep struct {
	Query       string       `json:"query"`
	Type        QueryType    `json:"type"`
	Threshold   float64      `json:"threshold"`
	DocumentRef *DocumentRef `json:"document_ref,omitempty"`
	KeyTerms    []string     `json:"key_terms,omitempty"`
}

type FollowUpStep struct {
	Original string `json:"original"`
	Resolved string `json:"resolved"`
	Accepted bool   `json:"accepted"`
}

type ClarifyStep struct {
	Question string `json:"question"`
}

type RetrievalStep struct {
	Mode       string  `json:"mode"`
	ChunkCount int     `json:"chunk_count"`
	TopScore   float64 `json:"top_score"`
	Threshold  float64 `json:"threshold"`
	Reranked   bool    `json:"reranked,omitempty"`
	FromCache  bool    `json:"from_cache,omitempty"`
}

type FallbackStep struct {
	Stage      string `json:"stage"`
	ChunkCount int    `json:"chunk_count"`
}

type ExpansionStep struct {
	ExpandedQuery string  `json:"expanded_query"`
	TopScore      float64 `json:"top_score"`
	Accepted      bool    `json:"accepted"`
}

type AnswerStep struct {
	Confidence         float64 `json:"confidence"`
	ContextChunks      int     `json:"context_chunks"`
	IsGeneralKnowledge bool    `json:"is_general_knowledge,omitempty"`
	TokensUsed         int     `json:"tokens_used,omitempty"`
}

type PersistStep struct {
	ThreadID string `json:"thread_id"`
	Logged   bool   `json:"logged"`
}
