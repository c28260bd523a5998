package domain

// QueryType partitions incoming queries by retrieval strategy.
type QueryType string

const (
	QueryFactual       QueryType = "factual"
	QueryExplanatory   QueryType = "explanatory"
	QuerySummarization QueryType = "summarization"
	QuerySpecific      QueryType = "specific"
	QueryGeneral       QueryType = "general"
	QueryComparative   QueryType = "comparative"
)

// QueryClassification is derived fresh per query and has no persistent
// identity.
type QueryClassification struct {
	Type        QueryType    `json:"type"`
	DocumentRef *DocumentRef `json:"document_ref,omitempty"`
	KeyTerms    []string     `json:"key_terms,omitempty"`
	IsFollowUp  bool         `json:"is_follow_up,omitempty"`
}

// RetrievalConfig is a pure function of QueryClassification, looked up from a
// fixed table. Not stored.
type RetrievalConfig struct {
	TopK              int     `json:"top_k"`
	Threshold         float64 `json:"threshold"`
	UseQueryExpansion bool    `json:"use_query_expansion"`
}
