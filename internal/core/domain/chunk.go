package domain

// Chunk is a bounded span of a source document's text together with its
// embedding. Chunks are owned by the chunk store and immutable once written.
type Chunk struct {
	ID           string    `json:"chunk_id"`
	DocumentID   string    `json:"document_id"`
	DocumentName string    `json:"document_name"`
	Content      string    `json:"content"`
	Embedding    []float32 `json:"-"`
	ChunkIndex   int       `json:"chunk_index"`
	StartOffset  int       `json:"start_offset"`
	EndOffset    int       `json:"end_offset"`
}

/// ScoredChunk is a per-query view of a chunk. Score is the cosine similarity
// to the query; hybrid retrieval orders by fused rank but carries similarity
// so thresholds stay on one scale. Never persisted.
type ScoredChunk struct {
	Chunk
	Score         float64 `json:"score"`
	LowConfidence bool    `json:"low_confidence,omitempty"`
}

// DocumentRef identifies a document by id and display name.
type DocumentRef struct {
	ID   string `json:"document_id"`
	Name string `json:"document_name"`
}

// KeywordHit is a lexical search result before the chunk is materialized.
type KeywordHit struct {
	ChunkID string
	Score   float64
}

// ClusterAssignment labels a document with the cluster it was assigned to.
// Recomputed on demand, never incrementally updated.
type ClusterAssignment struct {
	DocumentID string `json:"document_id"`
	ClusterID  int    `json:"cluster_id"`
}
