package ports

import (
	"context"
	"time"

	"github.com/asafonov/docqa/internal/core/domain"
)

// EmbeddingProvider turns text into vectors.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerationProvider turns prompts into text or streamed text fragments.
type GenerationProvider interface {
	Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (domain.Generation, error)
	// StreamGenerate emits ordered, finite fragments and closes the channel on
	// stream end or caller cancellation. Streams are not restartable.
	StreamGenerate(ctx context.Context, prompt string, opts domain.GenerateOptions) (<-chan domain.TextFragment, error)
}

// ChunkStore holds chunk records with vectors.
type ChunkStore interface {
	ScanAll(ctx context.Context) ([]domain.Chunk, error)
	ScanByDocuments(ctx context.Context, documentIDs []string) ([]domain.Chunk, error)
	TextSearch(ctx context.Context, query string, limit int) ([]domain.KeywordHit, error)
	ListDocuments(ctx context.Context) ([]domain.DocumentRef, error)
	SaveClusterAssignments(ctx context.Context, assignments []domain.ClusterAssignment) error
}

// PersistentCache is the networked key-value tier of the cache manager.
// Implementations report misses as (nil, false, nil).
type PersistentCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// Cache namespaces used by the core. Invalidation is namespace-wide.
const (
	CacheNamespaceEmbeddings = "embeddings"
	CacheNamespaceResults    = "results"
)

// QueryCache is the multi-tier cache shared across queries. It is never a
// hard dependency: an unavailable tier degrades to a miss and the caller
// recomputes.
type QueryCache interface {
	Get(ctx context.Context, namespace, id string) ([]byte, bool)
	Set(ctx context.Context, namespace, id string, value []byte, ttl time.Duration, hot bool)
	Invalidate(ctx context.Context, namespace string)
}

// ChatStore is the fire-and-forget persistence sink of the Persist step.
type ChatStore interface {
	CreateThread(ctx context.Context, userID string) (string, error)
	AddMessage(ctx context.Context, message domain.ChatMessage) error
	LogSearchQuery(ctx context.Context, entry domain.SearchLog) error
}

// Reranker is a pluggable cross-encoder scorer. The numeric output
// distribution is implementation-defined.
type Reranker interface {
	Score(ctx context.Context, query, text string) (float64, error)
}
