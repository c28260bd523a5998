package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/asafonov/docqa/internal/core/domain"
	"github.com/asafonov/docqa/internal/core/ports"
)

const (
	// Relaxed pre-filter applied during the cosine scan; final filtering
	// happens after fusion.
	vectorPrefilterRatio = 0.8

	keywordCandidateFloor = 30
	keywordCandidateMult  = 6

	rerankBlendRatio = 0.9

	embeddingCacheTTL = 24 * time.Hour
)

// RetrieveOptions tunes one retrieval call.
type RetrieveOptions struct {
	Rerank bool
}

// RetrievalResult is the output of one hybrid or vector retrieval pass.
type RetrievalResult struct {
	Chunks   []domain.ScoredChunk `json:"chunks"`
	TopScore float64              `json:"top_score"`
	Reranked bool                 `json:"reranked"`
}

// RetrievalEngine runs parallel vector and keyword search, fuses the rankings
// with weighted RRF, deduplicates per document, and optionally reranks.
type RetrievalEngine struct {
	embedder ports.EmbeddingProvider
	store    ports.ChunkStore
	reranker ports.Reranker
	cache    ports.QueryCache
	logger   *slog.Logger
	rrfK     int
}

func NewRetrievalEngine(
	embedder ports.EmbeddingProvider,
	store ports.ChunkStore,
	reranker ports.Reranker,
	cacheManager ports.QueryCache,
	logger *slog.Logger,
) *RetrievalEngine {
	return &RetrievalEngine{
		embedder: embedder,
		store:    store,
		reranker: reranker,
		cache:    cacheManager,
		logger:   logger,
		rrfK:     defaultRRFK,
	}
}

// Retrieve executes the hybrid path: cosine scan and keyword search over the
// same corpus, RRF fusion for ordering, dedup, optional rerank, and a final
// similarity-threshold filter.
func (e *RetrievalEngine) Retrieve(
	ctx context.Context,
	query string,
	cls domain.QueryClassification,
	cfg domain.RetrievalConfig,
	scope []string,
	opts RetrieveOptions,
) (*RetrievalResult, error) {
	corpus, err := e.loadCorpus(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(corpus) == 0 {
		return &RetrievalResult{}, nil
	}

	queryVector, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	vectorHits, err := e.scoreCorpus(ctx, queryVector, corpus, cfg.Threshold*vectorPrefilterRatio)
	if err != nil {
		return nil, err
	}

	keywordHits, err := e.keywordSearch(ctx, query, cfg.TopK, corpus)
	if err != nil {
		e.logger.Warn("keyword_search_failed", "error", err)
		keywordHits = nil
	}

	vectorWeight, keywordWeight := fusionWeights(cls.Type)
	fused := fuseRRF(vectorHits, keywordHits, vectorWeight, keywordWeight, e.rrfK)

	// Fusion decides the order; the carried score goes back to cosine
	// similarity so thresholds and confidence stay on one scale.
	restoreSimilarity(fused, queryVector, vectorHits)
	fused = dedupByDocument(fused, hybridMaxChunksPerDoc)

	reranked := false
	if opts.Rerank && e.reranker != nil {
		blended, err := e.rerank(ctx, query, fused)
		if err != nil {
			// Rerank failures never abort retrieval.
			e.logger.Warn("rerank_unavailable", "error", err)
		} else {
			fused = blended
			reranked = true
		}
	}

	fused = filterRelevant(fused, cfg.Threshold, keywordHits)
	fused = trimCandidates(fused, cfg.TopK)

	return &RetrievalResult{
		Chunks:   fused,
		TopScore: topScore(fused),
		Reranked: reranked,
	}, nil
}

// VectorSearch is the plain cosine path used by the direct-reference
// short-circuit and the relaxed fallback retry.
func (e *RetrievalEngine) VectorSearch(
	ctx context.Context,
	query string,
	threshold float64,
	topK int,
	scope []string,
) (*RetrievalResult, error) {
	corpus, err := e.loadCorpus(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(corpus) == 0 {
		return &RetrievalResult{}, nil
	}

	queryVector, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := e.scoreCorpus(ctx, queryVector, corpus, threshold)
	if err != nil {
		return nil, err
	}
	hits = dedupByDocument(hits, vectorMaxChunksPerDoc)
	hits = trimCandidates(hits, topK)

	return &RetrievalResult{Chunks: hits, TopScore: topScore(hits)}, nil
}

func (e *RetrievalEngine) loadCorpus(ctx context.Context, scope []string) ([]domain.Chunk, error) {
	if len(scope) > 0 {
		chunks, err := e.store.ScanByDocuments(ctx, scope)
		if err != nil {
			return nil, fmt.Errorf("scan scoped chunks: %w", err)
		}
		return chunks, nil
	}
	chunks, err := e.store.ScanAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}
	return chunks, nil
}

// embedQuery goes through the cache manager; a miss computes and writes back.
func (e *RetrievalEngine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if e.cache != nil {
		if raw, ok := e.cache.Get(ctx, ports.CacheNamespaceEmbeddings, query); ok {
			var vector []float32
			if err := json.Unmarshal(raw, &vector); err == nil && len(vector) > 0 {
				return vector, nil
			}
		}
	}

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vector) == 0 {
		return nil, domain.WrapError(domain.ErrProvider, "embed query", fmt.Errorf("empty embedding"))
	}

	if e.cache != nil {
		if raw, err := json.Marshal(vector); err == nil {
			e.cache.Set(ctx, ports.CacheNamespaceEmbeddings, query, raw, embeddingCacheTTL, false)
		}
	}
	return vector, nil
}

// scoreCorpus computes cosine similarity for every candidate chunk,
// parallelized across cores, keeping candidates at or above minScore.
// A dimension mismatch is a configuration bug and is never coerced.
func (e *RetrievalEngine) scoreCorpus(
	ctx context.Context,
	queryVector []float32,
	corpus []domain.Chunk,
	minScore float64,
) ([]domain.ScoredChunk, error) {
	workers := runtime.GOMAXPROCS(0)
	if workers > len(corpus) {
		workers = len(corpus)
	}
	if workers < 1 {
		workers = 1
	}

	shards := make([][]domain.ScoredChunk, workers)
	group, groupCtx := errgroup.WithContext(ctx)
	shardSize := (len(corpus) + workers - 1) / workers

	for w := 0; w < workers; w++ {
		start := w * shardSize
		end := start + shardSize
		if end > len(corpus) {
			end = len(corpus)
		}
		if start >= end {
			continue
		}
		w := w
		part := corpus[start:end]
		group.Go(func() error {
			hits := make([]domain.ScoredChunk, 0, len(part)/4+1)
			for _, chunk := range part {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				if len(chunk.Embedding) != len(queryVector) {
					return domain.WrapError(domain.ErrDimensionMismatch, "score chunk",
						fmt.Errorf("chunk %s has dimension %d, query has %d",
							chunk.ID, len(chunk.Embedding), len(queryVector)))
				}
				score := cosineSimilarity(queryVector, chunk.Embedding)
				if score >= minScore {
					hits = append(hits, domain.ScoredChunk{Chunk: chunk, Score: score})
				}
			}
			shards[w] = hits
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	merged := make([]domain.ScoredChunk, 0, len(corpus)/4+1)
	for _, shard := range shards {
		merged = append(merged, shard...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ID < merged[j].ID
	})
	return merged, nil
}

// keywordSearch runs the store's text search and materializes hits against
// the already-loaded corpus. Hits outside the corpus (stale index rows or
// out-of-scope documents) are dropped.
func (e *RetrievalEngine) keywordSearch(
	ctx context.Context,
	query string,
	topK int,
	corpus []domain.Chunk,
) ([]domain.ScoredChunk, error) {
	limit := keywordCandidateFloor
	if topK*keywordCandidateMult > limit {
		limit = topK * keywordCandidateMult
	}

	hits, err := e.store.TextSearch(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}

	byID := make(map[string]domain.Chunk, len(corpus))
	for _, chunk := range corpus {
		byID[chunk.ID] = chunk
	}

	out := make([]domain.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		chunk, ok := byID[hit.ChunkID]
		if !ok {
			continue
		}
		out = append(out, domain.ScoredChunk{Chunk: chunk, Score: hit.Score})
	}
	return out, nil
}

// rerank scores (query, content) pairs through the pluggable scorer and
// blends as max(original, score*0.9). Any scorer error leaves the pre-rerank
// ordering in place.
func (e *RetrievalEngine) rerank(ctx context.Context, query string, chunks []domain.ScoredChunk) ([]domain.ScoredChunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}

	blended := make([]domain.ScoredChunk, len(chunks))
	copy(blended, chunks)
	for i := range blended {
		score, err := e.reranker.Score(ctx, query, blended[i].Content)
		if err != nil {
			return nil, domain.WrapError(domain.ErrRerankUnavailable, "rerank", err)
		}
		if weighted := score * rerankBlendRatio; weighted > blended[i].Score {
			blended[i].Score = weighted
		}
	}

	sort.SliceStable(blended, func(i, j int) bool {
		if blended[i].Score != blended[j].Score {
			return blended[i].Score > blended[j].Score
		}
		return blended[i].ID < blended[j].ID
	})
	return blended, nil
}

// restoreSimilarity rewrites each fused candidate's Score back to its cosine
// similarity against the query vector. RRF positions the candidates; the
// carried score stays on the similarity scale the adaptive thresholds use.
func restoreSimilarity(fused []domain.ScoredChunk, queryVector []float32, vectorHits []domain.ScoredChunk) {
	simByID := make(map[string]float64, len(vectorHits))
	for _, hit := range vectorHits {
		simByID[hit.ID] = hit.Score
	}
	for i := range fused {
		if sim, ok := simByID[fused[i].ID]; ok {
			fused[i].Score = sim
			continue
		}
		if len(fused[i].Embedding) == len(queryVector) {
			fused[i].Score = cosineSimilarity(queryVector, fused[i].Embedding)
		} else {
			fused[i].Score = 0
		}
	}
}

// filterRelevant drops candidates under the similarity threshold. Candidates
// the keyword ranking surfaced stay regardless, flagged low confidence, since
// an exact term match can matter even when the embedding match is weak.
func filterRelevant(chunks []domain.ScoredChunk, threshold float64, keywordHits []domain.ScoredChunk) []domain.ScoredChunk {
	fromKeyword := make(map[string]struct{}, len(keywordHits))
	for _, hit := range keywordHits {
		fromKeyword[hit.ID] = struct{}{}
	}

	out := chunks[:0:0]
	for _, chunk := range chunks {
		if chunk.Score >= threshold {
			out = append(out, chunk)
			continue
		}
		if _, ok := fromKeyword[chunk.ID]; ok {
			chunk.LowConfidence = true
			out = append(out, chunk)
		}
	}
	return out
}

func topScore(chunks []domain.ScoredChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	return chunks[0].Score
}
