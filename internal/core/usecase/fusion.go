package usecase

import (
	"sort"

	"github.com/asafonov/docqa/internal/core/domain"
)

const defaultRRFK = 60

// fusionWeights returns the (vector, keyword) RRF weights for a query type.
// Explanatory queries lean on semantics, specific queries on exact terms.
func fusionWeights(queryType domain.QueryType) (float64, float64) {
	switch queryType {
	case domain.QueryExplanatory:
		return 0.70, 0.30
	case domain.QuerySummarization:
		return 0.65, 0.35
	case domain.QuerySpecific:
		return 0.40, 0.60
	default:
		return 0.55, 0.45
	}
}

type fusedCandidate struct {
	chunk domain.ScoredChunk
	score float64
}

// fuseRRF merges the vector and keyword rankings with weighted Reciprocal
// Rank Fusion: each appearance at 0-based rank r contributes
// weight / (k + r + 1). Candidates present in both lists accumulate both
// contributions. Ordering is deterministic: fused score desc, chunk id asc.
func fuseRRF(vector, keyword []domain.ScoredChunk, vectorWeight, keywordWeight float64, rrfK int) []domain.ScoredChunk {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]fusedCandidate, len(vector)+len(keyword))
	addList := func(chunks []domain.ScoredChunk, weight float64) {
		for rank, chunk := range chunks {
			candidate, ok := acc[chunk.ID]
			if !ok {
				candidate.chunk = chunk
			}
			candidate.score += weight / float64(rrfK+rank+1)
			acc[chunk.ID] = candidate
		}
	}

	addList(vector, vectorWeight)
	addList(keyword, keywordWeight)

	out := make([]domain.ScoredChunk, 0, len(acc))
	for _, candidate := range acc {
		chunk := candidate.chunk
		chunk.Score = candidate.score
		out = append(out, chunk)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})

	return out
}

func trimCandidates(chunks []domain.ScoredChunk, limit int) []domain.ScoredChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}
