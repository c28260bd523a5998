package usecase

import "github.com/asafonov/docqa/internal/core/domain"

// computeConfidence scores an answer from chunk statistics on a 0-100 scale:
// 40% top similarity, 30% average of the top three, 20% count of chunks above
// the highly-relevant bar, 10% source-diversity bonus. Floor corrections come
// from the config.
func computeConfidence(chunks []domain.ScoredChunk, cfg domain.ConfidenceConfig) float64 {
	if len(chunks) == 0 {
		return 0
	}

	top := chunks[0].Score

	topN := 3
	if len(chunks) < topN {
		topN = len(chunks)
	}
	sum := 0.0
	for _, chunk := range chunks[:topN] {
		sum += chunk.Score
	}
	avgTop := sum / float64(topN)

	highlyRelevant := 0
	docs := make(map[string]struct{}, len(chunks))
	for _, chunk := range chunks {
		if chunk.Score >= cfg.HighRelevanceBar {
			highlyRelevant++
		}
		docs[chunk.DocumentID] = struct{}{}
	}
	countTerm := float64(highlyRelevant) / 3.0
	if countTerm > 1 {
		countTerm = 1
	}
	diversityTerm := float64(len(docs)) / 3.0
	if diversityTerm > 1 {
		diversityTerm = 1
	}

	confidence := 100 * (cfg.TopWeight*clamp01(top) +
		cfg.AvgTop3Weight*clamp01(avgTop) +
		cfg.CountWeight*countTerm +
		cfg.DiversityWeight*diversityTerm)

	if top > cfg.TopFloorScore && confidence < cfg.TopFloorValue {
		confidence = cfg.TopFloorValue
	}
	if confidence > 100 {
		confidence = 100
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
