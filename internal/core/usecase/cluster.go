package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/asafonov/docqa/internal/core/domain"
	"github.com/asafonov/docqa/internal/core/ports"
)

// ClusterUseCase groups the corpus by running k-means over per-document mean
// embeddings. Batch only; never on the query path.
type ClusterUseCase struct {
	store  ports.ChunkStore
	logger *slog.Logger
}

func NewClusterUseCase(store ports.ChunkStore, logger *slog.Logger) *ClusterUseCase {
	return &ClusterUseCase{store: store, logger: logger}
}

// ClusterDocuments computes each document's embedding as the arithmetic mean
// of its chunk embeddings, runs k-means with cosine distance (centroids
// seeded from the first k documents in id order), and persists the resulting
// assignments. Assignments are recomputed wholesale, never incrementally.
func (uc *ClusterUseCase) ClusterDocuments(ctx context.Context, k, maxIterations int) ([]domain.ClusterAssignment, error) {
	if k <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "cluster documents", fmt.Errorf("k must be positive, got %d", k))
	}
	if maxIterations <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "cluster documents", fmt.Errorf("max iterations must be positive, got %d", maxIterations))
	}

	chunks, err := uc.store.ScanAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}

	docIDs, docVectors := documentMeanEmbeddings(chunks)
	if len(docIDs) == 0 {
		return nil, nil
	}
	if k > len(docIDs) {
		k = len(docIDs)
	}

	centroids := make([][]float32, k)
	for i := 0; i < k; i++ {
		centroids[i] = docVectors[i]
	}

	assignments := make([]int, len(docIDs))
	for iteration := 0; iteration < maxIterations; iteration++ {
		changed := false
		for i, vector := range docVectors {
			best := nearestCentroid(vector, centroids)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		centroids = recomputeCentroids(docVectors, assignments, k, centroids)
	}

	out := make([]domain.ClusterAssignment, len(docIDs))
	for i, id := range docIDs {
		out[i] = domain.ClusterAssignment{DocumentID: id, ClusterID: assignments[i]}
	}

	if err := uc.store.SaveClusterAssignments(ctx, out); err != nil {
		return nil, fmt.Errorf("save cluster assignments: %w", err)
	}
	uc.logger.Info("documents_clustered", "documents", len(out), "clusters", k)
	return out, nil
}

// documentMeanEmbeddings returns document ids in sorted order with their
// mean chunk embeddings, keeping the result deterministic for a fixed corpus.
func documentMeanEmbeddings(chunks []domain.Chunk) ([]string, [][]float32) {
	grouped := make(map[string][][]float32)
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}
		grouped[chunk.DocumentID] = append(grouped[chunk.DocumentID], chunk.Embedding)
	}

	ids := make([]string, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	vectors := make([][]float32, len(ids))
	for i, id := range ids {
		vectors[i] = meanVector(grouped[id])
	}
	return ids, vectors
}

func nearestCentroid(vector []float32, centroids [][]float32) int {
	best := 0
	bestDistance := cosineDistance(vector, centroids[0])
	for i := 1; i < len(centroids); i++ {
		if d := cosineDistance(vector, centroids[i]); d < bestDistance {
			bestDistance = d
			best = i
		}
	}
	return best
}

func cosineDistance(a, b []float32) float64 {
	return 1 - cosineSimilarity(a, b)
}

// recomputeCentroids averages the members of each cluster; an emptied
// cluster keeps its previous centroid.
func recomputeCentroids(vectors [][]float32, assignments []int, k int, previous [][]float32) [][]float32 {
	members := make([][][]float32, k)
	for i, vector := range vectors {
		cluster := assignments[i]
		members[cluster] = append(members[cluster], vector)
	}

	out := make([][]float32, k)
	for i := 0; i < k; i++ {
		if len(members[i]) == 0 {
			out[i] = previous[i]
			continue
		}
		out[i] = meanVector(members[i])
	}
	return out
}
