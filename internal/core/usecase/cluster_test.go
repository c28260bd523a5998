package usecase

import (
	"context"
	"testing"

	"github.com/asafonov/docqa/internal/core/domain"
)

func clusterChunk(id, docID string, embedding []float32) domain.Chunk {
	return domain.Chunk{ID: id, DocumentID: docID, DocumentName: docID, Embedding: embedding}
}

func TestClusterDocumentsSeparatesObviousGroups(t *testing.T) {
	store := &fakeChunkStore{chunks: []domain.Chunk{
		// Two documents near the x axis, two near the y axis.
		clusterChunk("a1", "doc-a", []float32{1, 0.05}),
		clusterChunk("a2", "doc-a", []float32{1, 0.1}),
		clusterChunk("b1", "doc-b", []float32{1, 0}),
		clusterChunk("c1", "doc-c", []float32{0.05, 1}),
		clusterChunk("d1", "doc-d", []float32{0, 1}),
	}}

	uc := NewClusterUseCase(store, testLogger())
	assignments, err := uc.ClusterDocuments(context.Background(), 2, 20)
	if err != nil {
		t.Fatalf("ClusterDocuments: %v", err)
	}
	if len(assignments) != 4 {
		t.Fatalf("expected 4 assignments, got %d", len(assignments))
	}

	byDoc := map[string]int{}
	for _, assignment := range assignments {
		byDoc[assignment.DocumentID] = assignment.ClusterID
	}
	if byDoc["doc-a"] != byDoc["doc-b"] {
		t.Fatalf("doc-a and doc-b should share a cluster: %v", byDoc)
	}
	if byDoc["doc-c"] != byDoc["doc-d"] {
		t.Fatalf("doc-c and doc-d should share a cluster: %v", byDoc)
	}
	if byDoc["doc-a"] == byDoc["doc-c"] {
		t.Fatalf("x-axis and y-axis groups should split: %v", byDoc)
	}

	if len(store.savedAssignments) != 4 {
		t.Fatalf("expected assignments persisted, got %d", len(store.savedAssignments))
	}
}

func TestClusterDocumentsClampsKToDocumentCount(t *testing.T) {
	store := &fakeChunkStore{chunks: []domain.Chunk{
		clusterChunk("a1", "doc-a", []float32{1, 0}),
		clusterChunk("b1", "doc-b", []float32{0, 1}),
	}}

	uc := NewClusterUseCase(store, testLogger())
	assignments, err := uc.ClusterDocuments(context.Background(), 10, 5)
	if err != nil {
		t.Fatalf("ClusterDocuments: %v", err)
	}
	if len(assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(assignments))
	}
	for _, assignment := range assignments {
		if assignment.ClusterID < 0 || assignment.ClusterID > 1 {
			t.Fatalf("cluster id %d out of range after clamping", assignment.ClusterID)
		}
	}
}

func TestClusterDocumentsRejectsInvalidParameters(t *testing.T) {
	uc := NewClusterUseCase(&fakeChunkStore{}, testLogger())

	if _, err := uc.ClusterDocuments(context.Background(), 0, 10); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for k=0, got %v", err)
	}
	if _, err := uc.ClusterDocuments(context.Background(), 3, 0); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for maxIterations=0, got %v", err)
	}
}

func TestClusterDocumentsEmptyCorpus(t *testing.T) {
	uc := NewClusterUseCase(&fakeChunkStore{}, testLogger())
	assignments, err := uc.ClusterDocuments(context.Background(), 3, 10)
	if err != nil {
		t.Fatalf("ClusterDocuments: %v", err)
	}
	if assignments != nil {
		t.Fatalf("expected nil assignments for empty corpus, got %v", assignments)
	}
}

func TestClusterDocumentsSkipsChunksWithoutEmbeddings(t *testing.T) {
	store := &fakeChunkStore{chunks: []domain.Chunk{
		clusterChunk("a1", "doc-a", []float32{1, 0}),
		clusterChunk("b1", "doc-b", nil),
	}}
	uc := NewClusterUseCase(store, testLogger())
	assignments, err := uc.ClusterDocuments(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("ClusterDocuments: %v", err)
	}
	if len(assignments) != 1 || assignments[0].DocumentID != "doc-a" {
		t.Fatalf("expected only doc-a clustered, got %v", assignments)
	}
}
