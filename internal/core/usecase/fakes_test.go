package usecase

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/asafonov/docqa/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeChunkStore struct {
	chunks    []domain.Chunk
	hits      []domain.KeywordHit
	documents []domain.DocumentRef

	savedAssignments []domain.ClusterAssignment

	scanErr       error
	textSearchErr error
	saveErr       error
}

func (s *fakeChunkStore) ScanAll(context.Context) ([]domain.Chunk, error) {
	return s.chunks, s.scanErr
}

func (s *fakeChunkStore) ScanByDocuments(_ context.Context, documentIDs []string) ([]domain.Chunk, error) {
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	want := make(map[string]struct{}, len(documentIDs))
	for _, id := range documentIDs {
		want[id] = struct{}{}
	}
	var out []domain.Chunk
	for _, chunk := range s.chunks {
		if _, ok := want[chunk.DocumentID]; ok {
			out = append(out, chunk)
		}
	}
	return out, nil
}

func (s *fakeChunkStore) TextSearch(_ context.Context, _ string, limit int) ([]domain.KeywordHit, error) {
	if s.textSearchErr != nil {
		return nil, s.textSearchErr
	}
	if limit > 0 && len(s.hits) > limit {
		return s.hits[:limit], nil
	}
	return s.hits, nil
}

func (s *fakeChunkStore) ListDocuments(context.Context) ([]domain.DocumentRef, error) {
	return s.documents, nil
}

func (s *fakeChunkStore) SaveClusterAssignments(_ context.Context, assignments []domain.ClusterAssignment) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.savedAssignments = assignments
	return nil
}

type fakeEmbedder struct {
	vector  []float32
	vectors map[string][]float32
	err     error
	calls   int
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if vector, ok := e.vectors[text]; ok {
		return vector, nil
	}
	return e.vector, nil
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, nil
}

type fakeGenerator struct {
	responses []domain.Generation
	fragments []domain.TextFragment
	err       error
	prompts   []string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string, _ domain.GenerateOptions) (domain.Generation, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return domain.Generation{}, g.err
	}
	if len(g.responses) == 0 {
		return domain.Generation{Text: "generated answer", TokensUsed: 10}, nil
	}
	next := g.responses[0]
	g.responses = g.responses[1:]
	return next, nil
}

func (g *fakeGenerator) StreamGenerate(_ context.Context, prompt string, _ domain.GenerateOptions) (<-chan domain.TextFragment, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return nil, g.err
	}
	out := make(chan domain.TextFragment, len(g.fragments))
	for _, fragment := range g.fragments {
		out <- fragment
	}
	close(out)
	return out, nil
}

type fakeReranker struct {
	scores map[string]float64
	err    error
}

func (r *fakeReranker) Score(_ context.Context, _ string, text string) (float64, error) {
	if r.err != nil {
		return 0, r.err
	}
	return r.scores[text], nil
}

type fakeChatStore struct {
	threadID string
	messages []domain.ChatMessage
	logs     []domain.SearchLog

	createErr error
}

func (s *fakeChatStore) CreateThread(context.Context, string) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	return s.threadID, nil
}

func (s *fakeChatStore) AddMessage(_ context.Context, message domain.ChatMessage) error {
	s.messages = append(s.messages, message)
	return nil
}

func (s *fakeChatStore) LogSearchQuery(_ context.Context, entry domain.SearchLog) error {
	s.logs = append(s.logs, entry)
	return nil
}

type fakeQueryCache struct {
	entries map[string][]byte
	sets    int
}

func newFakeQueryCache() *fakeQueryCache {
	return &fakeQueryCache{entries: make(map[string][]byte)}
}

func (c *fakeQueryCache) Get(_ context.Context, namespace, id string) ([]byte, bool) {
	value, ok := c.entries[namespace+"|"+id]
	return value, ok
}

func (c *fakeQueryCache) Set(_ context.Context, namespace, id string, value []byte, _ time.Duration, _ bool) {
	c.sets++
	c.entries[namespace+"|"+id] = value
}

func (c *fakeQueryCache) Invalidate(_ context.Context, namespace string) {
	for key := range c.entries {
		if len(key) > len(namespace) && key[:len(namespace)+1] == namespace+"|" {
			delete(c.entries, key)
		}
	}
}
