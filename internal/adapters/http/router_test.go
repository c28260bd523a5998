package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/asafonov/docqa/internal/core/domain"
	"github.com/asafonov/docqa/internal/observability/metrics"
)

type fakeAnswerService struct {
	answer *domain.AgentAnswer
	events []domain.StreamEvent
	err    error

	gotRequest domain.AnswerRequest
}

func (s *fakeAnswerService) Answer(_ context.Context, req domain.AnswerRequest) (*domain.AgentAnswer, error) {
	s.gotRequest = req
	if s.err != nil {
		return nil, s.err
	}
	return s.answer, nil
}

func (s *fakeAnswerService) StreamAnswer(_ context.Context, req domain.AnswerRequest) (<-chan domain.StreamEvent, error) {
	s.gotRequest = req
	if s.err != nil {
		return nil, s.err
	}
	out := make(chan domain.StreamEvent, len(s.events))
	for _, event := range s.events {
		out <- event
	}
	close(out)
	return out, nil
}

type fakeClusterService struct {
	assignments []domain.ClusterAssignment
	err         error
}

func (s *fakeClusterService) ClusterDocuments(context.Context, int, int) ([]domain.ClusterAssignment, error) {
	return s.assignments, s.err
}

func newTestHandler(answers *fakeAnswerService, clusters *fakeClusterService, limits TrafficLimits) http.Handler {
	if clusters == nil {
		clusters = &fakeClusterService{}
	}
	return NewRouter(answers, clusters, metrics.NewCollector(), limits).Handler()
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAnswerEndpointReturnsAnswer(t *testing.T) {
	answers := &fakeAnswerService{answer: &domain.AgentAnswer{
		Answer:     "Backups are kept for 90 days.",
		Confidence: 82,
		Metadata:   domain.AnswerMetadata{ThreadID: "thread-1", QueryType: domain.QueryFactual},
	}}
	handler := newTestHandler(answers, nil, TrafficLimits{})

	rec := postJSON(t, handler, "/v1/answers", `{"query": "What is the backup retention policy?", "user_id": "u-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var got domain.AgentAnswer
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Answer != "Backups are kept for 90 days." || got.Metadata.ThreadID != "thread-1" {
		t.Fatalf("response = %+v", got)
	}
	if answers.gotRequest.UserID != "u-1" {
		t.Fatalf("service request = %+v", answers.gotRequest)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestAnswerEndpointRejectsBlankQuery(t *testing.T) {
	handler := newTestHandler(&fakeAnswerService{}, nil, TrafficLimits{})

	rec := postJSON(t, handler, "/v1/answers", `{"query": "   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["code"] != "empty_query" {
		t.Fatalf("body = %v, want empty_query code", body)
	}
}

func TestAnswerEndpointRejectsInvalidJSON(t *testing.T) {
	handler := newTestHandler(&fakeAnswerService{}, nil, TrafficLimits{})

	rec := postJSON(t, handler, "/v1/answers", `{"query": `)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAnswerEndpointRejectsGet(t *testing.T) {
	handler := newTestHandler(&fakeAnswerService{}, nil, TrafficLimits{})

	req := httptest.NewRequest(http.MethodGet, "/v1/answers", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestAnswerEndpointMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"rate limit", domain.WrapError(domain.ErrProviderRateLimit, "generate", fmt.Errorf("429")), http.StatusTooManyRequests},
		{"provider", domain.WrapError(domain.ErrProvider, "generate", fmt.Errorf("bad gateway")), http.StatusBadGateway},
		{"temporary", domain.WrapError(domain.ErrTemporary, "generate", fmt.Errorf("circuit open")), http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(&fakeAnswerService{err: tc.err}, nil, TrafficLimits{})
			rec := postJSON(t, handler, "/v1/answers", `{"query": "q about backups"}`)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestStreamEndpointEmitsSSE(t *testing.T) {
	answers := &fakeAnswerService{events: []domain.StreamEvent{
		{Type: domain.EventThread, ThreadID: "thread-1"},
		{Type: domain.EventAnswer, Text: "Ninety "},
		{Type: domain.EventAnswer, Text: "days."},
		{Type: domain.EventDone, Done: &domain.AgentAnswer{Answer: "Ninety days."}},
	}}
	handler := newTestHandler(answers, nil, TrafficLimits{})

	rec := postJSON(t, handler, "/v1/answers/stream", `{"query": "What is the backup retention policy?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	body := rec.Body.String()
	frames := strings.Split(strings.TrimSpace(body), "\n\n")
	if len(frames) != 4 {
		t.Fatalf("expected 4 SSE frames, got %d:\n%s", len(frames), body)
	}
	if !strings.HasPrefix(frames[0], "event: thread\n") {
		t.Fatalf("first frame = %q, want thread event", frames[0])
	}
	if !strings.HasPrefix(frames[len(frames)-1], "event: done\n") {
		t.Fatalf("last frame = %q, want done event", frames[len(frames)-1])
	}

	var event domain.StreamEvent
	data := strings.TrimPrefix(strings.SplitN(frames[0], "\n", 2)[1], "data: ")
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		t.Fatalf("decode frame payload: %v", err)
	}
	if event.ThreadID != "thread-1" {
		t.Fatalf("thread event = %+v", event)
	}
}

func TestStreamEndpointValidatesBeforeStreaming(t *testing.T) {
	handler := newTestHandler(&fakeAnswerService{}, nil, TrafficLimits{})

	rec := postJSON(t, handler, "/v1/answers/stream", `{"query": ""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("validation failure must answer plain JSON, got %q", ct)
	}
}

func TestClusterRebuildEndpoint(t *testing.T) {
	clusters := &fakeClusterService{assignments: []domain.ClusterAssignment{
		{DocumentID: "doc-1", ClusterID: 0},
		{DocumentID: "doc-2", ClusterID: 1},
	}}
	handler := newTestHandler(&fakeAnswerService{}, clusters, TrafficLimits{})

	rec := postJSON(t, handler, "/v1/clusters/rebuild", `{"k": 2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Assignments []domain.ClusterAssignment `json:"assignments"`
		Clusters    int                        `json:"clusters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Assignments) != 2 || body.Clusters != 2 {
		t.Fatalf("body = %+v", body)
	}
}

func TestClusterRebuildInvalidInput(t *testing.T) {
	clusters := &fakeClusterService{err: domain.WrapError(domain.ErrInvalidInput, "cluster", fmt.Errorf("k must be positive"))}
	handler := newTestHandler(&fakeAnswerService{}, clusters, TrafficLimits{})

	rec := postJSON(t, handler, "/v1/clusters/rebuild", `{"k": 0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRateLimitMiddlewareRejectsBurstOverflow(t *testing.T) {
	handler := newTestHandler(&fakeAnswerService{answer: &domain.AgentAnswer{}}, nil, TrafficLimits{
		RequestsPerSecond: 1,
		Burst:             2,
	})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Fatalf("statuses = %v, first two must pass the burst", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("statuses = %v, third must be rate limited", statuses)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestHandler(&fakeAnswerService{}, nil, TrafficLimits{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRequestIDPropagatesFromHeader(t *testing.T) {
	handler := newTestHandler(&fakeAnswerService{}, nil, TrafficLimits{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("request id = %q, want req-42", got)
	}
}
