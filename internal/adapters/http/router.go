// Package httpadapter exposes the answering core over HTTP and SSE.
package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/asafonov/docqa/internal/core/domain"
	"github.com/asafonov/docqa/internal/core/ports"
	"github.com/asafonov/docqa/internal/observability/metrics"
)

type Router struct {
	answers  ports.AnswerService
	clusters ports.ClusterService
	metrics  *metrics.Collector
	limits   TrafficLimits
}

func NewRouter(answers ports.AnswerService, clusters ports.ClusterService, collector *metrics.Collector, limits TrafficLimits) *Router {
	return &Router{
		answers:  answers,
		clusters: clusters,
		metrics:  collector,
		limits:   limits,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/v1/answers", rt.answer)
	mux.HandleFunc("/v1/answers/stream", rt.streamAnswer)
	mux.HandleFunc("/v1/clusters/rebuild", rt.rebuildClusters)

	handler := rateLimitMiddleware(rt.limits)(mux)
	handler = metricsMiddleware(rt.metrics)(handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) answer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	req, ok := decodeAnswerRequest(w, r)
	if !ok {
		return
	}

	answer, err := rt.answers.Answer(r.Context(), req)
	if err != nil {
		rt.recordAnswerError(err)
		writeError(w, err)
		return
	}
	rt.recordAnswer(answer)
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) recordAnswer(answer *domain.AgentAnswer) {
	rt.metrics.ObserveRetrieval(len(answer.Chunks))
	if answer.Metadata.FallbackUsed != "" {
		rt.metrics.Fallback(answer.Metadata.FallbackUsed)
	}
}

func (rt *Router) recordAnswerError(err error) {
	switch {
	case domain.IsKind(err, domain.ErrProviderAuth),
		domain.IsKind(err, domain.ErrProviderRateLimit),
		domain.IsKind(err, domain.ErrProviderQuota),
		domain.IsKind(err, domain.ErrProvider):
		rt.metrics.ProviderError("answer", domain.ErrorCode(err))
	}
}

func (rt *Router) rebuildClusters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		K             int `json:"k"`
		MaxIterations int `json:"max_iterations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.MaxIterations == 0 {
		req.MaxIterations = 50
	}

	assignments, err := rt.clusters.ClusterDocuments(r.Context(), req.K, req.MaxIterations)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assignments": assignments,
		"clusters":    req.K,
	})
}

func decodeAnswerRequest(w http.ResponseWriter, r *http.Request) (domain.AnswerRequest, bool) {
	var req domain.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return domain.AnswerRequest{}, false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "query is required",
			"code":  "empty_query",
		})
		return domain.AnswerRequest{}, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{
		"error": err.Error(),
		"code":  domain.ErrorCode(err),
	})
}
