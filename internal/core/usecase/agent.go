package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asafonov/docqa/internal/core/domain"
	"github.com/asafonov/docqa/internal/core/ports"
)

// NoRelevantInformationAnswer is the terminal response of the fallback chain.
const NoRelevantInformationAnswer = "I could not find relevant information in your documents for this question."

var (
	followUpPattern = regexp.MustCompile(`(?i)\b(it|this|that|these|those|they|them|its|their)\b|^(and|also|what about|how about)\b`)
	broadQueries    = map[string]struct{}{
		"help": {}, "info": {}, "information": {}, "documents": {}, "more": {},
		"anything": {}, "everything": {},
	}
)

// Agent is the retrieval orchestrator: a linear state machine with branches,
// terminal states answered/failed.
//
//	Start -> ResolveFollowUp -> MaybeClarify -> Retrieve ->
//	  {Answer | Fallback -> Retrieve(relaxed) -> {Answer | GeneralKnowledge}} ->
//	  Persist -> Answered
type Agent struct {
	classifier *Classifier
	engine     *RetrievalEngine
	generator  ports.GenerationProvider
	general    ports.GenerationProvider // optional general-knowledge fallback
	store      ports.ChunkStore
	chat       ports.ChatStore
	cache      ports.QueryCache
	limits     domain.AgentLimits
	logger     *slog.Logger
}

func NewAgent(
	classifier *Classifier,
	engine *RetrievalEngine,
	generator ports.GenerationProvider,
	general ports.GenerationProvider,
	store ports.ChunkStore,
	chat ports.ChatStore,
	queryCache ports.QueryCache,
	limits domain.AgentLimits,
	logger *slog.Logger,
) *Agent {
	if limits.ContextChunkLimit <= 0 {
		limits.ContextChunkLimit = 8
	}
	if limits.FallbackThreshold <= 0 {
		limits.FallbackThreshold = 0.35
	}
	if limits.LowConfidenceTopScore <= 0 {
		limits.LowConfidenceTopScore = 0.4
	}
	if limits.ExpansionThresholdRatio <= 0 {
		limits.ExpansionThresholdRatio = 0.9
	}
	if limits.FollowUpMaxChars <= 0 {
		limits.FollowUpMaxChars = 300
	}
	if limits.ClarifyMaxWords <= 0 {
		limits.ClarifyMaxWords = 2
	}
	if limits.StepTimeout <= 0 {
		limits.StepTimeout = 20 * time.Second
	}
	if limits.ResultCacheTTL <= 0 {
		limits.ResultCacheTTL = 15 * time.Minute
	}
	if limits.GeneralKnowledgeConfidence <= 0 {
		limits.GeneralKnowledgeConfidence = 70
	}
	if limits.Confidence == (domain.ConfidenceConfig{}) {
		limits.Confidence = domain.DefaultConfidenceConfig()
	}

	return &Agent{
		classifier: classifier,
		engine:     engine,
		generator:  generator,
		general:    general,
		store:      store,
		chat:       chat,
		cache:      queryCache,
		limits:     limits,
		logger:     logger,
	}
}

// answerState carries the per-query objects through the state machine. Owned
// by the orchestrator, discarded after the response is built.
type answerState struct {
	threadID      string
	query         string
	cls           domain.QueryClassification
	cfg           domain.RetrievalConfig
	chunks        []domain.ScoredChunk
	topScore      float64
	trace         []domain.TraceStep
	clarification string
	general       bool
	noInfo        bool
	fromCache     bool
	reranked      bool
	expanded      bool
	fallbackUsed  string
}

// Answer runs the full state machine synchronously. Persistence completes
// before success is reported.
func (a *Agent) Answer(ctx context.Context, req domain.AnswerRequest) (*domain.AgentAnswer, error) {
	started := time.Now()

	state, err := a.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	if state.clarification != "" {
		answer := a.buildAnswer(state, state.clarification, 0, 0, started)
		answer.Clarification = state.clarification
		a.persist(ctx, req, state, answer)
		return answer, nil
	}

	text, tokens, confidence, err := a.generateFinal(ctx, state)
	if err != nil {
		return nil, err
	}

	answer := a.buildAnswer(state, text, confidence, tokens, started)
	a.persist(ctx, req, state, answer)
	answer.Metadata.DurationMS = float64(time.Since(started).Microseconds()) / 1000.0
	return answer, nil
}

// StreamAnswer runs the same machine but emits ordered events: thread first,
// done or error last. Client cancellation stops the provider stream promptly.
func (a *Agent) StreamAnswer(ctx context.Context, req domain.AnswerRequest) (<-chan domain.StreamEvent, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, domain.WrapError(domain.ErrEmptyQuery, "stream answer", fmt.Errorf("query is required"))
	}

	events := make(chan domain.StreamEvent, 16)
	go func() {
		defer close(events)
		started := time.Now()

		emit := func(event domain.StreamEvent) bool {
			select {
			case events <- event:
				return true
			case <-ctx.Done():
				return false
			}
		}

		state, err := a.prepare(ctx, req)
		if err != nil {
			emit(domain.StreamEvent{Type: domain.EventError, ErrorCode: domain.ErrorCode(err), ErrorText: err.Error()})
			return
		}

		if !emit(domain.StreamEvent{Type: domain.EventThread, ThreadID: state.threadID}) {
			return
		}
		for i := range state.trace {
			if !emit(domain.StreamEvent{Type: domain.EventStep, Step: &state.trace[i]}) {
				return
			}
		}

		if state.clarification != "" {
			if !emit(domain.StreamEvent{Type: domain.EventClarify, Clarify: state.clarification}) {
				return
			}
			answer := a.buildAnswer(state, state.clarification, 0, 0, started)
			answer.Clarification = state.clarification
			a.persist(ctx, req, state, answer)
			emit(domain.StreamEvent{Type: domain.EventDone, Done: answer})
			return
		}

		if !emit(domain.StreamEvent{Type: domain.EventRetrieval, Chunks: state.chunks}) {
			return
		}

		text, tokens, confidence, err := a.streamFinal(ctx, state, emit)
		if err != nil {
			emit(domain.StreamEvent{Type: domain.EventError, ErrorCode: domain.ErrorCode(err), ErrorText: err.Error()})
			return
		}

		answer := a.buildAnswer(state, text, confidence, tokens, started)
		a.persist(ctx, req, state, answer)
		answer.Metadata.DurationMS = float64(time.Since(started).Microseconds()) / 1000.0
		emit(domain.StreamEvent{Type: domain.EventDone, Done: answer})
	}()

	return events, nil
}

// prepare executes every state up to answer generation.
func (a *Agent) prepare(ctx context.Context, req domain.AnswerRequest) (*answerState, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrEmptyQuery, "answer", fmt.Errorf("query is required"))
	}

	state := &answerState{query: query, threadID: a.resolveThread(ctx, req)}

	followUpResolved := a.resolveFollowUp(ctx, state, req.History)

	// Follow-up resolution and clarification are mutually exclusive
	// refinements of the same query.
	if !followUpResolved && a.needsClarification(state.query) {
		if question := a.clarifyQuestion(ctx, state.query); question != "" {
			state.clarification = question
			state.trace = append(state.trace, domain.TraceStep{
				Kind:    domain.StepClarify,
				Clarify: &domain.ClarifyStep{Question: question},
			})
			return state, nil
		}
	}

	documents, err := a.store.ListDocuments(ctx)
	if err != nil {
		a.logger.Warn("list_documents_failed", "error", err)
	}

	state.cls = a.classifier.Classify(state.query, documents)
	state.cls.IsFollowUp = followUpResolved
	state.cfg = RetrievalConfigFor(state.cls)
	state.trace = append(state.trace, domain.TraceStep{
		Kind: domain.StepQueryAnalysis,
		QueryAnalysis: &domain.QueryAnalysisStep{
			Query:       state.query,
			Type:        state.cls.Type,
			Threshold:   state.cfg.Threshold,
			DocumentRef: state.cls.DocumentRef,
			KeyTerms:    state.cls.KeyTerms,
		},
	})

	if err := a.retrieve(ctx, state, req); err != nil {
		return nil, err
	}
	if len(state.chunks) == 0 {
		a.fallback(ctx, state, req)
	} else if state.topScore < a.limits.LowConfidenceTopScore && state.cfg.UseQueryExpansion && !state.fromCache {
		a.expandAndRetry(ctx, state, req)
	}

	return state, nil
}

// retrieve runs the direct-reference short-circuit, the result cache, and the
// hybrid engine, in that order.
func (a *Agent) retrieve(ctx context.Context, state *answerState, req domain.AnswerRequest) error {
	if state.cls.DocumentRef != nil {
		result, err := a.engine.VectorSearch(ctx, state.query, state.cfg.Threshold, state.cfg.TopK, []string{state.cls.DocumentRef.ID})
		if err != nil {
			return err
		}
		if len(result.Chunks) > 0 {
			a.applyResult(state, result, "direct_reference", false)
			return nil
		}
	}

	if cached, ok := a.cachedResult(ctx, state, req); ok {
		a.applyResult(state, cached, "hybrid", true)
		return nil
	}

	result, err := a.engine.Retrieve(ctx, state.query, state.cls, state.cfg, req.Scope, RetrieveOptions{Rerank: req.Rerank})
	if err != nil {
		return err
	}
	a.applyResult(state, result, "hybrid", false)
	a.storeResult(ctx, state, req, result)
	return nil
}

func (a *Agent) applyResult(state *answerState, result *RetrievalResult, mode string, fromCache bool) {
	state.chunks = result.Chunks
	state.topScore = result.TopScore
	state.reranked = result.Reranked
	state.fromCache = fromCache
	state.trace = append(state.trace, domain.TraceStep{
		Kind: domain.StepRetrieval,
		Retrieval: &domain.RetrievalStep{
			Mode:       mode,
			ChunkCount: len(result.Chunks),
			TopScore:   result.TopScore,
			Threshold:  state.cfg.Threshold,
			Reranked:   result.Reranked,
			FromCache:  fromCache,
		},
	})
}

// fallback is the graduated chain entered only on zero retrieved chunks:
// vector-only retry at a lowered threshold, then general knowledge, then the
// fixed no-information response.
func (a *Agent) fallback(ctx context.Context, state *answerState, req domain.AnswerRequest) {
	result, err := a.engine.VectorSearch(ctx, state.query, a.limits.FallbackThreshold, state.cfg.TopK, req.Scope)
	if err != nil {
		a.logger.Warn("fallback_vector_search_failed", "error", err)
	} else if len(result.Chunks) > 0 {
		a.applyResult(state, result, "vector_relaxed", false)
		state.fallbackUsed = "vector_relaxed"
		state.trace = append(state.trace, domain.TraceStep{
			Kind:     domain.StepFallback,
			Fallback: &domain.FallbackStep{Stage: "vector_relaxed", ChunkCount: len(result.Chunks)},
		})
		return
	}

	if a.general != nil {
		state.general = true
		state.fallbackUsed = "general_knowledge"
		state.trace = append(state.trace, domain.TraceStep{
			Kind:     domain.StepFallback,
			Fallback: &domain.FallbackStep{Stage: "general_knowledge"},
		})
		return
	}

	state.noInfo = true
	state.fallbackUsed = "no_information"
	state.trace = append(state.trace, domain.TraceStep{
		Kind:     domain.StepFallback,
		Fallback: &domain.FallbackStep{Stage: "no_information"},
	})
}

// expandAndRetry attempts one provider-generated query expansion at a
// slightly relaxed threshold, accepted only when it improves the top score.
func (a *Agent) expandAndRetry(ctx context.Context, state *answerState, req domain.AnswerRequest) {
	stepCtx, cancel := context.WithTimeout(ctx, a.limits.StepTimeout)
	defer cancel()

	generation, err := a.generator.Generate(stepCtx, buildExpansionPrompt(state.query, state.cls.KeyTerms), domain.GenerateOptions{})
	if err != nil {
		a.logger.Warn("query_expansion_failed", "error", err)
		return
	}
	expandedQuery := strings.TrimSpace(generation.Text)
	if expandedQuery == "" || strings.EqualFold(expandedQuery, state.query) {
		return
	}

	relaxed := state.cfg
	relaxed.Threshold = state.cfg.Threshold * a.limits.ExpansionThresholdRatio
	result, err := a.engine.Retrieve(ctx, expandedQuery, state.cls, relaxed, req.Scope, RetrieveOptions{Rerank: req.Rerank})
	if err != nil {
		a.logger.Warn("expansion_retrieve_failed", "error", err)
		return
	}

	accepted := result.TopScore > state.topScore && len(result.Chunks) > 0
	state.trace = append(state.trace, domain.TraceStep{
		Kind: domain.StepExpansion,
		Expansion: &domain.ExpansionStep{
			ExpandedQuery: expandedQuery,
			TopScore:      result.TopScore,
			Accepted:      accepted,
		},
	})
	if accepted {
		state.chunks = result.Chunks
		state.topScore = result.TopScore
		state.reranked = result.Reranked
		state.expanded = true
	}
}

// generateFinal produces the answer text for the terminal branch of the
// machine. Provider errors propagate as typed failures except inside the
// explicitly entered general-knowledge path.
func (a *Agent) generateFinal(ctx context.Context, state *answerState) (string, int, float64, error) {
	switch {
	case state.noInfo:
		return NoRelevantInformationAnswer, 0, 0, nil
	case state.general:
		generation, err := a.general.Generate(ctx, buildGeneralKnowledgePrompt(state.query), domain.GenerateOptions{})
		if err != nil {
			a.logger.Warn("general_knowledge_failed", "error", err)
			state.general = false
			state.noInfo = true
			state.fallbackUsed = "no_information"
			return NoRelevantInformationAnswer, 0, 0, nil
		}
		return generation.Text, generation.TokensUsed, a.limits.GeneralKnowledgeConfidence, nil
	default:
		contextChunks := orderForContext(state.chunks, a.limits.ContextChunkLimit)
		generation, err := a.generator.Generate(ctx, buildAnswerPrompt(state.query, contextChunks), domain.GenerateOptions{})
		if err != nil {
			return "", 0, 0, err
		}
		confidence := computeConfidence(state.chunks, a.limits.Confidence)
		state.trace = append(state.trace, domain.TraceStep{
			Kind: domain.StepAnswer,
			Answer: &domain.AnswerStep{
				Confidence:    confidence,
				ContextChunks: len(contextChunks),
				TokensUsed:    generation.TokensUsed,
			},
		})
		return generation.Text, generation.TokensUsed, confidence, nil
	}
}

// streamFinal mirrors generateFinal but forwards provider fragments as
// answer events and accumulates the full text for persistence.
func (a *Agent) streamFinal(ctx context.Context, state *answerState, emit func(domain.StreamEvent) bool) (string, int, float64, error) {
	switch {
	case state.noInfo:
		emit(domain.StreamEvent{Type: domain.EventAnswer, Text: NoRelevantInformationAnswer})
		return NoRelevantInformationAnswer, 0, 0, nil
	case state.general:
		return a.streamFrom(ctx, a.general, buildGeneralKnowledgePrompt(state.query), a.limits.GeneralKnowledgeConfidence, emit)
	default:
		contextChunks := orderForContext(state.chunks, a.limits.ContextChunkLimit)
		confidence := computeConfidence(state.chunks, a.limits.Confidence)
		text, tokens, _, err := a.streamFrom(ctx, a.generator, buildAnswerPrompt(state.query, contextChunks), confidence, emit)
		if err != nil {
			return "", 0, 0, err
		}
		state.trace = append(state.trace, domain.TraceStep{
			Kind: domain.StepAnswer,
			Answer: &domain.AnswerStep{
				Confidence:    confidence,
				ContextChunks: len(contextChunks),
				TokensUsed:    tokens,
			},
		})
		return text, tokens, confidence, nil
	}
}

func (a *Agent) streamFrom(
	ctx context.Context,
	provider ports.GenerationProvider,
	prompt string,
	confidence float64,
	emit func(domain.StreamEvent) bool,
) (string, int, float64, error) {
	fragments, err := provider.StreamGenerate(ctx, prompt, domain.GenerateOptions{})
	if err != nil {
		return "", 0, 0, err
	}

	var b strings.Builder
	for fragment := range fragments {
		if fragment.Err != nil {
			return "", 0, 0, fragment.Err
		}
		b.WriteString(fragment.Text)
		if !emit(domain.StreamEvent{Type: domain.EventAnswer, Text: fragment.Text}) {
			return "", 0, 0, ctx.Err()
		}
	}
	return b.String(), 0, confidence, nil
}

func (a *Agent) buildAnswer(state *answerState, text string, confidence float64, tokens int, started time.Time) *domain.AgentAnswer {
	return &domain.AgentAnswer{
		Answer:     text,
		Chunks:     state.chunks,
		Confidence: confidence,
		Sources:    uniqueSources(state.chunks),
		Trace:      state.trace,
		Metadata: domain.AnswerMetadata{
			ThreadID:           state.threadID,
			QueryType:          state.cls.Type,
			IsGeneralKnowledge: state.general,
			Reranked:           state.reranked,
			Expanded:           state.expanded,
			FromCache:          state.fromCache,
			FallbackUsed:       state.fallbackUsed,
			TokensUsed:         tokens,
			DurationMS:         float64(time.Since(started).Microseconds()) / 1000.0,
		},
	}
}

// persist hands the answer to the chat store. Failures are logged, never
// escalated, but the calls complete before the orchestrator reports success.
func (a *Agent) persist(ctx context.Context, req domain.AnswerRequest, state *answerState, answer *domain.AgentAnswer) {
	now := time.Now().UTC()
	logged := true

	if err := a.chat.AddMessage(ctx, domain.ChatMessage{
		ID:        uuid.NewString(),
		ThreadID:  state.threadID,
		UserID:    req.UserID,
		Role:      "user",
		Content:   req.Query,
		CreatedAt: now,
	}); err != nil {
		a.logger.Warn("persist_user_message_failed", "error", err)
		logged = false
	}
	if err := a.chat.AddMessage(ctx, domain.ChatMessage{
		ID:        uuid.NewString(),
		ThreadID:  state.threadID,
		UserID:    req.UserID,
		Role:      "assistant",
		Content:   answer.Answer,
		CreatedAt: now,
	}); err != nil {
		a.logger.Warn("persist_assistant_message_failed", "error", err)
		logged = false
	}
	if err := a.chat.LogSearchQuery(ctx, domain.SearchLog{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		ThreadID:   state.threadID,
		Query:      state.query,
		QueryType:  state.cls.Type,
		ChunkCount: len(state.chunks),
		Confidence: answer.Confidence,
		DurationMS: answer.Metadata.DurationMS,
		CreatedAt:  now,
	}); err != nil {
		a.logger.Warn("log_search_query_failed", "error", err)
		logged = false
	}

	state.trace = append(state.trace, domain.TraceStep{
		Kind:    domain.StepPersist,
		Persist: &domain.PersistStep{ThreadID: state.threadID, Logged: logged},
	})
	answer.Trace = state.trace
}

func (a *Agent) resolveThread(ctx context.Context, req domain.AnswerRequest) string {
	if threadID := strings.TrimSpace(req.ThreadID); threadID != "" {
		return threadID
	}
	threadID, err := a.chat.CreateThread(ctx, req.UserID)
	if err != nil || threadID == "" {
		a.logger.Warn("create_thread_failed", "error", err)
		return uuid.NewString()
	}
	return threadID
}

// resolveFollowUp rewrites a reference-laden query into a self-contained one
// using conversation history. The rewrite is accepted only when it differs
// from the input and stays under the length cap.
func (a *Agent) resolveFollowUp(ctx context.Context, state *answerState, history []domain.ChatMessage) bool {
	if len(history) == 0 || !followUpPattern.MatchString(state.query) {
		return false
	}

	stepCtx, cancel := context.WithTimeout(ctx, a.limits.StepTimeout)
	defer cancel()

	generation, err := a.generator.Generate(stepCtx, buildFollowUpRewritePrompt(state.query, history), domain.GenerateOptions{})
	if err != nil {
		a.logger.Warn("follow_up_rewrite_failed", "error", err)
		return false
	}

	resolved := strings.TrimSpace(generation.Text)
	accepted := resolved != "" &&
		!strings.EqualFold(resolved, state.query) &&
		len([]rune(resolved)) <= a.limits.FollowUpMaxChars

	state.trace = append(state.trace, domain.TraceStep{
		Kind: domain.StepFollowUp,
		FollowUp: &domain.FollowUpStep{
			Original: state.query,
			Resolved: resolved,
			Accepted: accepted,
		},
	})
	if !accepted {
		return false
	}
	state.query = resolved
	return true
}

func (a *Agent) needsClarification(query string) bool {
	words := strings.Fields(query)
	if len(words) <= a.limits.ClarifyMaxWords {
		return true
	}
	_, broad := broadQueries[strings.ToLower(strings.TrimSpace(query))]
	return broad
}

func (a *Agent) clarifyQuestion(ctx context.Context, query string) string {
	stepCtx, cancel := context.WithTimeout(ctx, a.limits.StepTimeout)
	defer cancel()

	generation, err := a.generator.Generate(stepCtx, buildClarifyPrompt(query), domain.GenerateOptions{})
	if err != nil {
		a.logger.Warn("clarify_failed", "error", err)
		return ""
	}
	return strings.TrimSpace(generation.Text)
}

func (a *Agent) cachedResult(ctx context.Context, state *answerState, req domain.AnswerRequest) (*RetrievalResult, bool) {
	if a.cache == nil {
		return nil, false
	}
	raw, ok := a.cache.Get(ctx, ports.CacheNamespaceResults, resultCacheID(state.query, req))
	if !ok {
		return nil, false
	}
	var result RetrievalResult
	if err := json.Unmarshal(raw, &result); err != nil || len(result.Chunks) == 0 {
		return nil, false
	}
	return &result, true
}

func (a *Agent) storeResult(ctx context.Context, state *answerState, req domain.AnswerRequest, result *RetrievalResult) {
	if a.cache == nil || len(result.Chunks) == 0 {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	a.cache.Set(ctx, ports.CacheNamespaceResults, resultCacheID(state.query, req), raw, a.limits.ResultCacheTTL, false)
}

func resultCacheID(query string, req domain.AnswerRequest) string {
	if len(req.Scope) == 0 && !req.Rerank {
		return query
	}
	return fmt.Sprintf("%s|scope=%s|rerank=%t", query, strings.Join(req.Scope, ","), req.Rerank)
}

// orderForContext groups chunks by document in order of best rank, sorts each
// group by original position, and caps the total handed to generation.
func orderForContext(chunks []domain.ScoredChunk, limit int) []domain.ScoredChunk {
	if len(chunks) == 0 {
		return chunks
	}

	order := make([]string, 0, len(chunks))
	grouped := make(map[string][]domain.ScoredChunk, len(chunks))
	for _, chunk := range chunks {
		if _, seen := grouped[chunk.DocumentID]; !seen {
			order = append(order, chunk.DocumentID)
		}
		grouped[chunk.DocumentID] = append(grouped[chunk.DocumentID], chunk)
	}

	out := make([]domain.ScoredChunk, 0, len(chunks))
	for _, docID := range order {
		group := grouped[docID]
		for i := 1; i < len(group); i++ {
			for j := i; j > 0 && group[j].ChunkIndex < group[j-1].ChunkIndex; j-- {
				group[j], group[j-1] = group[j-1], group[j]
			}
		}
		out = append(out, group...)
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func uniqueSources(chunks []domain.ScoredChunk) []domain.DocumentRef {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]domain.DocumentRef, 0, len(chunks))
	for _, chunk := range chunks {
		if _, ok := seen[chunk.DocumentID]; ok {
			continue
		}
		seen[chunk.DocumentID] = struct{}{}
		out = append(out, domain.DocumentRef{ID: chunk.DocumentID, Name: chunk.DocumentName})
	}
	return out
}
