package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Vikiflow-Dev-Design/chat-app-sub001/pkg/config"
	"github.com/Vikiflow-Dev-Design/chat-app-sub001/pkg/llm"
	"github.com/Vikiflow-Dev-Design/chat-app-sub001/pkg/logger"
)

// Service composes the metadata cache, relevance selector, context expander,
// answer generator, and fallback policy into the single ProcessQuery entry
// point. No failure escapes as an error or panic: every path resolves into a
// well-formed Response.
type Service struct {
	store ChunkStore
	model llm.Model

	cache     *MetadataCache
	selector  *RelevanceSelector
	expander  *ContextExpander
	generator *AnswerGenerator
	fallback  *FallbackPolicy

	confidenceThreshold float64
	previewChars        int
	now                 func() time.Time
}

// ServiceOption configures optional Service dependencies.
type ServiceOption func(*Service)

// WithDomainClassifier swaps the out-of-domain classifier, e.g. to replace
// the keyword denylist with a trained model.
func WithDomainClassifier(dc DomainClassifier) ServiceOption {
	return func(s *Service) { s.fallback.classifier = dc }
}

// WithClock overrides the time source. Useful for TTL tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
		s.cache.now = now
	}
}

// NewService centralizes runtime defaults so every entry point gets identical
// behavior without duplicated wiring. cfg may carry zero values; they are
// normalized here.
func NewService(store ChunkStore, model llm.Model, cfg *config.Config, opts ...ServiceOption) *Service {
	if cfg == nil {
		cfg = &config.Config{}
	}
	r := cfg.Retrieval
	if r.CacheTTLMinutes <= 0 {
		r.CacheTTLMinutes = 60
	}
	if r.MaxSelectedChunks <= 0 {
		r.MaxSelectedChunks = 10
	}
	if r.MaxPromptChunks <= 0 {
		r.MaxPromptChunks = 200
	}
	if r.ConfidenceThreshold <= 0 {
		r.ConfidenceThreshold = 0.7
	}
	if r.MaxNeighborScan <= 0 {
		r.MaxNeighborScan = 500
	}
	if r.PreviewChars <= 0 {
		r.PreviewChars = 160
	}
	m := cfg.Model
	if m.ClassifyTemperature <= 0 {
		m.ClassifyTemperature = 0.1
	}
	if m.AnswerTemperature <= 0 {
		m.AnswerTemperature = 0.2
	}
	if m.ChatTemperature <= 0 {
		m.ChatTemperature = 0.8
	}
	f := cfg.Fallback
	if f.SuggestionLimit <= 0 {
		f.SuggestionLimit = 5
	}
	if f.AnswerAttemptThreshold <= 0 {
		f.AnswerAttemptThreshold = 0.5
	}

	s := &Service{
		store:               store,
		model:               model,
		cache:               NewMetadataCache(store, time.Duration(r.CacheTTLMinutes)*time.Minute),
		selector:            NewRelevanceSelector(model, m.ClassifyTemperature, r.MaxPromptChunks),
		expander:            NewContextExpander(store, r.MaxSelectedChunks, r.MaxNeighborScan),
		generator:           NewAnswerGenerator(model, m.AnswerTemperature),
		confidenceThreshold: r.ConfidenceThreshold,
		previewChars:        r.PreviewChars,
		now:                 time.Now,
	}
	s.fallback = NewFallbackPolicy(model,
		NewKeywordDomainClassifier(f.OutOfDomainCategories),
		m.ChatTemperature, f.SuggestionLimit, f.AnswerAttemptThreshold)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache exposes the metadata cache so content-mutation pathways can send
// invalidation signals and operators can warm or inspect it.
func (s *Service) Cache() *MetadataCache {
	return s.cache
}

// ProcessQuery answers one user query for a tenant. It is the only operation
// exposed to callers; everything else is composition detail.
func (s *Service) ProcessQuery(ctx context.Context, tenantID, query, persona string) *Response {
	start := s.now()
	resp := &Response{
		QueryID:    uuid.NewString(),
		ChunksUsed: []ChunkUse{},
	}
	defer func() {
		resp.DurationMs = s.now().Sub(start).Milliseconds()
	}()

	tenantID = strings.TrimSpace(tenantID)
	query = strings.TrimSpace(query)
	if tenantID == "" {
		return s.errorResponse(resp, "I couldn't work out which knowledge base to use for this conversation. Please try again.")
	}
	if query == "" {
		resp.Success = true
		resp.Answer = "I didn't catch a question there. What would you like to know?"
		resp.ResponseType = ResponseClarification
		resp.FallbackUsed = true
		return resp
	}

	entry, err := s.cache.Get(ctx, tenantID)
	if err != nil {
		logger.Error(fmt.Sprintf("query %s: metadata load failed: %v", resp.QueryID, err))
		return s.errorResponse(resp, "I'm having trouble reaching my knowledge base right now. Please try again shortly.")
	}

	// Empty tenant: nothing to classify against, so the model call is
	// skipped entirely.
	if entry.TotalChunks == 0 {
		return s.fallbackResponse(ctx, resp, query, entry, persona)
	}

	decision := s.selector.Analyze(ctx, query, entry)
	switch decision.Kind {
	case DecisionClarify:
		resp.Success = true
		resp.Answer = decision.Message
		resp.ResponseType = ResponseClarification
		resp.FallbackUsed = true
		return resp

	case DecisionSelect:
		return s.groundedResponse(ctx, resp, query, persona, entry, decision)

	default:
		return s.fallbackResponse(ctx, resp, query, entry, persona)
	}
}

func (s *Service) groundedResponse(ctx context.Context, resp *Response, query, persona string, entry *CacheEntry, decision Decision) *Response {
	// Ids the model named but the snapshot doesn't know are dropped, never
	// invented and never surfaced.
	known := entry.knownIDs()
	ids := make([]string, 0, len(decision.ChunkIDs))
	for _, id := range decision.ChunkIDs {
		if _, ok := known[id]; !ok {
			logger.Warn(fmt.Sprintf("query %s: dropping unknown chunk id %q", resp.QueryID, id))
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return s.fallbackResponse(ctx, resp, query, entry, persona)
	}
	if decision.Confidence <= s.confidenceThreshold {
		logger.Info(fmt.Sprintf("query %s: selection confidence %.2f below threshold, falling back", resp.QueryID, decision.Confidence))
		return s.fallbackResponse(ctx, resp, query, entry, persona)
	}

	chunks, err := s.expander.Expand(ctx, entry.TenantID, ids)
	if err != nil {
		logger.Error(fmt.Sprintf("query %s: context expansion failed: %v", resp.QueryID, err))
		return s.errorResponse(resp, "I'm having trouble reaching my knowledge base right now. Please try again shortly.")
	}
	// Every selected chunk can have vanished between classification and
	// fetch; treat that like an empty selection.
	if len(chunks) == 0 {
		return s.fallbackResponse(ctx, resp, query, entry, persona)
	}

	answer, err := s.generator.Generate(ctx, query, chunks, persona)
	if err != nil {
		logger.Error(fmt.Sprintf("query %s: answer generation failed: %v", resp.QueryID, err))
		return s.errorResponse(resp, apologyText)
	}

	confidence := decision.Confidence
	resp.Success = true
	resp.Answer = answer
	resp.ResponseType = ResponseIntelligent
	resp.ChunksUsed = s.chunkUses(chunks)
	resp.Confidence = &confidence
	resp.Reasoning = decision.Reasoning
	return resp
}

func (s *Service) fallbackResponse(ctx context.Context, resp *Response, query string, entry *CacheEntry, persona string) *Response {
	answer, _ := s.fallback.Respond(ctx, query, entry, persona)
	resp.Success = true
	resp.Answer = answer
	resp.ResponseType = ResponseFallback
	resp.FallbackUsed = true
	return resp
}

func (s *Service) errorResponse(resp *Response, answer string) *Response {
	resp.Success = false
	resp.Answer = answer
	resp.ResponseType = ResponseError
	return resp
}

func (s *Service) chunkUses(chunks []ChunkContent) []ChunkUse {
	uses := make([]ChunkUse, 0, len(chunks))
	for _, c := range chunks {
		uses = append(uses, ChunkUse{
			ID:         c.ID,
			ChunkIndex: c.ChunkIndex,
			Section:    c.DocumentSection,
			Preview:    preview(c.Text, s.previewChars),
		})
	}
	return uses
}

func preview(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
