package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Vikiflow-Dev-Design/chat-app-sub001/pkg/llm"
	"github.com/Vikiflow-Dev-Design/chat-app-sub001/pkg/logger"
)

const (
	selectToolName   = "select_relevant_chunks"
	sentinelFallback = "FALLBACK"
	sentinelClarify  = "CLARIFY:"

	// Per-chunk list fields are capped in the prompt; the metadata summary is
	// a routing signal, not the content itself.
	maxPromptListItems = 6
)

// RelevanceSelector asks the model to route a query over the tenant's cached
// metadata under a three-way contract: a structured chunk selection, the
// FALLBACK sentinel, or a CLARIFY message. The model acts as a bounded
// classifier over an enumerable candidate set, never as an open retriever.
type RelevanceSelector struct {
	model           llm.Model
	temperature     float64
	maxPromptChunks int
}

func NewRelevanceSelector(model llm.Model, temperature float64, maxPromptChunks int) *RelevanceSelector {
	if maxPromptChunks <= 0 {
		maxPromptChunks = 200
	}
	return &RelevanceSelector{model: model, temperature: temperature, maxPromptChunks: maxPromptChunks}
}

var selectTool = llm.Tool{
	Name:        selectToolName,
	Description: "Select knowledge-base chunks whose metadata matches the user question. Call only when a genuine topic, keyword, entity, or section overlap exists.",
	Parameters: map[string]any{
		"chunk_ids": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Ids of the matching chunks, most relevant first",
		},
		"reasoning": map[string]any{
			"type":        "string",
			"description": "One or two sentences explaining the match",
		},
		"confidence": map[string]any{
			"type":        "number",
			"description": "Certainty of the match between 0 and 1",
		},
	},
	Required: []string{"chunk_ids", "reasoning", "confidence"},
}

const selectionSystem = `You route user questions over a knowledge-base index. You must resolve to exactly one of three outcomes:

1. Call ` + selectToolName + ` with the ids of chunks whose topics, keywords, entities, or document sections overlap the question. Include reasoning and a confidence between 0 and 1.
2. Reply with exactly FALLBACK when no chunk addresses the question's topic, or when the question is a greeting, a question about who you are, a question about what you can do, or the user offering to help you. These must never be answered from chunks even if some metadata superficially overlaps.
3. Reply with CLARIFY: followed by a short question, only when the input is genuinely unintelligible. When unsure, prefer FALLBACK.

Never answer the question yourself. Never invent chunk ids.`

// Analyze classifies the query against the cached snapshot. Any model failure
// or unrecognizable output degrades to Fallback: the system must never
// proceed on stale or fabricated chunk ids.
func (s *RelevanceSelector) Analyze(ctx context.Context, query string, entry *CacheEntry) Decision {
	req := llm.Request{
		System:      selectionSystem,
		Prompt:      s.buildPrompt(query, entry),
		Temperature: s.temperature,
		MaxTokens:   700,
		Tool:        &selectTool,
	}
	res, err := s.model.Complete(ctx, req)
	if err != nil {
		logger.Warn(fmt.Sprintf("relevance classification failed, falling back: %v", err))
		return Decision{Kind: DecisionFallback}
	}
	return parseDecision(res)
}

func (s *RelevanceSelector) buildPrompt(query string, entry *CacheEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User question: %s\n\n", query)
	fmt.Fprintf(&b, "Knowledge-base chunks (%d total):\n", entry.TotalChunks)

	shown := entry.Chunks
	truncated := false
	if len(shown) > s.maxPromptChunks {
		shown = shown[:s.maxPromptChunks]
		truncated = true
	}
	for _, c := range shown {
		fmt.Fprintf(&b, "- id=%s doc=%s index=%d", c.ID, c.DocumentID, c.ChunkIndex)
		if c.DocumentSection != "" {
			fmt.Fprintf(&b, " section=%q", c.DocumentSection)
		}
		if c.ChunkType != "" {
			fmt.Fprintf(&b, " type=%s", c.ChunkType)
		}
		writeListField(&b, "topics", c.Topics)
		writeListField(&b, "keywords", c.Keywords)
		writeListField(&b, "entities", c.Entities)
		writeListField(&b, "headings", c.HeadingContext)
		writeListField(&b, "audience", c.Audience)
		writeListField(&b, "questions", c.QuestionTypes)
		b.WriteByte('\n')
	}
	if truncated {
		fmt.Fprintf(&b, "(index truncated at %d of %d chunks)\n", s.maxPromptChunks, entry.TotalChunks)
	}
	return b.String()
}

func writeListField(b *strings.Builder, name string, values []string) {
	if len(values) == 0 {
		return
	}
	if len(values) > maxPromptListItems {
		values = values[:maxPromptListItems]
	}
	fmt.Fprintf(b, " %s=[%s]", name, strings.Join(values, ", "))
}

// parseDecision is the single boundary between model output and control flow.
// Precedence: structured tool call, then sentinel scan, then Fallback. All
// sentinel-string fragility is isolated here.
func parseDecision(res *llm.Result) Decision {
	if res.ToolCall != nil && res.ToolCall.Name == selectToolName {
		var args struct {
			ChunkIDs   []string `json:"chunk_ids"`
			Reasoning  string   `json:"reasoning"`
			Confidence float64  `json:"confidence"`
		}
		if err := json.Unmarshal([]byte(res.ToolCall.Arguments), &args); err != nil {
			logger.Warn(fmt.Sprintf("malformed %s arguments, falling back: %v", selectToolName, err))
		} else if ids := dedupeIDs(args.ChunkIDs); len(ids) > 0 {
			return Decision{
				Kind:       DecisionSelect,
				ChunkIDs:   ids,
				Reasoning:  strings.TrimSpace(args.Reasoning),
				Confidence: clamp01(args.Confidence),
			}
		}
	}

	for _, line := range strings.Split(res.Text, "\n") {
		line = strings.TrimSpace(line)
		if strings.EqualFold(line, sentinelFallback) {
			return Decision{Kind: DecisionFallback}
		}
		if len(line) > len(sentinelClarify) && strings.EqualFold(line[:len(sentinelClarify)], sentinelClarify) {
			if msg := strings.TrimSpace(line[len(sentinelClarify):]); msg != "" {
				return Decision{Kind: DecisionClarify, Message: msg}
			}
		}
	}

	return Decision{Kind: DecisionFallback}
}

func dedupeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
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
