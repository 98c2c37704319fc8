package rag

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/Vikiflow-Dev-Design/chat-app-sub001/pkg/llm"
	"github.com/Vikiflow-Dev-Design/chat-app-sub001/pkg/logger"
)

// QueryKind is the fallback policy's classification of a query, checked in
// priority order. Identity always wins regardless of cache state.
type QueryKind int

const (
	QueryGeneral QueryKind = iota
	QueryIdentity
	QueryCapability
	QueryRoleReversal
	QueryOutOfDomain
)

// DomainClassifier decides whether a query belongs to a category known to be
// outside the tenant's mandate. It is a small interface so the keyword
// denylist can later be replaced by a trained classifier without touching the
// policy state machine.
type DomainClassifier interface {
	Classify(query string) (category string, outOfDomain bool)
}

// categoryTriggers maps supported out-of-domain categories to the phrases
// that fire them. Config selects which categories are active.
var categoryTriggers = map[string][]string{
	"weather": {"weather", "temperature outside", "forecast", "raining", "snowing", "sunny today"},
	"news":    {"latest news", "current events", "breaking news", "what happened today"},
	"sports":  {"game score", "match result", "who won the game", "league standings"},
	"stocks":  {"stock price", "share price", "market today", "crypto price"},
	"lottery": {"lottery", "winning numbers", "jackpot"},
}

type keywordDomainClassifier struct {
	categories []string
}

// NewKeywordDomainClassifier builds the default denylist classifier from the
// configured category names; unknown names are ignored with a warning.
func NewKeywordDomainClassifier(categories []string) DomainClassifier {
	active := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := categoryTriggers[c]; !ok {
			logger.Warn(fmt.Sprintf("unknown out-of-domain category %q ignored", c))
			continue
		}
		active = append(active, c)
	}
	return &keywordDomainClassifier{categories: active}
}

func (k *keywordDomainClassifier) Classify(query string) (string, bool) {
	q := normalizeQuery(query)
	for _, cat := range k.categories {
		for _, trigger := range categoryTriggers[cat] {
			if strings.Contains(q, trigger) {
				return cat, true
			}
		}
	}
	return "", false
}

// FallbackPolicy produces safe, content-free responses for every query that
// bypasses chunk-grounded retrieval. It is a hard guard rail in front of the
// generative model, not a soft suggestion: an unconstrained model will answer
// from world knowledge unless explicitly blocked.
type FallbackPolicy struct {
	model            llm.Model
	classifier       DomainClassifier
	chatTemperature  float64
	suggestionLimit  int
	attemptThreshold float64
}

func NewFallbackPolicy(model llm.Model, classifier DomainClassifier, chatTemperature float64, suggestionLimit int, attemptThreshold float64) *FallbackPolicy {
	if suggestionLimit <= 0 {
		suggestionLimit = 5
	}
	if attemptThreshold <= 0 {
		attemptThreshold = 0.5
	}
	return &FallbackPolicy{
		model:            model,
		classifier:       classifier,
		chatTemperature:  chatTemperature,
		suggestionLimit:  suggestionLimit,
		attemptThreshold: attemptThreshold,
	}
}

const apologyText = "I'm sorry, I ran into a problem while putting an answer together. Please try again in a moment."

var identityPhrases = []string{
	"who are you", "what are you", "are you a bot", "are you a robot",
	"are you human", "are you real", "what is your name", "whats your name",
	"tell me about yourself", "introduce yourself",
}

var capabilityPhrases = []string{
	"what can you do", "what can you help", "how can you help me",
	"what do you know", "what topics", "what can i ask", "what questions can",
	"what are you able to",
}

var roleReversalPhrases = []string{
	"can i help you", "how can i help you", "do you need help",
	"do you need anything", "what do you need", "let me help you",
	"is there anything i can do for you",
}

// Respond resolves the query through the priority-ordered state machine and
// always returns displayable text. It never returns an error: every internal
// failure degrades to a fixed safe text.
func (p *FallbackPolicy) Respond(ctx context.Context, query string, entry *CacheEntry, persona string) (string, QueryKind) {
	kind := p.classifyQuery(query)
	switch kind {
	case QueryIdentity:
		return p.identityText(persona), kind
	case QueryCapability:
		return p.capabilityText(entry), kind
	case QueryRoleReversal:
		return "That's kind of you! I'm here to help you, though. Ask me anything about the topics I cover and I'll do my best.", kind
	case QueryOutOfDomain:
		category, _ := p.classifier.Classify(query)
		return p.outOfDomainText(ctx, query, category, persona), kind
	default:
		return p.generalText(ctx, query, persona), kind
	}
}

func (p *FallbackPolicy) classifyQuery(query string) QueryKind {
	q := normalizeQuery(query)
	if matchesAny(q, identityPhrases) {
		return QueryIdentity
	}
	if matchesAny(q, capabilityPhrases) {
		return QueryCapability
	}
	if matchesAny(q, roleReversalPhrases) {
		return QueryRoleReversal
	}
	if _, out := p.classifier.Classify(query); out {
		return QueryOutOfDomain
	}
	return QueryGeneral
}

func (p *FallbackPolicy) identityText(persona string) string {
	name := strings.TrimSpace(persona)
	if name == "" {
		return "I'm an assistant that answers questions from a curated knowledge base. I don't browse the web or answer from outside that material, but within it I'm happy to dig in."
	}
	return fmt.Sprintf("I'm %s, an assistant that answers questions from a curated knowledge base. I stick to that material, but within it I'm happy to dig in.", name)
}

// capabilityText samples suggestion bullets from the tenant's current
// knowledge summary. The summary is recomputed on every call and sampled
// randomly, so repeated asks surface different corners of the knowledge base.
func (p *FallbackPolicy) capabilityText(entry *CacheEntry) string {
	summary := knowledgeSummary(entry)
	if len(summary) == 0 {
		return "I can answer questions about the material I've been given. My knowledge base looks empty right now, so there may not be much I can help with yet. Try asking about a specific topic and I'll tell you what I know."
	}

	rand.Shuffle(len(summary), func(i, j int) {
		summary[i], summary[j] = summary[j], summary[i]
	})
	if len(summary) > p.suggestionLimit {
		summary = summary[:p.suggestionLimit]
	}

	var b strings.Builder
	b.WriteString("I can help with questions about the material in my knowledge base. For example, you could ask me about:\n")
	for _, s := range summary {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	b.WriteString("What would you like to know?")
	return b.String()
}

func boundaryStatement(category string) string {
	if category == "" {
		return "That's outside the material I can speak to, so I can't help with it. I'm happy to answer questions about the topics in my knowledge base instead."
	}
	return fmt.Sprintf("Questions about %s are outside the material I can speak to, so I can't help with that. I'm happy to answer questions about the topics in my knowledge base instead.", category)
}

// outOfDomainText lets the persona phrase the refusal, but the generated text
// only survives if it carries boundary phrasing and does not read as an
// answer attempt. Anything else is overridden by the fixed boundary
// statement: the domain guarantee is not negotiable.
func (p *FallbackPolicy) outOfDomainText(ctx context.Context, query, category, persona string) string {
	fixed := boundaryStatement(category)
	system := "You are a knowledge-base assistant. The user's question is outside the material you can speak to. Politely decline, say the topic is outside your knowledge base, and invite a question you can help with. Do not answer the question, even partially."
	if pers := strings.TrimSpace(persona); pers != "" {
		system += " Stay in character: " + pers + "."
	}
	res, err := p.model.Complete(ctx, llm.Request{
		System:      system,
		Prompt:      query,
		Temperature: p.chatTemperature,
		MaxTokens:   300,
	})
	if err != nil {
		return fixed
	}
	text := strings.TrimSpace(res.Text)
	if text == "" || !containsBoundaryPhrase(text) {
		return fixed
	}
	if answerAttemptScore(text) >= p.attemptThreshold {
		logger.Warn(fmt.Sprintf("out-of-domain answer attempt overridden (category=%s)", category))
		return fixed
	}
	return text
}

func (p *FallbackPolicy) generalText(ctx context.Context, query, persona string) string {
	system := "You are a friendly knowledge-base assistant chatting with a user. No retrieved context applies to this message. Respond conversationally and briefly; do not present factual claims from outside your knowledge base as authoritative."
	if pers := strings.TrimSpace(persona); pers != "" {
		system += " Stay in character: " + pers + "."
	}
	res, err := p.model.Complete(ctx, llm.Request{
		System:      system,
		Prompt:      query,
		Temperature: p.chatTemperature,
		MaxTokens:   500,
	})
	if err != nil {
		logger.Warn(fmt.Sprintf("fallback generation failed: %v", err))
		return apologyText
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return apologyText
	}
	return text
}

// knowledgeSummary unions the topics and keywords currently cached for the
// tenant. Deliberately not cached: it is cheap, and freshness beats reuse.
func knowledgeSummary(entry *CacheEntry) []string {
	if entry == nil {
		return nil
	}
	seen := make(map[string]struct{})
	out := make([]string, 0, 32)
	add := func(values []string) {
		for _, v := range values {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	for _, c := range entry.Chunks {
		add(c.Topics)
		add(c.Keywords)
	}
	sort.Strings(out)
	return out
}

// Answer-attempt detection is a tunable heuristic, not a contract: the phrase
// lists and threshold are policy knobs expected to evolve.
var answerAttemptPhrases = []string{
	"you should", "you can", "here's how", "here is how", "the answer is",
	"typically", "generally", "usually", "first,", "step 1", "to do this",
}

var hedgePhrases = []string{
	"i think", "probably", "it depends", "might be", "as far as i know",
	"i believe",
}

var boundaryPhrases = []string{
	"outside", "can't help with", "cannot help with", "don't have information",
	"do not have information", "knowledge base", "not something i can",
	"beyond what i", "not able to answer",
}

func answerAttemptScore(text string) float64 {
	t := strings.ToLower(text)
	score := 0.0
	for _, phrase := range answerAttemptPhrases {
		if strings.Contains(t, phrase) {
			score += 0.25
		}
	}
	for _, phrase := range hedgePhrases {
		if strings.Contains(t, phrase) {
			score += 0.15
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

func containsBoundaryPhrase(text string) bool {
	t := strings.ToLower(text)
	for _, phrase := range boundaryPhrases {
		if strings.Contains(t, phrase) {
			return true
		}
	}
	return false
}

func matchesAny(normalized string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}
	return false
}

// normalizeQuery lowercases and strips punctuation so phrase matching is not
// defeated by "Who are you?!".
func normalizeQuery(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	for _, r := range strings.ToLower(query) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		case r == '\t' || r == '\n':
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
