package rag

import "time"

// ChunkMetadata is the compact per-chunk summary used for relevance
// classification. Records are immutable snapshots owned by a CacheEntry;
// full text is deliberately absent so classification prompts stay bounded.
type ChunkMetadata struct {
	ID              string   `json:"id"`
	DocumentID      string   `json:"document_id"`
	ChunkIndex      int      `json:"chunk_index"`
	Topics          []string `json:"topics,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	Entities        []string `json:"entities,omitempty"`
	DocumentSection string   `json:"document_section,omitempty"`
	ChunkType       string   `json:"chunk_type,omitempty"`
	HeadingContext  []string `json:"heading_context,omitempty"`
	Audience        []string `json:"audience,omitempty"`
	QuestionTypes   []string `json:"question_types,omitempty"`
}

// CacheEntry is one tenant's complete metadata snapshot. Entries are replaced
// wholesale on rebuild, never patched, so readers always observe an internally
// consistent view.
type CacheEntry struct {
	TenantID    string          `json:"tenant_id"`
	Chunks      []ChunkMetadata `json:"chunks"`
	TotalChunks int             `json:"total_chunks"`
	LastUpdated time.Time       `json:"last_updated"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

func (e *CacheEntry) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// knownIDs returns the set of chunk ids present in this snapshot.
func (e *CacheEntry) knownIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(e.Chunks))
	for _, c := range e.Chunks {
		ids[c.ID] = struct{}{}
	}
	return ids
}

// ChunkContent is a chunk's full text, fetched on demand and never cached.
type ChunkContent struct {
	ID              string   `json:"id"`
	DocumentID      string   `json:"document_id"`
	ChunkIndex      int      `json:"chunk_index"`
	Text            string   `json:"text"`
	DocumentSection string   `json:"document_section,omitempty"`
	HeadingContext  []string `json:"heading_context,omitempty"`
}

// DecisionKind discriminates the selector's three mutually exclusive outcomes.
type DecisionKind int

const (
	// DecisionFallback is the zero value: any outcome the parse boundary
	// cannot positively recognize degrades here, never to a chunk selection.
	DecisionFallback DecisionKind = iota
	DecisionSelect
	DecisionClarify
)

// Decision is the selector's tagged result. ChunkIDs/Reasoning/Confidence are
// meaningful only for DecisionSelect, Message only for DecisionClarify.
// Instances are produced exclusively by parseDecision.
type Decision struct {
	Kind       DecisionKind
	ChunkIDs   []string
	Reasoning  string
	Confidence float64
	Message    string
}

// ResponseType labels which path produced the answer, for observability only;
// it is never shown to end users.
type ResponseType string

const (
	ResponseIntelligent   ResponseType = "intelligent"
	ResponseFallback      ResponseType = "fallback"
	ResponseClarification ResponseType = "clarification"
	ResponseError         ResponseType = "error"
)

// ChunkUse records one chunk that grounded the answer.
type ChunkUse struct {
	ID         string `json:"id"`
	ChunkIndex int    `json:"chunk_index"`
	Section    string `json:"section,omitempty"`
	Preview    string `json:"preview"`
}

// Response is the contract returned to callers. Answer is always natural
// language regardless of path; no failure surfaces as anything else.
type Response struct {
	Success      bool         `json:"success"`
	Answer       string       `json:"answer"`
	ResponseType ResponseType `json:"response_type"`
	ChunksUsed   []ChunkUse   `json:"chunks_used"`
	Confidence   *float64     `json:"confidence,omitempty"`
	Reasoning    string       `json:"reasoning,omitempty"`
	FallbackUsed bool         `json:"fallback_used"`
	QueryID      string       `json:"query_id"`
	DurationMs   int64        `json:"duration_ms"`
}
