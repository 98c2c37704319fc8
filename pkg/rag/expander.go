package rag

import (
	"context"
	"fmt"
	"sort"

	"github.com/Vikiflow-Dev-Design/chat-app-sub001/pkg/logger"
)

// ContextExpander turns selected chunk ids into full content and restores
// paragraph-level continuity by pulling each chunk's immediate neighbors in
// the same document. Cost is bounded: at most two extra chunks per selection.
type ContextExpander struct {
	store        ChunkStore
	maxChunks    int
	neighborScan int
}

func NewContextExpander(store ChunkStore, maxChunks, neighborScan int) *ContextExpander {
	if maxChunks <= 0 {
		maxChunks = 10
	}
	if neighborScan <= 0 {
		neighborScan = 500
	}
	return &ContextExpander{store: store, maxChunks: maxChunks, neighborScan: neighborScan}
}

// Expand fetches the selected chunks in one batch, adds chunk-index neighbors,
// and returns everything in reading order (ascending chunk index). Ids that
// vanished since selection are skipped silently: a race with deletion must
// not fail the whole request.
func (e *ContextExpander) Expand(ctx context.Context, tenantID string, chunkIDs []string) ([]ChunkContent, error) {
	if len(chunkIDs) > e.maxChunks {
		logger.Warn(fmt.Sprintf("chunk selection capped at %d of %d for tenant %s", e.maxChunks, len(chunkIDs), tenantID))
		chunkIDs = chunkIDs[:e.maxChunks]
	}

	selected, err := e.store.FetchChunks(ctx, tenantID, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch chunks: %v", ErrStoreUnavailable, err)
	}
	if len(selected) < len(chunkIDs) {
		logger.Debug(fmt.Sprintf("%d selected chunks no longer present for tenant %s", len(chunkIDs)-len(selected), tenantID))
	}

	result := make([]ChunkContent, 0, len(selected)*3)
	seen := make(map[string]struct{}, len(selected)*3)
	for _, c := range selected {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		result = append(result, c)
	}

	// One document fetch per distinct source document, reused across the
	// selected chunks it contains.
	docChunks := make(map[string][]ChunkContent)
	for _, c := range selected {
		doc, ok := docChunks[c.DocumentID]
		if !ok {
			doc, err = e.store.FetchDocumentChunks(ctx, tenantID, c.DocumentID, e.neighborScan)
			if err != nil {
				return nil, fmt.Errorf("%w: fetch document %s: %v", ErrStoreUnavailable, c.DocumentID, err)
			}
			docChunks[c.DocumentID] = doc
		}
		for _, n := range doc {
			if n.ChunkIndex != c.ChunkIndex-1 && n.ChunkIndex != c.ChunkIndex+1 {
				continue
			}
			if _, ok := seen[n.ID]; ok {
				continue
			}
			seen[n.ID] = struct{}{}
			result = append(result, n)
		}
	}

	// Reading order wins over selection order.
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].ChunkIndex == result[j].ChunkIndex {
			if result[i].DocumentID == result[j].DocumentID {
				return result[i].ID < result[j].ID
			}
			return result[i].DocumentID < result[j].DocumentID
		}
		return result[i].ChunkIndex < result[j].ChunkIndex
	})
	return result, nil
}
