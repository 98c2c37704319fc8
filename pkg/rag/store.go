package rag

import "context"

// ChunkStore is the document/metadata store collaborator. It isolates storage
// concerns so backends can be swapped without changing the orchestration
// layer. No vector or embedding operations are required here: retrieval is
// driven by metadata classification, not nearest-neighbor search.
//
// Mutation pathways (ingestion, deletes) live outside this core; whoever
// mutates chunks must call MetadataCache.Invalidate afterwards. The core
// never polls for external changes.
type ChunkStore interface {
	// ListChunkMetadata returns the metadata of every chunk the tenant owns.
	ListChunkMetadata(ctx context.Context, tenantID string) ([]ChunkMetadata, error)

	// FetchChunks returns full content for the given ids in one batched call.
	// Ids that no longer exist are omitted from the result, not errors: a
	// selection can race with a deletion.
	FetchChunks(ctx context.Context, tenantID string, ids []string) ([]ChunkContent, error)

	// FetchDocumentChunks returns up to limit chunks of one document ordered
	// by chunk index, for neighbor lookups.
	FetchDocumentChunks(ctx context.Context, tenantID, documentID string, limit int) ([]ChunkContent, error)
}
