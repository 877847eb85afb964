package storage

import (
	"context"
	"time"

	"github.com/poiesic/hegemon/core"
)

// Filter narrows a vector similarity query to a metadata subset.
// Zero-value fields are ignored.
type Filter struct {
	// CompanyCodes restricts results to these companies. Empty means all.
	CompanyCodes []string
	// Types restricts results to these document types. Empty means all.
	Types []core.DocType
	// Since excludes chunks older than this instant when non-zero.
	Since time.Time
}

// DocumentRepository persists raw documents. Documents are immutable once
// stored; implementations must be safe for concurrent access.
type DocumentRepository interface {
	// AddDocuments stores one or more raw documents.
	// Sets InsertedAt if not already set. A document whose ID already
	// exists is overwritten with identical content (IDs are content hashes).
	AddDocuments(ctx context.Context, docs ...*core.RawDocument) error

	// GetDocument retrieves a single document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.RawDocument, error)

	// GetDocumentsByCompany retrieves documents for a company within
	// [from, to), optionally filtered by type, ordered by timestamp.
	// Empty types means all types.
	GetDocumentsByCompany(ctx context.Context, code string, types []core.DocType, from, to time.Time) ([]*core.RawDocument, error)

	// CountDocuments returns the total number of stored documents.
	CountDocuments(ctx context.Context) (int, error)

	// Close releases resources held by the repository.
	Close() error
}

// ChunkRepository persists embedded chunks and answers nearest-neighbor
// queries. Upserts are idempotent on chunk ID.
type ChunkRepository interface {
	// UpsertChunks stores chunks, skipping any whose ID already exists.
	// Returns the number of chunks actually written.
	UpsertChunks(ctx context.Context, chunks ...*core.Chunk) (int, error)

	// HasChunk reports whether a chunk with the given ID exists.
	HasChunk(ctx context.Context, id core.ID) (bool, error)

	// GetChunks retrieves chunks by ID. Missing IDs are silently skipped.
	GetChunks(ctx context.Context, ids ...core.ID) ([]*core.Chunk, error)

	// GetChunksByCompany retrieves chunks for a company within [from, to),
	// optionally filtered by type, ordered by timestamp.
	GetChunksByCompany(ctx context.Context, code string, types []core.DocType, from, to time.Time) ([]*core.Chunk, error)

	// FindSimilar returns up to limit chunks matching the filter, ordered
	// by similarity to the query vector (highest first, chunk ID ascending
	// on ties so repeated queries return identical orderings).
	FindSimilar(ctx context.Context, vector []float32, filter Filter, limit int) ([]*core.Evidence, error)

	// Close releases resources held by the repository.
	Close() error
}

// LedgerRepository is the run ledger: the single durable source of truth
// for ingestion progress, dedup state, and run history. All of its state
// survives process restart; no in-memory progress is authoritative.
type LedgerRepository interface {
	// HasSeen reports whether a content hash has been ingested before.
	HasSeen(ctx context.Context, hash core.ID) (bool, error)

	// MarkSeen records a content hash in the dedup index.
	// Marking an already-seen hash is a no-op.
	MarkSeen(ctx context.Context, hash core.ID) error

	// GetWatermark returns the cursor for a source.
	// Returns an empty cursor (not an error) for an unknown source.
	GetWatermark(ctx context.Context, sourceId string) (*core.Watermark, error)

	// AdvanceWatermark moves a source's cursor forward.
	// Returns ErrWatermarkRegression if the new cursor sorts before the
	// current one; equal cursors are accepted and rewritten.
	AdvanceWatermark(ctx context.Context, sourceId, cursor string) error

	// AppendRun appends a completed run record to the run log.
	// Run records are never mutated after this call.
	AppendRun(ctx context.Context, record *core.RunRecord) error

	// GetRuns returns the most recent run records, newest first.
	GetRuns(ctx context.Context, limit int) ([]*core.RunRecord, error)

	// Close releases resources held by the repository.
	Close() error
}
