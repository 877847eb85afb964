package ingestion

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/hegemon/ai"
	"github.com/poiesic/hegemon/chunk"
	"github.com/poiesic/hegemon/core"
	"github.com/poiesic/hegemon/storage"
)

// Backfiller re-chunks and re-embeds stored documents. Chunk IDs are
// content-derived, so only pieces missing from the chunk store are
// embedded; a completed backfill is a no-op to repeat. Useful after an
// embedding outage left documents stored but not vectorized, or after
// the chunking window changed.
type Backfiller struct {
	docs     storage.DocumentRepository
	registry *core.Registry
	proc     *documentProcessor
	logger   *slog.Logger
}

// BackfillResult summarizes one backfill pass.
type BackfillResult struct {
	Documents int // documents visited
	Written   int // chunks newly embedded and stored
}

// NewBackfiller creates a backfill pass over the document store.
func NewBackfiller(
	docs storage.DocumentRepository,
	chunks storage.ChunkRepository,
	registry *core.Registry,
	embedder ai.Embedder,
	splitter *chunk.Splitter,
) (*Backfiller, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}

	logger := slog.Default().With("component", "backfill")
	proc, err := newDocumentProcessor(chunks, embedder, splitter, logger)
	if err != nil {
		return nil, err
	}

	return &Backfiller{
		docs:     docs,
		registry: registry,
		proc:     proc,
		logger:   logger,
	}, nil
}

// Run visits every stored document for every registered company and
// embeds whatever chunks are missing. Stops at the first storage or
// exhausted-retry error.
func (b *Backfiller) Run(ctx context.Context) (*BackfillResult, error) {
	result := &BackfillResult{}
	horizon := time.Now().UTC().Add(24 * time.Hour)

	for _, company := range b.registry.Companies() {
		docs, err := b.docs.GetDocumentsByCompany(ctx, company.Code, nil, time.Time{}, horizon)
		if err != nil {
			return result, err
		}

		for _, doc := range docs {
			written, err := b.proc.process(ctx, doc)
			if err != nil {
				return result, err
			}
			result.Documents++
			result.Written += written
		}

		b.logger.Debug("backfilled company", "code", company.Code, "documents", len(docs))
	}

	b.logger.Info("backfill complete", "documents", result.Documents, "written", result.Written)
	return result, nil
}
