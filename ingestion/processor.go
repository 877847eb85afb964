// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/hegemon/ai"
	"github.com/poiesic/hegemon/chunk"
	"github.com/poiesic/hegemon/core"
	"github.com/poiesic/hegemon/storage"
)

// documentProcessor turns a stored raw document into embedded chunks.
// Chunk IDs derive from content hash and offset, so reprocessing the
// same document never embeds a chunk twice.
type documentProcessor struct {
	chunks   storage.ChunkRepository
	embedder ai.Embedder
	splitter *chunk.Splitter
	logger   *slog.Logger
}

func newDocumentProcessor(chunks storage.ChunkRepository, embedder ai.Embedder, splitter *chunk.Splitter, logger *slog.Logger) (*documentProcessor, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if splitter == nil {
		splitter = chunk.DefaultSplitter()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &documentProcessor{
		chunks:   chunks,
		embedder: embedder,
		splitter: splitter,
		logger:   logger.With("processor", "documents"),
	}, nil
}

// process splits the document, embeds the pieces not already stored,
// and upserts them. Returns the number of chunks written.
func (dp *documentProcessor) process(ctx context.Context, doc *core.RawDocument) (int, error) {
	pieces := dp.splitter.Split(doc.Id, doc.Content)
	if len(pieces) == 0 {
		return 0, nil
	}

	// Skip pieces whose chunk is already embedded and stored
	pending := make([]chunk.Piece, 0, len(pieces))
	for _, piece := range pieces {
		exists, err := dp.chunks.HasChunk(ctx, piece.Id)
		if err != nil {
			return 0, err
		}
		if !exists {
			pending = append(pending, piece)
		}
	}
	if len(pending) == 0 {
		dp.logger.Debug("document already fully embedded", "document", doc.Id)
		return 0, nil
	}

	texts := make([]string, len(pending))
	for i, piece := range pending {
		texts[i] = piece.Text
	}

	vectors, err := dp.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(pending) {
		return 0, fmt.Errorf("embedding result mismatch. expected %d, received %d", len(pending), len(vectors))
	}

	now := time.Now().UTC()
	records := make([]*core.Chunk, len(pending))
	for i, piece := range pending {
		records[i] = &core.Chunk{
			Id:          piece.Id,
			DocumentRef: doc.Id,
			CompanyCode: doc.CompanyCode,
			Type:        doc.Type,
			Offset:      piece.Offset,
			Length:      len(piece.Text),
			Text:        piece.Text,
			Vector:      vectors[i],
			Timestamp:   doc.Timestamp,
			InsertedAt:  now,
		}
	}

	written, err := dp.chunks.UpsertChunks(ctx, records...)
	if err != nil {
		return 0, err
	}

	dp.logger.Debug("embedded document chunks",
		"document", doc.Id, "pieces", len(pieces), "written", written)
	return written, nil
}
