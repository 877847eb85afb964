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


// Package retrieval ranks stored chunks against a query by combining
// vector similarity with recency decay.
package retrieval

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/hegemon/ai"
	"github.com/poiesic/hegemon/core"
	"github.com/poiesic/hegemon/storage"
)

// Params tunes the retrieval ranking.
type Params struct {
	// TopK is the default number of evidence chunks returned.
	TopK int
	// OverFetch multiplies TopK for the candidate pool fetched from
	// storage, so recency re-ranking has enough candidates to reorder.
	OverFetch int
	// HalfLife is the age at which a chunk's weight halves.
	HalfLife time.Duration
	// MinScore drops evidence whose composite score falls below it.
	MinScore float64
}

// DefaultParams returns the standard ranking parameters.
func DefaultParams() Params {
	return Params{
		TopK:      8,
		OverFetch: 4,
		HalfLife:  30 * 24 * time.Hour,
		MinScore:  0.0,
	}
}

// Query describes one retrieval request.
type Query struct {
	// CompanyCodes restricts results to these companies. Empty means all.
	CompanyCodes []string
	// Types restricts results to these document types. Empty means all.
	Types []core.DocType
	// FreeText is the text embedded and matched against chunk vectors.
	FreeText string
	// Since excludes chunks older than this instant when non-zero.
	Since time.Time
	// TopK overrides Params.TopK when positive.
	TopK int
}

// Engine retrieves the evidence chunks most relevant to a query.
type Engine struct {
	chunks   storage.ChunkRepository
	embedder ai.Embedder
	params   Params
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithParams overrides the default ranking parameters.
func WithParams(params Params) Option {
	return func(e *Engine) error {
		if params.TopK > 0 {
			e.params.TopK = params.TopK
		}
		if params.OverFetch > 0 {
			e.params.OverFetch = params.OverFetch
		}
		if params.HalfLife > 0 {
			e.params.HalfLife = params.HalfLife
		}
		if params.MinScore > 0 {
			e.params.MinScore = params.MinScore
		}
		return nil
	}
}

// WithClock sets the time source used for recency decay.
// Default is time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		if now != nil {
			e.now = now
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates a retrieval engine.
func NewEngine(chunks storage.ChunkRepository, embedder ai.Embedder, opts ...Option) (*Engine, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	e := &Engine{
		chunks:   chunks,
		embedder: embedder,
		params:   DefaultParams(),
		now:      time.Now,
		logger:   slog.Default().With("component", "retrieval"),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Search embeds the query text, fetches an over-provisioned candidate
// pool, re-ranks it by similarity weighted with recency decay, and
// returns the best chunk per document up to TopK.
//
// An empty result is a valid answer, not an error: it means nothing in
// the store matched the query above the score floor.
func (e *Engine) Search(ctx context.Context, query Query) ([]*core.Evidence, error) {
	text := strings.TrimSpace(query.FreeText)
	if text == "" {
		return nil, ErrEmptyQuery
	}

	topK := query.TopK
	if topK <= 0 {
		topK = e.params.TopK
	}

	vector, err := e.embedder.EmbedText(ctx, text)
	if err != nil {
		e.logger.Error("error generating embedding for query", "err", err)
		return nil, err
	}

	filter := storage.Filter{
		CompanyCodes: query.CompanyCodes,
		Types:        query.Types,
		Since:        query.Since,
	}
	candidates, err := e.chunks.FindSimilar(ctx, vector, filter, topK*e.params.OverFetch)
	if err != nil {
		e.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}

	now := e.now().UTC()

	// Re-score with recency and keep the best chunk per document, so a
	// long document cannot crowd out the rest of the evidence set.
	bestPerDoc := make(map[core.ID]*core.Evidence)
	for _, candidate := range candidates {
		composite := candidate.Score * recencyDecay(now.Sub(candidate.Chunk.Timestamp), e.params.HalfLife)
		if composite < e.params.MinScore {
			continue
		}

		scored := &core.Evidence{Chunk: candidate.Chunk, Score: composite}
		current, ok := bestPerDoc[candidate.Chunk.DocumentRef]
		if !ok || better(scored, current) {
			bestPerDoc[candidate.Chunk.DocumentRef] = scored
		}
	}

	results := make([]*core.Evidence, 0, len(bestPerDoc))
	for _, evidence := range bestPerDoc {
		results = append(results, evidence)
	}

	// Deterministic ordering: score descending, chunk ID ascending on
	// ties, so identical corpora always yield identical evidence.
	slices.SortFunc(results, func(a, b *core.Evidence) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.Chunk.Id < b.Chunk.Id:
			return -1
		case a.Chunk.Id > b.Chunk.Id:
			return 1
		default:
			return 0
		}
	})

	if len(results) > topK {
		results = results[:topK]
	}

	e.logger.Debug("search complete",
		"candidates", len(candidates), "results", len(results), "topK", topK)
	return results, nil
}

// better reports whether a outranks b under the same ordering Search uses.
func better(a, b *core.Evidence) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Chunk.Id < b.Chunk.Id
}

// recencyDecay halves a chunk's weight for every halfLife of age:
// 2^(-age/halfLife). Future-dated chunks are clamped to full weight.
func recencyDecay(age, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1
	}
	if age < 0 {
		age = 0
	}
	return math.Exp2(-float64(age) / float64(halfLife))
}
