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


// Package export writes stored corpus data as JSON Lines: one JSON
// object per line, streamed through an io.Writer. It covers raw
// document dumps, chunk dumps, and prompt/response pairs suitable for
// fine-tuning datasets.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/hegemon/core"
	"github.com/poiesic/hegemon/storage"
)

// Filter narrows an export to a slice of the corpus.
// Zero-value fields are ignored.
type Filter struct {
	// CompanyCodes restricts the export to these companies. Empty means
	// every company in the registry.
	CompanyCodes []string
	// Types restricts the export to these document types.
	Types []core.DocType
	// From excludes items older than this instant when non-zero.
	From time.Time
	// To excludes items at or after this instant when non-zero.
	To time.Time
	// IncludeVectors keeps embedding vectors in chunk records. They are
	// dropped by default because they dominate the output size.
	IncludeVectors bool
}

func (f Filter) window() (time.Time, time.Time) {
	from, to := f.From, f.To
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}
	return from, to
}

// Exporter streams stored documents and chunks as JSONL.
type Exporter struct {
	docs     storage.DocumentRepository
	chunks   storage.ChunkRepository
	registry *core.Registry
	logger   *slog.Logger
}

// documentRecord is one exported document line.
type documentRecord struct {
	Id          core.ID   `json:"id"`
	SourceId    string    `json:"source_id"`
	ProviderRef string    `json:"provider_ref,omitempty"`
	CompanyCode string    `json:"company_code"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	Content     string    `json:"content"`
}

// chunkRecord is one exported chunk line.
type chunkRecord struct {
	Id          core.ID   `json:"id"`
	DocumentRef core.ID   `json:"document_ref"`
	CompanyCode string    `json:"company_code"`
	Type        string    `json:"type"`
	Offset      int       `json:"offset"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
	Vector      []float32 `json:"vector,omitempty"`
}

// NewExporter creates an exporter over the given repositories.
func NewExporter(docs storage.DocumentRepository, chunks storage.ChunkRepository, registry *core.Registry, logger *slog.Logger) (*Exporter, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		docs:     docs,
		chunks:   chunks,
		registry: registry,
		logger:   logger.With("component", "export"),
	}, nil
}

// companies resolves the filter's company scope against the registry.
func (e *Exporter) companies(filter Filter) []string {
	if len(filter.CompanyCodes) > 0 {
		return filter.CompanyCodes
	}
	all := e.registry.Companies()
	codes := make([]string, len(all))
	for i, company := range all {
		codes[i] = company.Code
	}
	return codes
}

// Documents writes every matching raw document as one JSON line and
// returns the number of lines written.
func (e *Exporter) Documents(ctx context.Context, w io.Writer, filter Filter) (int, error) {
	encoder := json.NewEncoder(w)
	from, to := filter.window()
	written := 0

	for _, code := range e.companies(filter) {
		docs, err := e.docs.GetDocumentsByCompany(ctx, code, filter.Types, from, to)
		if err != nil {
			return written, fmt.Errorf("error listing documents for %s: %w", code, err)
		}
		for _, doc := range docs {
			record := documentRecord{
				Id:          doc.Id,
				SourceId:    doc.SourceId,
				ProviderRef: doc.ProviderRef,
				CompanyCode: doc.CompanyCode,
				Type:        doc.Type.String(),
				Timestamp:   doc.Timestamp,
				Content:     doc.Content,
			}
			if err := encoder.Encode(record); err != nil {
				return written, fmt.Errorf("error encoding document %d: %w", doc.Id, err)
			}
			written++
		}
	}

	e.logger.Info("document export complete", "written", written)
	return written, nil
}

// Chunks writes every matching chunk as one JSON line and returns the
// number of lines written. Vectors are included only when the filter
// asks for them.
func (e *Exporter) Chunks(ctx context.Context, w io.Writer, filter Filter) (int, error) {
	encoder := json.NewEncoder(w)
	from, to := filter.window()
	written := 0

	for _, code := range e.companies(filter) {
		chunks, err := e.chunks.GetChunksByCompany(ctx, code, filter.Types, from, to)
		if err != nil {
			return written, fmt.Errorf("error listing chunks for %s: %w", code, err)
		}
		for _, chunk := range chunks {
			record := chunkRecord{
				Id:          chunk.Id,
				DocumentRef: chunk.DocumentRef,
				CompanyCode: chunk.CompanyCode,
				Type:        chunk.Type.String(),
				Offset:      chunk.Offset,
				Text:        chunk.Text,
				Timestamp:   chunk.Timestamp,
			}
			if filter.IncludeVectors {
				record.Vector = chunk.Vector
			}
			if err := encoder.Encode(record); err != nil {
				return written, fmt.Errorf("error encoding chunk %d: %w", chunk.Id, err)
			}
			written++
		}
	}

	e.logger.Info("chunk export complete", "written", written)
	return written, nil
}

// renderSections flattens report sections into a single markdown-ish
// completion string.
func renderSections(sections []core.Section) string {
	var b strings.Builder
	for i, section := range sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## ")
		b.WriteString(section.Title)
		b.WriteString("\n")
		b.WriteString(section.Body)
	}
	return b.String()
}
