package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/hegemon/ai/mock"
	"github.com/poiesic/hegemon/core"
	"github.com/poiesic/hegemon/report"
	"github.com/poiesic/hegemon/retrieval"
	"github.com/poiesic/hegemon/storage"
	"github.com/poiesic/hegemon/storage/badger"
)

var exportBase = time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

func exportRegistry() *core.Registry {
	return core.NewRegistry([]core.Company{
		{Code: "005930", Name: "Samsung Electronics", Industry: "semiconductor"},
		{Code: "000660", Name: "SK Hynix", Industry: "semiconductor"},
	})
}

func seedCorpus(t *testing.T) (storage.DocumentRepository, storage.ChunkRepository) {
	t.Helper()

	docs, chunks, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	ctx := context.Background()
	records := []*core.RawDocument{
		{
			Id:          core.HashContent("samsung filing"),
			SourceId:    "dart:disclosures",
			ProviderRef: "20260801000001",
			CompanyCode: "005930",
			Type:        core.DocTypeDisclosure,
			Timestamp:   exportBase,
			Content:     "samsung filing",
		},
		{
			Id:          core.HashContent("samsung news"),
			SourceId:    "rss:news",
			CompanyCode: "005930",
			Type:        core.DocTypeNews,
			Timestamp:   exportBase.Add(time.Hour),
			Content:     "samsung news",
		},
		{
			Id:          core.HashContent("hynix news"),
			SourceId:    "rss:news",
			CompanyCode: "000660",
			Type:        core.DocTypeNews,
			Timestamp:   exportBase.Add(2 * time.Hour),
			Content:     "hynix news",
		},
	}
	require.NoError(t, docs.AddDocuments(ctx, records...))

	for _, doc := range records {
		chunk := &core.Chunk{
			Id:          core.ChunkID(doc.Id, 0),
			DocumentRef: doc.Id,
			CompanyCode: doc.CompanyCode,
			Type:        doc.Type,
			Offset:      0,
			Length:      len(doc.Content),
			Text:        doc.Content,
			Vector:      []float32{1, 0, 0},
			Timestamp:   doc.Timestamp,
		}
		_, err := chunks.UpsertChunks(ctx, chunk)
		require.NoError(t, err)
	}

	return docs, chunks
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	scanner := bufio.NewScanner(buf)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestNewExporterValidation(t *testing.T) {
	docs, chunks := seedCorpus(t)
	registry := exportRegistry()

	tests := []struct {
		name string
		fn   func() (*Exporter, error)
		want error
	}{
		{"nil documents", func() (*Exporter, error) {
			return NewExporter(nil, chunks, registry, nil)
		}, ErrDocumentRepositoryRequired},
		{"nil chunks", func() (*Exporter, error) {
			return NewExporter(docs, nil, registry, nil)
		}, ErrChunkRepositoryRequired},
		{"nil registry", func() (*Exporter, error) {
			return NewExporter(docs, chunks, nil, nil)
		}, ErrRegistryRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.fn()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExportDocuments(t *testing.T) {
	docs, chunks := seedCorpus(t)
	exporter, err := NewExporter(docs, chunks, exportRegistry(), slog.Default())
	require.NoError(t, err)

	var buf bytes.Buffer
	written, err := exporter.Documents(context.Background(), &buf, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "samsung filing", lines[0]["content"])
	assert.Equal(t, "disclosure", lines[0]["type"])
	assert.Equal(t, "20260801000001", lines[0]["provider_ref"])
}

func TestExportDocumentsFiltered(t *testing.T) {
	docs, chunks := seedCorpus(t)
	exporter, err := NewExporter(docs, chunks, exportRegistry(), slog.Default())
	require.NoError(t, err)

	t.Run("by company", func(t *testing.T) {
		var buf bytes.Buffer
		written, err := exporter.Documents(context.Background(), &buf, Filter{
			CompanyCodes: []string{"000660"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, written)
		assert.Equal(t, "hynix news", decodeLines(t, &buf)[0]["content"])
	})

	t.Run("by type", func(t *testing.T) {
		var buf bytes.Buffer
		written, err := exporter.Documents(context.Background(), &buf, Filter{
			Types: []core.DocType{core.DocTypeDisclosure},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, written)
	})

	t.Run("by time window", func(t *testing.T) {
		var buf bytes.Buffer
		written, err := exporter.Documents(context.Background(), &buf, Filter{
			From: exportBase.Add(30 * time.Minute),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, written)
	})
}

func TestExportChunks(t *testing.T) {
	docs, chunks := seedCorpus(t)
	exporter, err := NewExporter(docs, chunks, exportRegistry(), slog.Default())
	require.NoError(t, err)

	t.Run("vectors dropped by default", func(t *testing.T) {
		var buf bytes.Buffer
		written, err := exporter.Chunks(context.Background(), &buf, Filter{})
		require.NoError(t, err)
		assert.Equal(t, 3, written)

		for _, line := range decodeLines(t, &buf) {
			assert.NotContains(t, line, "vector")
		}
	})

	t.Run("vectors on request", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := exporter.Chunks(context.Background(), &buf, Filter{IncludeVectors: true})
		require.NoError(t, err)

		line := decodeLines(t, &buf)[0]
		require.Contains(t, line, "vector")
		assert.Len(t, line["vector"], 3)
	})
}

// trainingSearcher returns evidence only for companies it knows.
type trainingSearcher struct {
	evidence map[string][]*core.Evidence
}

func (s *trainingSearcher) Search(ctx context.Context, query retrieval.Query) ([]*core.Evidence, error) {
	if len(query.CompanyCodes) != 1 {
		return nil, nil
	}
	return s.evidence[query.CompanyCodes[0]], nil
}

func trainingExporterUnderTest(t *testing.T, searcher Searcher) (*TrainingExporter, *mock.MockGenerator) {
	t.Helper()
	generator := mock.NewMockGenerator()
	composer, err := report.NewComposer(generator)
	require.NoError(t, err)
	exporter, err := NewTrainingExporter(exportRegistry(), searcher, composer, slog.Default())
	require.NoError(t, err)
	return exporter, generator
}

func TestTrainingExport(t *testing.T) {
	searcher := &trainingSearcher{evidence: map[string][]*core.Evidence{
		"005930": {
			{
				Chunk: &core.Chunk{
					Id:          1,
					DocumentRef: 10,
					CompanyCode: "005930",
					Type:        core.DocTypeDisclosure,
					Text:        "Samsung reports record HBM orders.",
					Timestamp:   exportBase,
				},
				Score: 0.9,
			},
		},
	}}
	exporter, _ := trainingExporterUnderTest(t, searcher)

	var buf bytes.Buffer
	written, err := exporter.Export(context.Background(), &buf, nil)
	require.NoError(t, err)

	// Hynix has no evidence, so only the Samsung pair is written.
	assert.Equal(t, 1, written)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	line := lines[0]
	assert.Equal(t, "005930", line["company_code"])
	assert.Contains(t, line["system"], "equity research analyst")
	assert.Contains(t, line["prompt"], "Samsung Electronics (005930)")
	assert.Contains(t, line["prompt"], "record HBM orders")
	assert.Contains(t, line["response"], "## Overview")
	assert.Greater(t, line["confidence"], 0.0)
}

func TestTrainingExportUnknownCompany(t *testing.T) {
	exporter, _ := trainingExporterUnderTest(t, &trainingSearcher{})

	var buf bytes.Buffer
	_, err := exporter.Export(context.Background(), &buf, []string{"999999"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "999999"))
}

func TestTrainingExportNoEvidence(t *testing.T) {
	exporter, generator := trainingExporterUnderTest(t, &trainingSearcher{})

	var buf bytes.Buffer
	written, err := exporter.Export(context.Background(), &buf, nil)
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.Zero(t, generator.CallCount())
	assert.Zero(t, buf.Len())
}
