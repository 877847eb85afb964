package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/hegemon/ai/mock"
	"github.com/poiesic/hegemon/core"
	"github.com/poiesic/hegemon/report"
	"github.com/poiesic/hegemon/retrieval"
	"github.com/poiesic/hegemon/storage/badger"
)

// testSearcher implements Searcher with canned evidence.
type testSearcher struct {
	evidence []*core.Evidence
	err      error

	lastQuery retrieval.Query
}

func (s *testSearcher) Search(ctx context.Context, query retrieval.Query) ([]*core.Evidence, error) {
	s.lastQuery = query
	if s.err != nil {
		return nil, s.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.evidence, nil
}

func sampleEvidence() []*core.Evidence {
	return []*core.Evidence{
		{
			Chunk: &core.Chunk{
				Id:          42,
				DocumentRef: 7,
				CompanyCode: "005930",
				Type:        core.DocTypeNews,
				Text:        "Samsung expands advanced packaging capacity.",
				Timestamp:   time.Now().UTC().Add(-time.Hour),
			},
			Score: 0.85,
		},
	}
}

func newTestServer(t *testing.T, searcher Searcher, composer Composer, opts ...Option) *Server {
	t.Helper()

	docs, _, ledger, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	registry := core.NewRegistry([]core.Company{
		{Code: "005930", Name: "Samsung Electronics", Industry: "semiconductor"},
		{Code: "000660", Name: "SK Hynix", Industry: "semiconductor"},
		{Code: "035420", Name: "NAVER", Industry: "internet"},
	})

	return NewServer(registry, searcher, composer, docs, ledger, opts...)
}

func newTestComposer(t *testing.T) Composer {
	t.Helper()
	composer, err := report.NewComposer(mock.NewMockGenerator())
	require.NoError(t, err)
	return composer
}

func doRequest(t *testing.T, server *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodePrediction(t *testing.T, rec *httptest.ResponseRecorder) core.PredictionResponse {
	t.Helper()
	var response core.PredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	return response
}

func TestCompanyRoute(t *testing.T) {
	searcher := &testSearcher{evidence: sampleEvidence()}
	server := newTestServer(t, searcher, newTestComposer(t))

	rec := doRequest(t, server, "GET", "/hegemony/company/005930", "")
	require.Equal(t, http.StatusOK, rec.Code)

	response := decodePrediction(t, rec)
	assert.False(t, response.Fallback)
	assert.NotEmpty(t, response.Sections)
	assert.Equal(t, []core.ID{42}, response.SupportingChunks)
	assert.Greater(t, response.Confidence, 0.0)

	// Query scoped to the requested company
	assert.Equal(t, []string{"005930"}, searcher.lastQuery.CompanyCodes)
	assert.Contains(t, searcher.lastQuery.FreeText, "Samsung Electronics")
}

func TestCompanyRouteUnknown(t *testing.T) {
	server := newTestServer(t, &testSearcher{}, newTestComposer(t))

	rec := doRequest(t, server, "GET", "/hegemony/company/999999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NotFound")
}

func TestIndustryRoute(t *testing.T) {
	searcher := &testSearcher{evidence: sampleEvidence()}
	server := newTestServer(t, searcher, newTestComposer(t))

	rec := doRequest(t, server, "GET", "/hegemony/industry/semiconductor", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Both semiconductor companies in scope
	assert.ElementsMatch(t, []string{"005930", "000660"}, searcher.lastQuery.CompanyCodes)
}

func TestIndustryRouteUnknown(t *testing.T) {
	server := newTestServer(t, &testSearcher{}, newTestComposer(t))

	rec := doRequest(t, server, "GET", "/hegemony/industry/aerospace", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrendsRoute(t *testing.T) {
	searcher := &testSearcher{evidence: sampleEvidence()}
	server := newTestServer(t, searcher, newTestComposer(t))

	rec := doRequest(t, server, "GET", "/hegemony/trends", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// One report per tracked industry
	var responses []core.PredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &responses))
	assert.Len(t, responses, 2)
	for _, response := range responses {
		assert.NotEmpty(t, response.Sections)
	}
}

func TestPredictRoute(t *testing.T) {
	searcher := &testSearcher{evidence: sampleEvidence()}
	server := newTestServer(t, searcher, newTestComposer(t))

	rec := doRequest(t, server, "POST", "/hegemony/predict",
		`{"kind": "custom", "target": "HBM supply outlook", "top_k": 5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "HBM supply outlook", searcher.lastQuery.FreeText)
	assert.Equal(t, 5, searcher.lastQuery.TopK)
}

func TestPredictRouteBadRequests(t *testing.T) {
	server := newTestServer(t, &testSearcher{}, newTestComposer(t))

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"kind": `},
		{"unknown kind", `{"kind": "astrology", "target": "x"}`},
		{"missing target", `{"kind": "company"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, server, "POST", "/hegemony/predict", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "BadRequest")
		})
	}
}

func TestPredictFallbackOnNoEvidence(t *testing.T) {
	server := newTestServer(t, &testSearcher{}, newTestComposer(t))

	rec := doRequest(t, server, "GET", "/hegemony/company/005930", "")
	require.Equal(t, http.StatusOK, rec.Code)

	response := decodePrediction(t, rec)
	assert.True(t, response.Fallback)
	assert.Zero(t, response.Confidence)
}

func TestPredictTimeout(t *testing.T) {
	generator := mock.NewMockGenerator()
	generator.GenerateJSONFunc = func(ctx context.Context, system, user string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	composer, err := report.NewComposer(generator)
	require.NoError(t, err)

	server := newTestServer(t, &testSearcher{evidence: sampleEvidence()}, composer,
		WithTimeout(50*time.Millisecond))

	rec := doRequest(t, server, "GET", "/hegemony/company/005930", "")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), "TimeoutError")
	// No partial report alongside the timeout
	assert.NotContains(t, rec.Body.String(), "sections")
}

func TestPredictGenerationError(t *testing.T) {
	generator := mock.NewMockGenerator()
	generator.GenerateJSONFunc = func(ctx context.Context, system, user string) (string, error) {
		return "this is not json", nil
	}
	composer, err := report.NewComposer(generator)
	require.NoError(t, err)

	server := newTestServer(t, &testSearcher{evidence: sampleEvidence()}, composer)

	rec := doRequest(t, server, "GET", "/hegemony/company/005930", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "GenerationError")
}

func TestHealthRoute(t *testing.T) {
	docs, _, ledger, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()

	registry := core.NewRegistry(core.DefaultRoster())
	server := NewServer(registry, &testSearcher{}, newTestComposer(t), docs, ledger)

	t.Run("idle before any run", func(t *testing.T) {
		rec := doRequest(t, server, "GET", "/hegemony/health", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var health healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
		assert.Equal(t, "idle", health.Status)
		assert.Nil(t, health.LastRun)
	})

	t.Run("ok after successful run", func(t *testing.T) {
		run := &core.RunRecord{
			RunId:      1,
			StartedAt:  time.Now().UTC().Add(-time.Minute),
			FinishedAt: time.Now().UTC(),
			Sources:    map[string]core.SourceRunStats{"test:news": {Fetched: 3, New: 3}},
			Status:     core.RunStatusSuccess,
		}
		require.NoError(t, ledger.AppendRun(context.Background(), run))

		rec := doRequest(t, server, "GET", "/hegemony/health", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var health healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
		assert.Equal(t, "ok", health.Status)
		require.NotNil(t, health.LastRun)
		assert.Equal(t, "success", health.LastRun.Status)
		assert.Equal(t, 1, health.LastRun.Sources)
	})

	t.Run("degraded after failed run", func(t *testing.T) {
		run := &core.RunRecord{
			RunId:      2,
			StartedAt:  time.Now().UTC(),
			FinishedAt: time.Now().UTC(),
			Sources:    map[string]core.SourceRunStats{"test:news": {Err: "provider down"}},
			Status:     core.RunStatusFailed,
		}
		require.NoError(t, ledger.AppendRun(context.Background(), run))

		rec := doRequest(t, server, "GET", "/hegemony/health", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var health healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
		assert.Equal(t, "degraded", health.Status)
	})
}

func TestUnknownRoute(t *testing.T) {
	server := newTestServer(t, &testSearcher{}, newTestComposer(t))

	rec := doRequest(t, server, "GET", "/hegemony/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
