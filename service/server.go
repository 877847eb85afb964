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


// Package service exposes the prediction pipeline over HTTP. Handlers
// are stateless and read-only: they retrieve evidence, compose a report,
// and never write to storage.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/poiesic/hegemon/core"
	"github.com/poiesic/hegemon/report"
	"github.com/poiesic/hegemon/retrieval"
	"github.com/poiesic/hegemon/storage"
)

// defaultTimeout bounds one prediction request end to end, generation
// included.
const defaultTimeout = 60 * time.Second

// Searcher retrieves evidence for a query.
type Searcher interface {
	Search(ctx context.Context, query retrieval.Query) ([]*core.Evidence, error)
}

// Composer turns evidence into a prediction report.
type Composer interface {
	Compose(ctx context.Context, subject string, evidence []*core.Evidence) (*core.PredictionResponse, error)
}

// Server is the HTTP server for prediction requests.
type Server struct {
	registry *core.Registry
	searcher Searcher
	composer Composer
	docs     storage.DocumentRepository
	ledger   storage.LedgerRepository
	timeout  time.Duration
	logger   *slog.Logger
	mux      *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithTimeout sets the per-request deadline. Default is 60s.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates the prediction HTTP server.
func NewServer(
	registry *core.Registry,
	searcher Searcher,
	composer Composer,
	docs storage.DocumentRepository,
	ledger storage.LedgerRepository,
	opts ...Option,
) *Server {
	s := &Server{
		registry: registry,
		searcher: searcher,
		composer: composer,
		docs:     docs,
		ledger:   ledger,
		timeout:  defaultTimeout,
		logger:   slog.Default().With("component", "service"),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /hegemony/predict", s.handlePredict)
	s.mux.HandleFunc("GET /hegemony/company/{company}", s.handleCompany)
	s.mux.HandleFunc("GET /hegemony/industry/{industry}", s.handleIndustry)
	s.mux.HandleFunc("GET /hegemony/trends", s.handleTrends)
	s.mux.HandleFunc("GET /hegemony/health", s.handleHealth)
}

// predictRequest is the POST /hegemony/predict body.
type predictRequest struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
	TopK   int    `json:"top_k"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "BadRequest", "malformed request body")
		return
	}

	var kind core.PredictionKind
	switch strings.ToLower(strings.TrimSpace(req.Kind)) {
	case "company":
		kind = core.PredictionKindCompany
	case "industry":
		kind = core.PredictionKindIndustry
	case "trends":
		kind = core.PredictionKindTrends
	case "custom":
		kind = core.PredictionKindCustom
	default:
		s.writeError(w, http.StatusBadRequest, "BadRequest", fmt.Sprintf("unknown prediction kind %q", req.Kind))
		return
	}

	if kind == core.PredictionKindTrends {
		s.predictTrends(w, r, req.TopK)
		return
	}

	if strings.TrimSpace(req.Target) == "" {
		s.writeError(w, http.StatusBadRequest, "BadRequest", "target is required")
		return
	}

	s.predict(w, r, core.PredictionRequest{Kind: kind, Target: req.Target, TopK: req.TopK})
}

func (s *Server) handleCompany(w http.ResponseWriter, r *http.Request) {
	s.predict(w, r, core.PredictionRequest{
		Kind:   core.PredictionKindCompany,
		Target: r.PathValue("company"),
	})
}

func (s *Server) handleIndustry(w http.ResponseWriter, r *http.Request) {
	s.predict(w, r, core.PredictionRequest{
		Kind:   core.PredictionKindIndustry,
		Target: r.PathValue("industry"),
	})
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	s.predictTrends(w, r, 0)
}

// predictTrends composes one report per tracked industry and returns
// the aggregate. All reports share the request deadline; any failure
// fails the whole request, never a partial list.
func (s *Server) predictTrends(w http.ResponseWriter, r *http.Request, topK int) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	responses := make([]*core.PredictionResponse, 0, len(s.registry.Industries()))
	for _, industry := range s.registry.Industries() {
		subject, query, ok := s.resolve(w, core.PredictionRequest{
			Kind:   core.PredictionKindIndustry,
			Target: industry,
			TopK:   topK,
		})
		if !ok {
			return
		}

		evidence, err := s.searcher.Search(ctx, query)
		if err != nil {
			s.writeFailure(w, ctx, err)
			return
		}

		response, err := s.composer.Compose(ctx, subject, evidence)
		if err != nil {
			s.writeFailure(w, ctx, err)
			return
		}
		responses = append(responses, response)
	}

	s.writeJSON(w, http.StatusOK, responses)
}

// predict resolves the request into a retrieval query, gathers evidence,
// and composes the report, all under one request deadline. A deadline
// hit returns a timeout error, never a partial report.
func (s *Server) predict(w http.ResponseWriter, r *http.Request, req core.PredictionRequest) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	subject, query, ok := s.resolve(w, req)
	if !ok {
		return
	}

	evidence, err := s.searcher.Search(ctx, query)
	if err != nil {
		s.writeFailure(w, ctx, err)
		return
	}

	response, err := s.composer.Compose(ctx, subject, evidence)
	if err != nil {
		s.writeFailure(w, ctx, err)
		return
	}

	s.writeJSON(w, http.StatusOK, response)
}

// resolve maps a prediction request onto a subject line and a retrieval
// query. Writes the error response itself when resolution fails.
func (s *Server) resolve(w http.ResponseWriter, req core.PredictionRequest) (string, retrieval.Query, bool) {
	query := retrieval.Query{TopK: req.TopK}

	switch req.Kind {
	case core.PredictionKindCompany:
		company, ok := s.registry.Resolve(req.Target)
		if !ok {
			s.writeError(w, http.StatusNotFound, "NotFound", fmt.Sprintf("unknown company %q", req.Target))
			return "", query, false
		}
		subject := fmt.Sprintf("%s (%s)", company.Name, company.Code)
		query.CompanyCodes = []string{company.Code}
		query.FreeText = fmt.Sprintf(
			"Recent disclosures, news, and market activity for %s (%s) in the %s industry",
			company.Name, company.Code, company.Industry)
		return subject, query, true

	case core.PredictionKindIndustry:
		companies := s.registry.ByIndustry(req.Target)
		if len(companies) == 0 {
			s.writeError(w, http.StatusNotFound, "NotFound", fmt.Sprintf("unknown industry %q", req.Target))
			return "", query, false
		}
		codes := make([]string, len(companies))
		names := make([]string, len(companies))
		for i, company := range companies {
			codes[i] = company.Code
			names[i] = company.Name
		}
		query.CompanyCodes = codes
		query.FreeText = fmt.Sprintf(
			"Recent developments across the %s industry: %s",
			req.Target, strings.Join(names, ", "))
		return fmt.Sprintf("%s industry", req.Target), query, true

	case core.PredictionKindCustom:
		query.FreeText = req.Target
		return req.Target, query, true

	default:
		s.writeError(w, http.StatusBadRequest, "BadRequest", "unknown prediction kind")
		return "", query, false
	}
}

// writeFailure maps a pipeline error to an HTTP status. The deadline
// check comes first: a generation aborted by the request deadline is a
// timeout, not a generation failure.
func (s *Server) writeFailure(w http.ResponseWriter, ctx context.Context, err error) {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("request deadline exceeded")
		s.writeError(w, http.StatusGatewayTimeout, "TimeoutError", "prediction did not complete in time")
	case errors.Is(err, report.ErrGenerationFailed):
		s.logger.Error("generation failure", "err", err)
		s.writeError(w, http.StatusBadGateway, "GenerationError", "report generation failed")
	case errors.Is(err, retrieval.ErrEmptyQuery):
		s.writeError(w, http.StatusBadRequest, "BadRequest", "query text required")
	default:
		s.logger.Error("prediction failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, "InternalError", "prediction failed")
	}
}

// healthResponse is the GET /hegemony/health body.
type healthResponse struct {
	Status    string   `json:"status"`
	Documents int      `json:"documents"`
	LastRun   *lastRun `json:"last_run,omitempty"`
}

type lastRun struct {
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Sources    int       `json:"sources"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	count, err := s.docs.CountDocuments(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "InternalError", "storage unavailable")
		return
	}

	runs, err := s.ledger.GetRuns(ctx, 1)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "InternalError", "storage unavailable")
		return
	}

	health := healthResponse{Status: "idle", Documents: count}
	if len(runs) > 0 {
		run := runs[0]
		health.LastRun = &lastRun{
			Status:     run.Status.String(),
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			Sources:    len(run.Sources),
		}
		if run.Status == core.RunStatusSuccess {
			health.Status = "ok"
		} else {
			health.Status = "degraded"
		}
	}

	s.writeJSON(w, http.StatusOK, health)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("error encoding response", "err", err)
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// Serve runs the server on addr until the context is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
