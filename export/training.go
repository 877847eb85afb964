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


package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/hegemon/core"
	"github.com/poiesic/hegemon/report"
	"github.com/poiesic/hegemon/retrieval"
)

// Searcher retrieves evidence for a query.
type Searcher interface {
	Search(ctx context.Context, query retrieval.Query) ([]*core.Evidence, error)
}

// Composer turns evidence into a prediction report.
type Composer interface {
	Compose(ctx context.Context, subject string, evidence []*core.Evidence) (*core.PredictionResponse, error)
}

// TrainingExporter produces prompt/response pairs for fine-tuning by
// running the live retrieval and composition pipeline over each tracked
// company and recording exactly what the generator saw and produced.
type TrainingExporter struct {
	registry *core.Registry
	searcher Searcher
	composer Composer
	logger   *slog.Logger
}

// trainingRecord is one exported fine-tuning pair.
type trainingRecord struct {
	System      string    `json:"system"`
	Prompt      string    `json:"prompt"`
	Response    string    `json:"response"`
	CompanyCode string    `json:"company_code"`
	Confidence  float64   `json:"confidence"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NewTrainingExporter creates a fine-tuning dataset exporter.
func NewTrainingExporter(registry *core.Registry, searcher Searcher, composer Composer, logger *slog.Logger) (*TrainingExporter, error) {
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	if composer == nil {
		return nil, ErrComposerRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TrainingExporter{
		registry: registry,
		searcher: searcher,
		composer: composer,
		logger:   logger.With("component", "export"),
	}, nil
}

// Export writes one prompt/response pair per company with available
// evidence and returns the number of pairs written. Companies whose
// reports fall back for lack of evidence are skipped; a real pair needs
// a generated response.
func (e *TrainingExporter) Export(ctx context.Context, w io.Writer, companyCodes []string) (int, error) {
	encoder := json.NewEncoder(w)
	written := 0

	companies := e.registry.Companies()
	if len(companyCodes) > 0 {
		companies = make([]core.Company, 0, len(companyCodes))
		for _, code := range companyCodes {
			company, ok := e.registry.Resolve(code)
			if !ok {
				return written, fmt.Errorf("unknown company %q", code)
			}
			companies = append(companies, company)
		}
	}

	for _, company := range companies {
		subject := fmt.Sprintf("%s (%s)", company.Name, company.Code)
		query := retrieval.Query{
			CompanyCodes: []string{company.Code},
			FreeText: fmt.Sprintf(
				"Recent disclosures, news, and market activity for %s (%s) in the %s industry",
				company.Name, company.Code, company.Industry),
		}

		evidence, err := e.searcher.Search(ctx, query)
		if err != nil {
			return written, fmt.Errorf("error retrieving evidence for %s: %w", company.Code, err)
		}

		response, err := e.composer.Compose(ctx, subject, evidence)
		if err != nil {
			return written, fmt.Errorf("error composing report for %s: %w", company.Code, err)
		}
		if response.Fallback {
			e.logger.Debug("skipping company without evidence", "company", company.Code)
			continue
		}

		record := trainingRecord{
			System:      report.SystemPrompt(),
			Prompt:      report.UserPrompt(subject, evidence),
			Response:    renderSections(response.Sections),
			CompanyCode: company.Code,
			Confidence:  response.Confidence,
			GeneratedAt: response.GeneratedAt,
		}
		if err := encoder.Encode(record); err != nil {
			return written, fmt.Errorf("error encoding pair for %s: %w", company.Code, err)
		}
		written++
	}

	e.logger.Info("training export complete", "written", written)
	return written, nil
}
