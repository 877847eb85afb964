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


// Package report composes structured prediction reports from retrieved
// evidence, with a deterministic fallback when evidence is insufficient.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/poiesic/hegemon/ai"
	"github.com/poiesic/hegemon/core"
)

// sectionOrder is the fixed layout of a composed report.
var sectionOrder = []string{"Overview", "Analysis", "Risk Assessment", "Final Opinion"}

const fallbackDisclaimer = "Insufficient evidence was available to compose a grounded prediction. " +
	"No recent documents matched this subject above the relevance floor; this placeholder " +
	"carries zero confidence and should not be used to support a decision."

// Composer turns an evidence set into a structured prediction report.
type Composer struct {
	generator ai.Generator
	topK      int
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Composer.
type Option func(*Composer) error

// WithTopK sets the nominal evidence size used by the confidence
// formula. Default is 8.
func WithTopK(topK int) Option {
	return func(c *Composer) error {
		if topK > 0 {
			c.topK = topK
		}
		return nil
	}
}

// WithClock sets the time source. Default is time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) error {
		if now != nil {
			c.now = now
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewComposer creates a report composer.
func NewComposer(generator ai.Generator, opts ...Option) (*Composer, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	c := &Composer{
		generator: generator,
		topK:      8,
		now:       time.Now,
		logger:    slog.Default().With("component", "composer"),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// reportPayload is the generator's JSON response shape.
type reportPayload struct {
	Sections []core.Section `json:"sections"`
}

// Compose generates a prediction report for the subject from the given
// evidence. With no evidence it returns the fallback report without
// calling the generator. A generator failure is returned as an error
// wrapping ErrGenerationFailed, never downgraded to a fallback.
func (c *Composer) Compose(ctx context.Context, subject string, evidence []*core.Evidence) (*core.PredictionResponse, error) {
	if len(evidence) == 0 {
		c.logger.Info("composing fallback report", "subject", subject)
		return c.fallback(), nil
	}

	raw, err := c.generator.GenerateJSON(ctx, SystemPrompt(), UserPrompt(subject, evidence))
	if err != nil {
		c.logger.Error("generation failed", "subject", subject, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	var payload reportPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling report: %v", ErrGenerationFailed, err)
	}
	if len(payload.Sections) == 0 {
		return nil, fmt.Errorf("%w: model returned no sections", ErrGenerationFailed)
	}

	supporting := make([]core.ID, len(evidence))
	for i, ev := range evidence {
		supporting[i] = ev.Chunk.Id
	}

	response := &core.PredictionResponse{
		Sections:         orderSections(payload.Sections),
		Confidence:       c.confidence(evidence),
		SupportingChunks: supporting,
		GeneratedAt:      c.now().UTC(),
	}

	c.logger.Debug("report composed",
		"subject", subject,
		"sections", len(response.Sections),
		"confidence", response.Confidence,
		"evidence", len(evidence))
	return response, nil
}

// fallback is the deterministic no-evidence report.
func (c *Composer) fallback() *core.PredictionResponse {
	return &core.PredictionResponse{
		Sections: []core.Section{
			{Title: "Overview", Body: fallbackDisclaimer},
		},
		Confidence:       0,
		SupportingChunks: []core.ID{},
		GeneratedAt:      c.now().UTC(),
		Fallback:         true,
	}
}

// confidence scores the evidence set: average composite score scaled by
// n/(n+topK), so it grows with both evidence quality and quantity, and
// stays in [0,1].
func (c *Composer) confidence(evidence []*core.Evidence) float64 {
	var sum float64
	for _, ev := range evidence {
		sum += ev.Score
	}
	n := float64(len(evidence))
	score := (sum / n) * (n / (n + float64(c.topK)))

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// orderSections arranges sections into the canonical layout. Sections
// with unrecognized titles keep their relative order after the known ones.
func orderSections(sections []core.Section) []core.Section {
	rank := func(title string) int {
		if i := slices.Index(sectionOrder, title); i >= 0 {
			return i
		}
		return len(sectionOrder)
	}
	slices.SortStableFunc(sections, func(a, b core.Section) int {
		return rank(a.Title) - rank(b.Title)
	})
	return sections
}
