package mock

import (
	"context"
)

// defaultReportJSON is the canned response returned when no custom
// behavior has been injected. It matches the section layout expected
// by the report composer.
const defaultReportJSON = `{
  "sections": [
    {"title": "Overview", "body": "Mock overview of the evidence."},
    {"title": "Analysis", "body": "Mock analysis of recent activity."},
    {"title": "Risk Assessment", "body": "Mock risk assessment."},
    {"title": "Final Opinion", "body": "Mock final opinion."}
  ]
}`

// MockGenerator is a test double for ai.Generator.
// It allows custom behavior injection via function fields.
type MockGenerator struct {
	// GenerateJSONFunc is called by GenerateJSON if set.
	// If nil, returns a fixed report with standard sections.
	GenerateJSONFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	callCount int

	// LastSystemPrompt and LastUserPrompt record the most recent call's
	// arguments for test assertions.
	LastSystemPrompt string
	LastUserPrompt   string
}

// NewMockGenerator creates a mock generator with default canned behavior.
// Note: Returns concrete type to allow test assertions via GetMockGenerator().
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// GenerateJSON returns a canned JSON report, or delegates to GenerateJSONFunc.
func (m *MockGenerator) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.callCount++
	m.LastSystemPrompt = systemPrompt
	m.LastUserPrompt = userPrompt

	if m.GenerateJSONFunc != nil {
		return m.GenerateJSONFunc(ctx, systemPrompt, userPrompt)
	}

	return defaultReportJSON, nil
}

// CallCount returns the number of times GenerateJSON was called.
func (m *MockGenerator) CallCount() int {
	return m.callCount
}

// Reset clears the call count, recorded prompts, and custom functions.
func (m *MockGenerator) Reset() {
	m.callCount = 0
	m.LastSystemPrompt = ""
	m.LastUserPrompt = ""
	m.GenerateJSONFunc = nil
}
