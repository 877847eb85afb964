package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/hegemon/ai/mock"
	"github.com/poiesic/hegemon/core"
)

var composeNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func testEvidence(scores ...float64) []*core.Evidence {
	evidence := make([]*core.Evidence, len(scores))
	for i, score := range scores {
		evidence[i] = &core.Evidence{
			Chunk: &core.Chunk{
				Id:          core.ID(i + 1),
				DocumentRef: core.ID(100 + i),
				CompanyCode: "005930",
				Type:        core.DocTypeNews,
				Text:        "Samsung capacity expansion evidence.",
				Timestamp:   composeNow.Add(-time.Hour),
			},
			Score: score,
		}
	}
	return evidence
}

func newTestComposer(t *testing.T, generator *mock.MockGenerator) *Composer {
	t.Helper()
	composer, err := NewComposer(generator, WithClock(func() time.Time { return composeNow }))
	require.NoError(t, err)
	return composer
}

func TestNewComposerValidation(t *testing.T) {
	_, err := NewComposer(nil)
	assert.ErrorIs(t, err, ErrGeneratorRequired)
}

func TestComposeReport(t *testing.T) {
	generator := mock.NewMockGenerator()
	composer := newTestComposer(t, generator)

	evidence := testEvidence(0.9, 0.8, 0.7)
	response, err := composer.Compose(context.Background(), "Samsung Electronics", evidence)
	require.NoError(t, err)

	assert.False(t, response.Fallback)
	require.Len(t, response.Sections, 4)
	assert.Equal(t, "Overview", response.Sections[0].Title)
	assert.Equal(t, "Analysis", response.Sections[1].Title)
	assert.Equal(t, "Risk Assessment", response.Sections[2].Title)
	assert.Equal(t, "Final Opinion", response.Sections[3].Title)

	assert.Equal(t, []core.ID{1, 2, 3}, response.SupportingChunks)
	assert.Equal(t, composeNow, response.GeneratedAt)

	// avg 0.8 scaled by 3/(3+8)
	assert.InDelta(t, 0.8*3.0/11.0, response.Confidence, 1e-9)

	// Prompt carries the subject and the evidence text
	assert.Equal(t, 1, generator.CallCount())
	assert.Contains(t, generator.LastUserPrompt, "Samsung Electronics")
	assert.Contains(t, generator.LastUserPrompt, "capacity expansion")
}

func TestComposeFallbackWithoutEvidence(t *testing.T) {
	generator := mock.NewMockGenerator()
	composer := newTestComposer(t, generator)

	response, err := composer.Compose(context.Background(), "Samsung Electronics", nil)
	require.NoError(t, err)

	assert.True(t, response.Fallback)
	assert.Zero(t, response.Confidence)
	assert.Empty(t, response.SupportingChunks)
	require.NotEmpty(t, response.Sections)
	assert.Contains(t, response.Sections[0].Body, "Insufficient evidence")

	// Fallback never calls the generator
	assert.Equal(t, 0, generator.CallCount())
}

func TestComposeGenerationFailure(t *testing.T) {
	generator := mock.NewMockGenerator()
	generator.GenerateJSONFunc = func(ctx context.Context, system, user string) (string, error) {
		return "", errors.New("model unavailable")
	}
	composer := newTestComposer(t, generator)

	response, err := composer.Compose(context.Background(), "Samsung Electronics", testEvidence(0.9))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	// Never downgraded to a fallback report
	assert.Nil(t, response)
}

func TestComposeMalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", "not json at all"},
		{"no sections", `{"sections": []}`},
		{"wrong shape", `{"report": "flat text"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator := mock.NewMockGenerator()
			generator.GenerateJSONFunc = func(ctx context.Context, system, user string) (string, error) {
				return tt.raw, nil
			}
			composer := newTestComposer(t, generator)

			_, err := composer.Compose(context.Background(), "x", testEvidence(0.5))
			assert.ErrorIs(t, err, ErrGenerationFailed)
		})
	}
}

func TestComposeReordersSections(t *testing.T) {
	generator := mock.NewMockGenerator()
	generator.GenerateJSONFunc = func(ctx context.Context, system, user string) (string, error) {
		return `{"sections": [
			{"title": "Final Opinion", "body": "weakening"},
			{"title": "Overview", "body": "o"},
			{"title": "Risk Assessment", "body": "r"},
			{"title": "Analysis", "body": "a"}
		]}`, nil
	}
	composer := newTestComposer(t, generator)

	response, err := composer.Compose(context.Background(), "x", testEvidence(0.5))
	require.NoError(t, err)

	titles := make([]string, len(response.Sections))
	for i, section := range response.Sections {
		titles[i] = section.Title
	}
	assert.Equal(t, []string{"Overview", "Analysis", "Risk Assessment", "Final Opinion"}, titles)
}

func TestConfidenceMonotonicity(t *testing.T) {
	composer := newTestComposer(t, mock.NewMockGenerator())

	// More evidence at the same average raises confidence
	few := composer.confidence(testEvidence(0.8, 0.8))
	many := composer.confidence(testEvidence(0.8, 0.8, 0.8, 0.8, 0.8, 0.8))
	assert.Greater(t, many, few)

	// Higher average at the same count raises confidence
	low := composer.confidence(testEvidence(0.2, 0.2, 0.2))
	high := composer.confidence(testEvidence(0.9, 0.9, 0.9))
	assert.Greater(t, high, low)

	// Always within [0,1]
	for _, scores := range [][]float64{
		{0.01}, {1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0}, {0.5, 0.9},
	} {
		confidence := composer.confidence(testEvidence(scores...))
		assert.GreaterOrEqual(t, confidence, 0.0)
		assert.LessOrEqual(t, confidence, 1.0)
	}
}

func TestBuildUserPromptLayout(t *testing.T) {
	prompt := UserPrompt("semiconductor industry", testEvidence(0.9, 0.4))

	assert.True(t, strings.HasPrefix(prompt, "Subject: semiconductor industry"))
	assert.Contains(t, prompt, "[1]")
	assert.Contains(t, prompt, "[2]")
	assert.Contains(t, prompt, "relevance 0.90")
	assert.Contains(t, prompt, "news")
}
