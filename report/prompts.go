package report

import (
	"fmt"
	"strings"

	"github.com/poiesic/hegemon/core"
)

const reportResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "sections": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "title": {
            "type": "string",
            "enum": ["Overview", "Analysis", "Risk Assessment", "Final Opinion"]
          },
          "body": {
            "type": "string"
          }
        },
        "required": ["title", "body"],
        "additionalProperties": false
      }
    }
  },
  "required": ["sections"],
  "additionalProperties": false
}`

const reportPromptTemplate = `You are an equity research analyst. Given evidence excerpts about a
company, industry, or market, write a hegemony prediction report: an
assessment of whether the subject's competitive position is strengthening
or weakening, and why.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- Produce exactly four sections, in this order: "Overview", "Analysis", "Risk Assessment", "Final Opinion".
- Base every claim on the evidence excerpts. Do not invent facts, figures, or events.
- Weight recent evidence over older evidence; disclosure filings over news commentary.
- "Risk Assessment" must name concrete downside scenarios visible in the evidence.
- "Final Opinion" must commit to a direction: strengthening, stable, or weakening.
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.`

// SystemPrompt creates the system prompt with the response schema embedded.
func SystemPrompt() string {
	return fmt.Sprintf(reportPromptTemplate, reportResponseSchema)
}

// UserPrompt renders the subject and its evidence excerpts, newest first.
func UserPrompt(subject string, evidence []*core.Evidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n\nEvidence excerpts:\n", subject)
	for i, ev := range evidence {
		fmt.Fprintf(&b, "\n[%d] (%s, %s, relevance %.2f)\n%s\n",
			i+1,
			ev.Chunk.Type.String(),
			ev.Chunk.Timestamp.Format("2006-01-02"),
			ev.Score,
			strings.TrimSpace(ev.Chunk.Text))
	}
	return b.String()
}
