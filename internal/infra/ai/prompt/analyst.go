package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/bryanwahyu/geoanalysis/internal/domain/insight"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior GIS analyst. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Base every statement on the analysis type, parameters and statistics you are given. Never invent numbers.
- highlights is an array of short objects with a title and a detail sentence. Keep items concise.
- Use meters and square meters for distances and areas.

Schema (example with empty values):
{
  "analysis_id": "<string>",
  "analysis_type": "<clustering|buffer|intersection|heatmap>",
  "summary": "<string>",
  "highlights": [
    {"title": "<string>", "detail": "<string>"}
  ],
  "recommendations": ["<string>"]
}`
}

// GetUserPrompt builds a compact user message around the analysis result.
func GetUserPrompt(s insight.Subject) string {
	b, err := json.Marshal(s)
	if err != nil {
		b = []byte(fmt.Sprintf(`{"analysis_id":%q,"analysis_type":%q}`, s.AnalysisID, s.Type))
	}
	return fmt.Sprintf("Explain this spatial analysis result and respond with the JSON per schema. Result: %s", b)
}

// Narration matches the schema used by the system prompt.
type Narration struct {
	AnalysisID      string      `json:"analysis_id"`
	AnalysisType    string      `json:"analysis_type"`
	Summary         string      `json:"summary"`
	Highlights      []Highlight `json:"highlights"`
	Recommendations []string    `json:"recommendations"`
}

type Highlight struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}
