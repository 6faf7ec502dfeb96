package insight

import "time"

// ID identifier type
type ID string

// Insight is an LLM narration of one completed analysis, stored for auditing and retrieval.
type Insight struct {
	ID         ID        `json:"id"`
	AnalysisID string    `json:"analysis_id"`
	OwnerID    string    `json:"user_id"`
	Model      string    `json:"model,omitempty"`
	Result     string    `json:"result"` // JSON string from the model
	CreatedAt  time.Time `json:"created_at"`
}

// Subject is what gets narrated.
type Subject struct {
	AnalysisID string         `json:"analysis_id"`
	Name       string         `json:"name"`
	Type       string         `json:"analysis_type"`
	DatasetID  string         `json:"dataset_id"`
	Parameters map[string]any `json:"parameters"`
	Statistics map[string]any `json:"statistics"`
}
