package analyses

import (
	"time"

	"github.com/bryanwahyu/geoanalysis/internal/domain/operations"
)

// ID tipe untuk Analysis
type ID string

// Status enum
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition enforces pending -> running -> completed|failed.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// Aggregate Root: Analysis
type Analysis struct {
	ID             ID                    `json:"id"`
	Name           string                `json:"name"`
	Description    string                `json:"description,omitempty"`
	Type           operations.Kind       `json:"analysis_type"`
	Parameters     operations.Parameters `json:"parameters"`
	Status         Status                `json:"status"`
	TaskID         string                `json:"task_id,omitempty"`
	OwnerID        string                `json:"user_id"`
	DatasetID      string                `json:"dataset_id"`
	CreatedAt      time.Time             `json:"created_at"`
	StartedAt      *time.Time            `json:"started_at,omitempty"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
	ResultMetadata map[string]any        `json:"result_metadata,omitempty"`
}

// Clone returns a copy that shares no maps or pointers with a.
func (a *Analysis) Clone() *Analysis {
	if a == nil {
		return nil
	}
	c := *a
	c.Parameters = copyMap(a.Parameters)
	c.ResultMetadata = copyMap(a.ResultMetadata)
	if a.StartedAt != nil {
		t := *a.StartedAt
		c.StartedAt = &t
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// OutputLayerID returns result_metadata.output_layer_id when present.
func (a *Analysis) OutputLayerID() string {
	if v, ok := a.ResultMetadata["output_layer_id"].(string); ok {
		return v
	}
	return ""
}

// ErrorMessage returns result_metadata.error when present.
func (a *Analysis) ErrorMessage() string {
	if v, ok := a.ResultMetadata["error"].(string); ok {
		return v
	}
	return ""
}

func copyMap[M ~map[string]any](m M) M {
	if m == nil {
		return nil
	}
	out := make(M, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Phase where a run failed
type Phase string

const (
	PhaseLoad      Phase = "load"
	PhaseOperation Phase = "operation"
	PhasePersist   Phase = "persist"
	PhaseExport    Phase = "export"
	PhaseQueue     Phase = "queue"
)

// ErrorEntry is one persisted failure of an analysis run.
type ErrorEntry struct {
	ID           int64           `json:"id"`
	AnalysisID   ID              `json:"analysis_id"`
	AnalysisType operations.Kind `json:"analysis_type,omitempty"`
	Phase        Phase           `json:"phase,omitempty"`
	Message      string          `json:"message"`
	DetailsJSON  string          `json:"details_json,omitempty"` // raw JSON string
	CreatedAt    time.Time       `json:"created_at"`
}
