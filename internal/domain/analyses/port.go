package analyses

import (
	"context"
	"encoding/json"
	"time"
)

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, a *Analysis) error
	// Update writes status, timestamps and result metadata. The task id is
	// only written by AttachTask.
	Update(ctx context.Context, a *Analysis) error
	AttachTask(ctx context.Context, id ID, taskID string) error
	Get(ctx context.Context, id ID) (*Analysis, error)
	GetByTask(ctx context.Context, taskID string) (*Analysis, error)
	// newest first
	ListByOwner(ctx context.Context, owner string, limit int) ([]*Analysis, error)
	ListByDataset(ctx context.Context, datasetID string) ([]*Analysis, error)
}

// ErrorLog stores run failures
type ErrorLog interface {
	Save(ctx context.Context, e *ErrorEntry) error
	ListByAnalysis(ctx context.Context, id ID, limit int) ([]*ErrorEntry, error)
}

// NativeState is the state vocabulary of the queue adapters.
type NativeState string

const (
	NativeQueued    NativeState = "queued"
	NativeStarted   NativeState = "started"
	NativeSucceeded NativeState = "succeeded"
	NativeFailed    NativeState = "failed"
)

// TaskInfo is what a queue knows about one submitted task.
type TaskInfo struct {
	State NativeState
	JobID string
	Error string
}

// Job is the unit handed to a worker.
type Job struct {
	TaskID     string          `json:"task_id"`
	JobID      string          `json:"job_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// JobHandler processes one job; a non-nil error marks the task failed.
type JobHandler func(ctx context.Context, job Job) error

// Queue port
type Queue interface {
	Submit(ctx context.Context, jobID string, payload []byte) (string, error)
	State(ctx context.Context, taskID string) (TaskInfo, error)
}

// ArtifactStore port (penyimpanan artefak hasil analisis)
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Remove(ctx context.Context, key string) error
}

// StatusEvent is published on every committed status change.
type StatusEvent struct {
	AnalysisID     ID             `json:"analysis_id"`
	Type           string         `json:"analysis_type"`
	Status         Status         `json:"status"`
	OwnerID        string         `json:"user_id"`
	DatasetID      string         `json:"dataset_id"`
	OccurredAt     time.Time      `json:"occurred_at"`
	ResultMetadata map[string]any `json:"result_metadata,omitempty"`
}

// EventPublisher port
type EventPublisher interface {
	Publish(ctx context.Context, e StatusEvent) error
}
