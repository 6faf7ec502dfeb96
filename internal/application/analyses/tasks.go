package analyses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	domain "github.com/bryanwahyu/geoanalysis/internal/domain/analyses"
	"github.com/bryanwahyu/geoanalysis/internal/domain/spatial"
)

// TaskState is the caller-facing state of a submitted analysis.
type TaskState string

const (
	TaskPending TaskState = "PENDING"
	TaskStarted TaskState = "STARTED"
	TaskSuccess TaskState = "SUCCESS"
	TaskFailure TaskState = "FAILURE"
)

// TaskResult is the payload of a SUCCESS poll.
type TaskResult struct {
	OutputLayers []spatial.LayerData `json:"output_layers"`
	Statistics   map[string]any      `json:"statistics"`
}

// TaskStatus is the result contract returned by Poll.
type TaskStatus struct {
	TaskID     string      `json:"task_id"`
	AnalysisID string      `json:"analysis_id,omitempty"`
	State      TaskState   `json:"state"`
	Status     string      `json:"status"`
	Result     *TaskResult `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type jobPayload struct {
	AnalysisID string `json:"analysis_id"`
}

// Tasks bridges the orchestrator to a queue. Submit hands analyses to the
// queue, Handle is what workers run, Poll translates queue state.
type Tasks struct {
	Service *Service
	Queue   domain.Queue
	Log     *zap.Logger
}

// Start creates an analysis and submits it in one step.
func (t *Tasks) Start(ctx context.Context, cmd CreateCommand) (*domain.Analysis, error) {
	a, err := t.Service.Create(ctx, cmd)
	if err != nil {
		return nil, err
	}
	taskID, err := t.Submit(ctx, a.ID)
	if err != nil {
		return a, err
	}
	a.TaskID = taskID
	return a, nil
}

// Submit queues a pending analysis and stores the task id on it.
// Submitting an analysis that already has a task returns that task.
func (t *Tasks) Submit(ctx context.Context, id domain.ID) (string, error) {
	a, err := t.Service.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if a.TaskID != "" {
		return a.TaskID, nil
	}
	if a.Status != domain.StatusPending {
		return "", fmt.Errorf("%w: analysis %s is %s", domain.ErrInvalidTransition, id, a.Status)
	}

	payload, _ := json.Marshal(jobPayload{AnalysisID: string(id)})
	taskID, err := t.Queue.Submit(ctx, string(id), payload)
	if err != nil {
		t.log().Error("queue submit failed", zap.String("analysis_id", string(id)), zap.Error(err))
		t.Service.recordError(ctx, id, a.Type, domain.PhaseQueue, err)
		return "", err
	}
	if err := t.Service.Repo.AttachTask(ctx, id, taskID); err != nil {
		return "", err
	}

	t.log().Info("analysis submitted",
		zap.String("analysis_id", string(id)),
		zap.String("task_id", taskID))
	return taskID, nil
}

// Handle is the queue worker entry point.
func (t *Tasks) Handle(ctx context.Context, job domain.Job) error {
	id := job.JobID
	var p jobPayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode job payload: %w", err)
		}
		if p.AnalysisID != "" {
			id = p.AnalysisID
		}
	}
	return t.Service.Run(ctx, domain.ID(id))
}

// Poll maps the queue state of taskID to the caller-facing contract. A
// terminal analysis record takes precedence over the queue state. Poll has
// no side effects.
func (t *Tasks) Poll(ctx context.Context, taskID string) (TaskStatus, error) {
	info, err := t.Queue.State(ctx, taskID)
	if err != nil {
		return TaskStatus{}, err
	}
	switch info.State {
	case domain.NativeQueued, domain.NativeStarted, domain.NativeSucceeded, domain.NativeFailed:
	default:
		return TaskStatus{}, fmt.Errorf("%w: %q", domain.ErrUnknownTaskState, info.State)
	}

	a, err := t.analysisFor(ctx, taskID, info)
	if err != nil && !errors.Is(err, domain.ErrAnalysisNotFound) {
		return TaskStatus{}, err
	}

	st := TaskStatus{TaskID: taskID}
	if a != nil {
		st.AnalysisID = string(a.ID)
		switch a.Status {
		case domain.StatusCompleted:
			return t.success(ctx, st, a)
		case domain.StatusFailed:
			return failure(st, a.ErrorMessage()), nil
		}
	}

	switch info.State {
	case domain.NativeQueued:
		st.State, st.Status = TaskPending, "Analysis is pending"
	case domain.NativeStarted:
		st.State, st.Status = TaskStarted, "Analysis is running"
	case domain.NativeSucceeded:
		// worker selesai tapi record belum terminal; jangan klaim sukses
		st.State, st.Status = TaskStarted, "Analysis is finalizing"
	case domain.NativeFailed:
		msg := info.Error
		if msg == "" {
			msg = "task failed"
		}
		return failure(st, msg), nil
	}
	return st, nil
}

func (t *Tasks) analysisFor(ctx context.Context, taskID string, info domain.TaskInfo) (*domain.Analysis, error) {
	a, err := t.Service.Repo.GetByTask(ctx, taskID)
	if err == nil || info.JobID == "" || !errors.Is(err, domain.ErrAnalysisNotFound) {
		return a, err
	}
	// task id belum ter-attach (race submit vs poll); fallback ke job id
	return t.Service.Repo.Get(ctx, domain.ID(info.JobID))
}

func (t *Tasks) success(ctx context.Context, st TaskStatus, a *domain.Analysis) (TaskStatus, error) {
	layers, err := t.Service.OutputLayers(ctx, a.ID)
	if err != nil {
		return TaskStatus{}, err
	}
	st.State = TaskSuccess
	st.Status = "Analysis completed"
	st.Result = &TaskResult{OutputLayers: layers, Statistics: a.ResultMetadata}
	return st, nil
}

func failure(st TaskStatus, msg string) TaskStatus {
	st.State = TaskFailure
	st.Status = "Analysis failed"
	st.Error = msg
	return st
}

func (t *Tasks) log() *zap.Logger {
	if t.Log == nil {
		return zap.NewNop()
	}
	return t.Log
}
