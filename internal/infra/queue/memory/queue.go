package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/geoanalysis/internal/domain/analyses"
)

var (
	ErrQueueFull   = errors.New("queue full")
	ErrQueueClosed = errors.New("queue closed")
)

// Queue is an in-process worker pool. Each submission gets a unique task
// id and is delivered to exactly one worker.
type Queue struct {
	mu     sync.RWMutex
	tasks  map[string]analyses.TaskInfo
	jobs   chan analyses.Job
	closed bool

	log *zap.Logger
	wg  sync.WaitGroup
}

// New bikin queue dengan buffer size
func New(size int, log *zap.Logger) *Queue {
	if size <= 0 {
		size = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		tasks: map[string]analyses.TaskInfo{},
		jobs:  make(chan analyses.Job, size),
		log:   log,
	}
}

func (q *Queue) Submit(_ context.Context, jobID string, payload []byte) (string, error) {
	job := analyses.Job{
		TaskID:     uuid.New().String(),
		JobID:      jobID,
		Payload:    append([]byte(nil), payload...),
		EnqueuedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrQueueClosed
	}
	select {
	case q.jobs <- job:
	default:
		return "", fmt.Errorf("%w: %d jobs waiting", ErrQueueFull, cap(q.jobs))
	}
	q.tasks[job.TaskID] = analyses.TaskInfo{State: analyses.NativeQueued, JobID: jobID}
	return job.TaskID, nil
}

func (q *Queue) State(_ context.Context, taskID string) (analyses.TaskInfo, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	info, ok := q.tasks[taskID]
	if !ok {
		return analyses.TaskInfo{}, fmt.Errorf("%w: %s", analyses.ErrTaskNotFound, taskID)
	}
	return info, nil
}

// Start launches n workers running handler until Stop.
func (q *Queue) Start(ctx context.Context, n int, handler analyses.JobHandler) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		q.wg.Add(1)
		go func(worker int) {
			defer q.wg.Done()
			for job := range q.jobs {
				q.process(ctx, worker, job, handler)
			}
		}(i)
	}
}

// Stop stops accepting jobs and waits until queued ones are processed.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) process(ctx context.Context, worker int, job analyses.Job, handler analyses.JobHandler) {
	q.setState(job.TaskID, analyses.NativeStarted, "")
	log := q.log.With(zap.Int("worker", worker), zap.String("task_id", job.TaskID), zap.String("job_id", job.JobID))

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panic: %v", r)
			}
		}()
		return handler(ctx, job)
	}()
	if err != nil {
		log.Warn("job failed", zap.Error(err))
		q.setState(job.TaskID, analyses.NativeFailed, err.Error())
		return
	}
	log.Debug("job done")
	q.setState(job.TaskID, analyses.NativeSucceeded, "")
}

func (q *Queue) setState(taskID string, state analyses.NativeState, msg string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	info := q.tasks[taskID]
	info.State = state
	info.Error = msg
	q.tasks[taskID] = info
}
