package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bryanwahyu/geoanalysis/internal/domain/analyses"
)

const (
	DefaultPrefix  = "geoanalysis"
	DefaultTaskTTL = 7 * 24 * time.Hour

	popTimeout = 5 * time.Second
)

// Options tune a Queue. Zero values fall back to the defaults.
type Options struct {
	Prefix  string
	TaskTTL time.Duration
	// PopTimeout bounds one BRPOP so workers notice cancellation.
	PopTimeout time.Duration

	NewID func() string
	Now   func() time.Time
}

// Queue keeps jobs in a Redis list and task state in one hash per task.
//
//	LPUSH <prefix>:jobs <job json>
//	HSET  <prefix>:task:<id> state queued job_id <job> error ""
type Queue struct {
	rdb  redis.UniversalClient
	opts Options
	log  *zap.Logger
}

func New(rdb redis.UniversalClient, opts Options, log *zap.Logger) *Queue {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.TaskTTL <= 0 {
		opts.TaskTTL = DefaultTaskTTL
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = popTimeout
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{rdb: rdb, opts: opts, log: log}
}

func (q *Queue) jobsKey() string { return q.opts.Prefix + ":jobs" }

func (q *Queue) taskKey(id string) string { return q.opts.Prefix + ":task:" + id }

func (q *Queue) Submit(ctx context.Context, jobID string, payload []byte) (string, error) {
	job := analyses.Job{
		TaskID:     q.opts.NewID(),
		JobID:      jobID,
		Payload:    payload,
		EnqueuedAt: q.opts.Now(),
	}
	body, err := json.Marshal(job)
	if err != nil {
		return "", err
	}

	key := q.taskKey(job.TaskID)
	if err := q.rdb.HSet(ctx, key, "state", string(analyses.NativeQueued), "job_id", jobID, "error", "").Err(); err != nil {
		return "", fmt.Errorf("redis hset task: %w", err)
	}
	if err := q.rdb.Expire(ctx, key, q.opts.TaskTTL).Err(); err != nil {
		return "", fmt.Errorf("redis expire task: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.jobsKey(), string(body)).Err(); err != nil {
		// task tanpa job di list tidak boleh kelihatan queued selamanya
		q.rdb.Del(ctx, key)
		return "", fmt.Errorf("redis lpush job: %w", err)
	}
	return job.TaskID, nil
}

func (q *Queue) State(ctx context.Context, taskID string) (analyses.TaskInfo, error) {
	vals, err := q.rdb.HGetAll(ctx, q.taskKey(taskID)).Result()
	if err != nil {
		return analyses.TaskInfo{}, fmt.Errorf("redis hgetall task: %w", err)
	}
	if len(vals) == 0 {
		return analyses.TaskInfo{}, fmt.Errorf("%w: %s", analyses.ErrTaskNotFound, taskID)
	}
	return analyses.TaskInfo{
		State: analyses.NativeState(vals["state"]),
		JobID: vals["job_id"],
		Error: vals["error"],
	}, nil
}

// Work pops jobs until ctx is cancelled. Each popped job is delivered to
// this worker only. A job already popped runs to the end after cancel.
func (q *Queue) Work(ctx context.Context, worker int, handler analyses.JobHandler) error {
	log := q.log.With(zap.Int("worker", worker))
	jobCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return nil
		}
		job, err := q.pop(ctx)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Error("redis brpop", zap.Error(err))
			// backoff biar nggak spin kalau redis down
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}
		q.process(jobCtx, log, *job, handler)
	}
}

// pop returns nil, nil for a message that could not be decoded.
func (q *Queue) pop(ctx context.Context) (*analyses.Job, error) {
	res, err := q.rdb.BRPop(ctx, q.opts.PopTimeout, q.jobsKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(res) != 2 {
		return nil, nil
	}
	var job analyses.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		q.log.Error("drop malformed job", zap.String("raw", res[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

func (q *Queue) process(ctx context.Context, log *zap.Logger, job analyses.Job, handler analyses.JobHandler) {
	log = log.With(zap.String("task_id", job.TaskID), zap.String("job_id", job.JobID))
	q.setState(ctx, log, job.TaskID, analyses.NativeStarted, "")

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
		q.setState(ctx, log, job.TaskID, analyses.NativeFailed, err.Error())
		return
	}
	q.setState(ctx, log, job.TaskID, analyses.NativeSucceeded, "")
}

func (q *Queue) setState(ctx context.Context, log *zap.Logger, taskID string, state analyses.NativeState, msg string) {
	key := q.taskKey(taskID)
	if err := q.rdb.HSet(ctx, key, "state", string(state), "error", msg).Err(); err != nil {
		log.Error("redis update task state", zap.String("state", string(state)), zap.Error(err))
		return
	}
	if err := q.rdb.Expire(ctx, key, q.opts.TaskTTL).Err(); err != nil {
		log.Warn("redis refresh task ttl", zap.Error(err))
	}
}
