package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/bryanwahyu/geoanalysis/internal/domain/analyses"
)

var fixedNow = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type QueueTestSuite struct {
	suite.Suite
	mock  redismock.ClientMock
	queue *Queue
}

func (s *QueueTestSuite) SetupTest() {
	db, mock := redismock.NewClientMock()
	s.mock = mock
	s.queue = New(db, Options{
		NewID: func() string { return "t-1" },
		Now:   func() time.Time { return fixedNow },
	}, zap.NewNop())
}

func (s *QueueTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func jobBody(t require.TestingT) string {
	b, err := json.Marshal(analyses.Job{
		TaskID:     "t-1",
		JobID:      "a1",
		Payload:    json.RawMessage(`{"analysis_id":"a1"}`),
		EnqueuedAt: fixedNow,
	})
	require.NoError(t, err)
	return string(b)
}

func (s *QueueTestSuite) TestSubmit() {
	s.mock.ExpectHSet("geoanalysis:task:t-1", "state", "queued", "job_id", "a1", "error", "").SetVal(3)
	s.mock.ExpectExpire("geoanalysis:task:t-1", DefaultTaskTTL).SetVal(true)
	s.mock.ExpectLPush("geoanalysis:jobs", jobBody(s.T())).SetVal(1)

	id, err := s.queue.Submit(context.Background(), "a1", []byte(`{"analysis_id":"a1"}`))
	s.Require().NoError(err)
	s.Equal("t-1", id)
}

func (s *QueueTestSuite) TestSubmitPushFailureRemovesTask() {
	s.mock.ExpectHSet("geoanalysis:task:t-1", "state", "queued", "job_id", "a1", "error", "").SetVal(3)
	s.mock.ExpectExpire("geoanalysis:task:t-1", DefaultTaskTTL).SetVal(true)
	s.mock.ExpectLPush("geoanalysis:jobs", jobBody(s.T())).SetErr(errors.New("READONLY"))
	s.mock.ExpectDel("geoanalysis:task:t-1").SetVal(1)

	_, err := s.queue.Submit(context.Background(), "a1", []byte(`{"analysis_id":"a1"}`))
	s.Require().Error(err)
	s.Contains(err.Error(), "READONLY")
}

func (s *QueueTestSuite) TestState() {
	s.mock.ExpectHGetAll("geoanalysis:task:t-1").SetVal(map[string]string{
		"state": "failed", "job_id": "a1", "error": "boom",
	})

	info, err := s.queue.State(context.Background(), "t-1")
	s.Require().NoError(err)
	s.Equal(analyses.TaskInfo{State: analyses.NativeFailed, JobID: "a1", Error: "boom"}, info)
}

func (s *QueueTestSuite) TestStateUnknownTask() {
	s.mock.ExpectHGetAll("geoanalysis:task:nope").SetVal(map[string]string{})

	_, err := s.queue.State(context.Background(), "nope")
	s.ErrorIs(err, analyses.ErrTaskNotFound)
}

func TestQueueTestSuite(t *testing.T) {
	suite.Run(t, new(QueueTestSuite))
}

func TestWorkProcessesJobs(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	q := New(rdb, Options{PopTimeout: 100 * time.Millisecond}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []string
	handled := make(chan struct{}, 2)
	done := make(chan error, 1)
	go func() {
		done <- q.Work(ctx, 0, func(_ context.Context, job analyses.Job) error {
			seen = append(seen, job.JobID)
			handled <- struct{}{}
			if job.JobID == "bad" {
				return errors.New("operation exploded")
			}
			return nil
		})
	}()

	okID, err := q.Submit(ctx, "good", []byte(`{"analysis_id":"good"}`))
	require.NoError(t, err)
	badID, err := q.Submit(ctx, "bad", nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case <-handled:
		case <-time.After(5 * time.Second):
			t.Fatal("job not handled")
		}
	}

	require.Eventually(t, func() bool {
		info, err := q.State(ctx, badID)
		return err == nil && info.State == analyses.NativeFailed
	}, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		info, err := q.State(ctx, okID)
		return err == nil && info.State == analyses.NativeSucceeded
	}, 5*time.Second, 20*time.Millisecond)

	info, err := q.State(ctx, badID)
	require.NoError(t, err)
	assert.Equal(t, "operation exploded", info.Error)
	assert.True(t, mr.TTL("geoanalysis:task:"+okID) > 0)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	// LPUSH + BRPOP: first in, first out
	assert.Equal(t, []string{"good", "bad"}, seen)
}
