package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gosnaggit/internal/jobs"
)

type fakeQueue struct {
	mu sync.Mutex

	heartbeatOK bool

	finalized   []uint64
	failed      []uint64
	dispatchRun []time.Time
}

func (q *fakeQueue) EnqueueRefresh(ctx context.Context, searchID uint64, runAt time.Time) (bool, error) {
	return true, nil
}

func (q *fakeQueue) EnqueueDispatch(ctx context.Context, runAt time.Time) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dispatchRun = append(q.dispatchRun, runAt)
	return true, nil
}

func (q *fakeQueue) Claim(ctx context.Context, jobType string, limit int, owner string, leaseMinutes int) ([]jobs.Job, error) {
	return nil, nil
}

func (q *fakeQueue) Heartbeat(ctx context.Context, jobID uint64, owner string, leaseMinutes int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heartbeatOK, nil
}

func (q *fakeQueue) FinalizeSuccess(ctx context.Context, jobID uint64, owner string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.finalized = append(q.finalized, jobID)
	return true, nil
}

func (q *fakeQueue) FailAndRequeue(ctx context.Context, job jobs.Job, owner string, cause string, retryCap int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, job.ID)
	return true, nil
}

func (q *fakeQueue) Reap(ctx context.Context, owner string, scanLimit, retryCap int) (int, error) {
	return 0, nil
}

func (q *fakeQueue) snapshot() (finalized, failed []uint64, dispatches int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]uint64(nil), q.finalized...), append([]uint64(nil), q.failed...), len(q.dispatchRun)
}

func newTestWorker(q *fakeQueue, handle func(context.Context, jobs.Job) error) *Worker {
	return &Worker{
		Owner:          "worker-test",
		Queue:          q,
		Log:            zap.NewNop(),
		LeaseMinutes:   10,
		HeartbeatEvery: 10 * time.Millisecond,
		RetryCap:       5,
		DispatchEvery:  5 * time.Minute,
		handleFn:       handle,
	}
}

func TestExecuteSuccessFinalizes(t *testing.T) {
	q := &fakeQueue{heartbeatOK: true}
	w := newTestWorker(q, func(ctx context.Context, j jobs.Job) error { return nil })

	w.execute(context.Background(), jobs.Job{ID: 11, JobType: jobs.TypeRefresh})

	finalized, failed, dispatches := q.snapshot()
	assert.Equal(t, []uint64{11}, finalized)
	assert.Empty(t, failed)
	assert.Zero(t, dispatches)
}

func TestExecuteErrorFailsAndRequeues(t *testing.T) {
	q := &fakeQueue{heartbeatOK: true}
	w := newTestWorker(q, func(ctx context.Context, j jobs.Job) error {
		return errors.New("adapter timeout")
	})

	w.execute(context.Background(), jobs.Job{ID: 12, JobType: jobs.TypeRefresh})

	finalized, failed, _ := q.snapshot()
	assert.Empty(t, finalized)
	assert.Equal(t, []uint64{12}, failed)
}

func TestExecuteDispatchSuccessReschedules(t *testing.T) {
	q := &fakeQueue{heartbeatOK: true}
	w := newTestWorker(q, func(ctx context.Context, j jobs.Job) error { return nil })

	before := time.Now()
	w.execute(context.Background(), jobs.Job{ID: 13, JobType: jobs.TypeDispatch})

	finalized, _, dispatches := q.snapshot()
	assert.Equal(t, []uint64{13}, finalized)
	require.Equal(t, 1, dispatches)

	q.mu.Lock()
	runAt := q.dispatchRun[0]
	q.mu.Unlock()
	assert.True(t, runAt.After(before.Add(4*time.Minute)), "successor should run a dispatch interval later")
}

func TestExecuteLeaseLossDiscardsResult(t *testing.T) {
	q := &fakeQueue{heartbeatOK: false}

	// the handler blocks until the rejected heartbeat cancels its context
	w := newTestWorker(q, func(ctx context.Context, j jobs.Job) error {
		<-ctx.Done()
		return ctx.Err()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.execute(context.Background(), jobs.Job{ID: 14, JobType: jobs.TypeRefresh})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("execute did not return after lease loss")
	}

	finalized, failed, _ := q.snapshot()
	assert.Empty(t, finalized, "a lost lease must not finalize")
	assert.Empty(t, failed, "a lost lease must not fail-and-requeue; the reaper owns recovery")
}
