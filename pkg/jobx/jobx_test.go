package jobx_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/jobx"
	"github.com/Abraxas-365/nexus-iam/pkg/jobx/jobxmemory"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

type greeting struct {
	Name string `json:"name"`
}

func newWorker(t *testing.T, opts ...jobx.Option) (*jobx.Worker, *jobxmemory.Queue, *kernel.FixedClock) {
	t.Helper()
	clock := kernel.NewFixedClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	queue := jobxmemory.NewQueue()
	opts = append([]jobx.Option{
		jobx.WithPopWait(10 * time.Millisecond),
		jobx.WithRetryBackoff(time.Minute, 10*time.Minute),
	}, opts...)
	return jobx.NewWorker(queue, clock, opts...), queue, clock
}

func TestProcessNextCompletesJob(t *testing.T) {
	w, _, _ := newWorker(t)
	ctx := context.Background()

	var got greeting
	w.Handle("greet", func(_ context.Context, job *jobx.JobInfo) error {
		return job.Decode(&got)
	})

	id, err := w.Enqueue(ctx, jobx.Job{Type: "greet", Payload: greeting{Name: "alice"}})
	require.NoError(t, err)

	ran, err := w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, "alice", got.Name)

	info, err := w.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, jobx.StatusCompleted, info.Status)
	assert.Equal(t, 1, info.Attempts)
}

func TestFailingJobRetriesThenDies(t *testing.T) {
	w, queue, clock := newWorker(t, jobx.WithMaxAttempts(2))
	ctx := context.Background()

	w.Handle("flaky", func(context.Context, *jobx.JobInfo) error {
		return errors.New("smtp timeout")
	})
	id, err := w.Enqueue(ctx, jobx.Job{Type: "flaky", Payload: nil})
	require.NoError(t, err)

	ran, err := w.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, ran)

	info, err := w.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, jobx.StatusRetrying, info.Status)
	assert.Equal(t, "smtp timeout", info.LastError)
	assert.True(t, info.RunAt.Equal(clock.Now().Add(time.Minute)))

	// not due yet
	ran, err = w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.False(t, ran)

	clock.Advance(time.Minute)
	ran, err = w.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, ran)

	info, err = w.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, jobx.StatusDead, info.Status)
	assert.Equal(t, 2, info.Attempts)
	assert.Equal(t, []string{id}, queue.Dead("default"))
}

func TestUnknownJobTypeIsBuried(t *testing.T) {
	w, queue, _ := newWorker(t)
	ctx := context.Background()

	id, err := w.Enqueue(ctx, jobx.Job{Type: "nobody-handles-this", Queue: "default"})
	require.NoError(t, err)

	ran, err := w.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, ran)
	assert.Equal(t, []string{id}, queue.Dead("default"))
}

func TestDelayedJobWaitsForItsTime(t *testing.T) {
	w, _, clock := newWorker(t)
	ctx := context.Background()

	var runs atomic.Int32
	w.Handle("later", func(context.Context, *jobx.JobInfo) error {
		runs.Add(1)
		return nil
	})
	_, err := w.Enqueue(ctx, jobx.Job{Type: "later", Delay: 5 * time.Minute})
	require.NoError(t, err)

	ran, err := w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.False(t, ran)

	clock.Advance(5 * time.Minute)
	ran, err = w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.EqualValues(t, 1, runs.Load())
}

func TestEnqueueRequiresType(t *testing.T) {
	w, _, _ := newWorker(t)
	_, err := w.Enqueue(context.Background(), jobx.Job{})
	assert.True(t, errx.IsCode(err, jobx.CodeInvalidJob))
}

func TestRunProcessesUntilCancelled(t *testing.T) {
	w, _, _ := newWorker(t, jobx.WithPromoteInterval(5*time.Millisecond), jobx.WithShutdownTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	w.Handle("tick", func(context.Context, *jobx.JobInfo) error {
		runs.Add(1)
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	_, err := w.Enqueue(ctx, jobx.Job{Type: "tick"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	err = w.Run(ctx)
	assert.True(t, errx.IsCode(err, jobx.CodeAlreadyRunning))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
