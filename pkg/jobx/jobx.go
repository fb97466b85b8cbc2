// Package jobx runs background work pulled from a queue, with retries and a
// dead-letter state for jobs that keep failing.
package jobx

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
	"github.com/Abraxas-365/nexus-iam/pkg/logx"
)

var jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "jobx_jobs_total",
	Help: "Processed background jobs by type and result",
}, []string{"type", "result"})

// HandlerFunc processes one job. A returned error schedules a retry until
// the job runs out of attempts.
type HandlerFunc func(ctx context.Context, job *JobInfo) error

// Queue is the storage behind a Worker. The Worker owns every status and
// attempt transition; a Queue only persists and moves jobs.
type Queue interface {
	// Push stores the job and makes it ready now, or at RunAt if that is in
	// the future.
	Push(ctx context.Context, job *JobInfo, now time.Time) error
	// Pop blocks up to wait for a ready job. It returns nil, nil when none
	// arrived.
	Pop(ctx context.Context, queues []string, wait time.Duration) (*JobInfo, error)
	Ack(ctx context.Context, job *JobInfo) error
	Reschedule(ctx context.Context, job *JobInfo) error
	Bury(ctx context.Context, job *JobInfo) error
	// PromoteDue moves scheduled jobs whose RunAt has passed to the ready list.
	PromoteDue(ctx context.Context, queues []string, now time.Time) error
	Get(ctx context.Context, id string) (*JobInfo, error)
}

// Worker enqueues jobs and runs the registered handlers for them.
type Worker struct {
	queue Queue
	clock kernel.Clock
	opts  Options

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	running  atomic.Bool
}

func NewWorker(queue Queue, clock kernel.Clock, options ...Option) *Worker {
	opts := defaultOptions()
	for _, o := range options {
		o(&opts)
	}
	if clock == nil {
		clock = kernel.SystemClock
	}
	return &Worker{
		queue:    queue,
		clock:    clock,
		opts:     opts,
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers the handler for a job type, replacing any previous one.
func (w *Worker) Handle(jobType string, h HandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = h
}

// Enqueue stores a job and returns its id.
func (w *Worker) Enqueue(ctx context.Context, job Job) (string, error) {
	if job.Type == "" {
		return "", ErrRegistry.NewWithMessage(CodeInvalidJob, "job type is required")
	}
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return "", ErrRegistry.NewWithCause(CodeInvalidPayload, err).WithDetail("type", job.Type)
	}

	if job.Queue == "" {
		job.Queue = w.opts.Queues[0]
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = w.opts.MaxAttempts
	}

	now := w.clock.Now()
	info := &JobInfo{
		ID:          uuid.NewString(),
		Type:        job.Type,
		Queue:       job.Queue,
		Payload:     payload,
		Status:      StatusPending,
		MaxAttempts: job.MaxAttempts,
		RunAt:       now.Add(job.Delay),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := w.queue.Push(ctx, info, now); err != nil {
		return "", err
	}
	return info.ID, nil
}

func (w *Worker) Get(ctx context.Context, id string) (*JobInfo, error) {
	return w.queue.Get(ctx, id)
}

// Run processes jobs until ctx is cancelled, then waits up to the shutdown
// timeout for in-flight jobs.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrRegistry.New(CodeAlreadyRunning)
	}
	defer w.running.Store(false)

	logx.Infof("jobx: %d workers on queues %v", w.opts.Concurrency, w.opts.Queues)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.promoteLoop(ctx)
	}()
	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				if _, err := w.ProcessNext(ctx); err != nil && ctx.Err() == nil {
					logx.WithError(err).Warn("jobx: pop failed")
					sleep(ctx, w.opts.PromoteInterval)
				}
			}
		}()
	}

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logx.Info("jobx: workers stopped")
	case <-time.After(w.opts.ShutdownTimeout):
		logx.Warn("jobx: shutdown timed out with jobs in flight")
	}
	return nil
}

// ProcessNext promotes due jobs, pops one and runs it. It reports whether a
// job was handled.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	if err := w.queue.PromoteDue(ctx, w.opts.Queues, w.clock.Now()); err != nil {
		return false, err
	}
	job, err := w.queue.Pop(ctx, w.opts.Queues, w.opts.PopWait)
	if err != nil || job == nil {
		return false, err
	}
	w.process(ctx, job)
	return true, nil
}

func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PromoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.PromoteDue(ctx, w.opts.Queues, w.clock.Now()); err != nil && ctx.Err() == nil {
				logx.WithError(err).Warn("jobx: promoting scheduled jobs failed")
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, job *JobInfo) {
	log := logx.WithContext(ctx).WithFields(logx.Fields{
		"job_id":   job.ID,
		"job_type": job.Type,
		"queue":    job.Queue,
	})

	w.mu.RLock()
	handler, ok := w.handlers[job.Type]
	w.mu.RUnlock()

	job.Status = StatusActive
	job.Attempts++
	job.UpdatedAt = w.clock.Now()

	var err error
	if ok {
		err = handler(ctx, job)
	} else {
		err = ErrRegistry.New(CodeNoHandler).WithDetail("type", job.Type)
	}

	now := w.clock.Now()
	job.UpdatedAt = now

	switch {
	case err == nil:
		job.Status = StatusCompleted
		job.LastError = ""
		if ackErr := w.queue.Ack(ctx, job); ackErr != nil {
			log.WithError(ackErr).Error("jobx: ack failed")
		}
		jobsTotal.WithLabelValues(job.Type, "completed").Inc()

	case !ok || job.exhausted():
		job.Status = StatusDead
		job.LastError = err.Error()
		if buryErr := w.queue.Bury(ctx, job); buryErr != nil {
			log.WithError(buryErr).Error("jobx: bury failed")
		}
		log.WithError(err).WithField("attempts", job.Attempts).Error("jobx: job moved to dead letter")
		jobsTotal.WithLabelValues(job.Type, "dead").Inc()

	default:
		job.Status = StatusRetrying
		job.LastError = err.Error()
		job.RunAt = now.Add(w.backoff(job.Attempts))
		if rErr := w.queue.Reschedule(ctx, job); rErr != nil {
			log.WithError(rErr).Error("jobx: reschedule failed")
		}
		log.WithError(err).WithField("retry_at", job.RunAt).Warn("jobx: job failed, retrying")
		jobsTotal.WithLabelValues(job.Type, "retried").Inc()
	}
}

func (w *Worker) backoff(attempts int) time.Duration {
	d := w.opts.RetryBase
	for i := 1; i < attempts && d < w.opts.RetryMax; i++ {
		d *= 2
	}
	if d > w.opts.RetryMax {
		d = w.opts.RetryMax
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
