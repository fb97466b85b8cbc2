package jobxmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/jobx"
)

// Queue is an in-process jobx.Queue for memory mode and tests. Jobs are
// lost on restart.
type Queue struct {
	mu        sync.Mutex
	jobs      map[string]jobx.JobInfo
	ready     map[string][]string
	scheduled map[string][]string
	dead      map[string][]string
	wake      chan struct{}
}

var _ jobx.Queue = (*Queue)(nil)

func NewQueue() *Queue {
	return &Queue{
		jobs:      make(map[string]jobx.JobInfo),
		ready:     make(map[string][]string),
		scheduled: make(map[string][]string),
		dead:      make(map[string][]string),
		wake:      make(chan struct{}, 1),
	}
}

func (q *Queue) Push(_ context.Context, job *jobx.JobInfo, now time.Time) error {
	q.mu.Lock()
	q.jobs[job.ID] = *job
	if job.RunAt.After(now) {
		q.scheduled[job.Queue] = append(q.scheduled[job.Queue], job.ID)
	} else {
		q.ready[job.Queue] = append(q.ready[job.Queue], job.ID)
	}
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *Queue) Pop(ctx context.Context, queues []string, wait time.Duration) (*jobx.JobInfo, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		if job := q.take(queues); job != nil {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-timer.C:
			return nil, nil
		case <-q.wake:
		}
	}
}

func (q *Queue) take(queues []string) *jobx.JobInfo {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, name := range queues {
		ids := q.ready[name]
		if len(ids) == 0 {
			continue
		}
		q.ready[name] = ids[1:]
		job := q.jobs[ids[0]]
		return &job
	}
	return nil
}

func (q *Queue) Ack(_ context.Context, job *jobx.JobInfo) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.ID] = *job
	return nil
}

func (q *Queue) Reschedule(_ context.Context, job *jobx.JobInfo) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.ID] = *job
	q.scheduled[job.Queue] = append(q.scheduled[job.Queue], job.ID)
	return nil
}

func (q *Queue) Bury(_ context.Context, job *jobx.JobInfo) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.ID] = *job
	q.dead[job.Queue] = append(q.dead[job.Queue], job.ID)
	return nil
}

func (q *Queue) PromoteDue(_ context.Context, queues []string, now time.Time) error {
	q.mu.Lock()
	promoted := false
	for _, name := range queues {
		var keep, due []string
		for _, id := range q.scheduled[name] {
			if q.jobs[id].RunAt.After(now) {
				keep = append(keep, id)
			} else {
				due = append(due, id)
			}
		}
		sort.SliceStable(due, func(i, j int) bool {
			return q.jobs[due[i]].RunAt.Before(q.jobs[due[j]].RunAt)
		})
		q.scheduled[name] = keep
		q.ready[name] = append(q.ready[name], due...)
		promoted = promoted || len(due) > 0
	}
	q.mu.Unlock()
	if promoted {
		q.signal()
	}
	return nil
}

func (q *Queue) Get(_ context.Context, id string) (*jobx.JobInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, jobx.ErrRegistry.New(jobx.CodeJobNotFound).WithDetail("job_id", id)
	}
	return &job, nil
}

// Dead returns the ids buried on a queue, oldest first.
func (q *Queue) Dead(queue string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.dead[queue]...)
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
