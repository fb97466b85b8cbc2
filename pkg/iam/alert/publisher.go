package alert

import (
	"context"
	"fmt"

	"github.com/Abraxas-365/nexus-iam/pkg/eventx"
	"github.com/Abraxas-365/nexus-iam/pkg/jobx"
	"github.com/Abraxas-365/nexus-iam/pkg/logx"
)

// Enqueuer is the part of jobx.Worker the publisher needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job jobx.Job) (string, error)
}

// Publisher forwards events to the next publisher and enqueues an alert job
// for each event a user should hear about.
type Publisher struct {
	next eventx.Publisher
	jobs Enqueuer
}

var _ eventx.Publisher = (*Publisher)(nil)

func NewPublisher(next eventx.Publisher, jobs Enqueuer) *Publisher {
	return &Publisher{next: next, jobs: jobs}
}

// Publish returns the downstream publisher's error. Failing to enqueue an
// alert is logged and never fails the publish.
func (p *Publisher) Publish(ctx context.Context, events ...eventx.Event) error {
	err := p.next.Publish(ctx, events...)

	for _, e := range events {
		kind, ok := KindFor(e.Type)
		if !ok {
			continue
		}
		payload := Payload{
			UserID:     e.AggregateID,
			Kind:       kind,
			OccurredAt: e.OccurredAt,
			Details:    details(e.Data),
		}
		if _, qErr := p.jobs.Enqueue(ctx, jobx.Job{Type: JobType, Queue: Queue, Payload: payload}); qErr != nil {
			logx.WithContext(ctx).WithError(qErr).WithFields(logx.Fields{
				"event_id": e.ID,
				"kind":     kind,
			}).Error("failed to enqueue security alert")
		}
	}
	return err
}

func details(data map[string]any) map[string]string {
	var out map[string]string
	for k, v := range data {
		if !shown[k] {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}
