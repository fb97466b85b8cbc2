package eventxlog

import (
	"context"

	"github.com/Abraxas-365/nexus-iam/pkg/eventx"
	"github.com/Abraxas-365/nexus-iam/pkg/logx"
)

// Publisher writes each event as an info log line. It is used when no
// message bus is configured.
type Publisher struct{}

func NewPublisher() *Publisher { return &Publisher{} }

var _ eventx.Publisher = (*Publisher)(nil)

func (Publisher) Publish(ctx context.Context, events ...eventx.Event) error {
	for _, e := range events {
		logx.WithContext(ctx).WithFields(logx.Fields{
			"event_id":          e.ID,
			"event_type":        e.Type,
			"aggregate_type":    e.AggregateType,
			"aggregate_id":      e.AggregateID,
			"aggregate_version": e.Version,
			"data":              e.Data,
		}).Info("domain event")
	}
	return nil
}
