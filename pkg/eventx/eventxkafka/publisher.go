package eventxkafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/eventx"
)

// Publisher writes events to one topic keyed by aggregate id, so every event
// of a user lands on the same partition in version order.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errx.New("kafka publisher requires at least one broker", errx.TypeValidation)
	}
	if topic == "" {
		return nil, errx.New("kafka publisher requires a topic", errx.TypeValidation)
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

var _ eventx.Publisher = (*Publisher)(nil)

func (p *Publisher) Publish(ctx context.Context, events ...eventx.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return errx.Wrap(err, "failed to encode event", errx.TypeInternal).WithDetail("event_type", e.Type)
		}
		msgs[i] = kafka.Message{
			Key:   []byte(e.AggregateID),
			Value: payload,
			Time:  e.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
				{Key: "aggregate_type", Value: []byte(e.AggregateType)},
			},
		}
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		var writeErrs kafka.WriteErrors
		if errors.As(err, &writeErrs) {
			return errx.Wrap(err, "failed to publish some events", errx.TypeExternal).
				WithDetail("failed", writeErrs.Count())
		}
		return errx.Wrap(err, "failed to publish events", errx.TypeExternal)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
