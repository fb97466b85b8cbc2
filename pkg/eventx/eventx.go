// Package eventx carries domain events from aggregates to a message bus.
package eventx

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a minimal fact about an aggregate change. Data must never carry
// secrets.
type Event struct {
	ID            string         `json:"event_id"`
	Type          string         `json:"event_type"`
	AggregateID   string         `json:"aggregate_id"`
	AggregateType string         `json:"aggregate_type"`
	Version       int            `json:"aggregate_version"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Data          map[string]any `json:"data,omitempty"`
}

// New stamps a fresh event id.
func New(eventType, aggregateType, aggregateID string, version int, at time.Time, data map[string]any) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       version,
		OccurredAt:    at,
		Data:          data,
	}
}

// Publisher delivers events after the aggregate that raised them has been
// saved.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// MemoryPublisher keeps published events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, events ...Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Types returns the event types published so far, in order.
func (p *MemoryPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
