// Package nop provides the eventstream publisher used when no stream is
// configured.
package nop

import (
	"context"

	"github.com/papercomputeco/lokal/pkg/eventstream"
)

// Publisher validates events and discards them.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishMemoryUpdated rejects nil events and otherwise does nothing.
func (p *Publisher) PublishMemoryUpdated(_ context.Context, event *eventstream.MemoryUpdatedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
