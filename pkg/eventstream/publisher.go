// Package eventstream publishes memory change notifications to external
// consumers.
package eventstream

import "context"

// Publisher publishes memory events to an event stream backend.
type Publisher interface {
	PublishMemoryUpdated(ctx context.Context, event *MemoryUpdatedEvent) error
	Close() error
}
