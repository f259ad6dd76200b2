package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMemoryUpdated is emitted after an extraction cycle finishes.
	EventTypeMemoryUpdated = "lokal.memory.updated"
)

// MemoryUpdatedEvent is a transport-neutral payload describing what one
// conversation turn changed in long-term memory.
type MemoryUpdatedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	// TurnID identifies the conversation turn the changes came from.
	TurnID string `json:"turn_id"`

	Applied []AppliedChange `json:"applied"`

	// Skipped counts changes the store declined (duplicates, unknown
	// references). Rejected counts operations the parser filtered out.
	Skipped  int `json:"skipped"`
	Rejected int `json:"rejected"`

	// FactCount is the number of live facts after the cycle.
	FactCount int `json:"fact_count"`

	Error string `json:"error,omitempty"`
}

// AppliedChange is one change that took effect.
type AppliedChange struct {
	Op       string `json:"op"`
	FactID   string `json:"fact_id"`
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`

	// Previous is the content before an update.
	Previous string `json:"previous,omitempty"`
}

// NewMemoryUpdatedEvent stamps a new event for turnID.
func NewMemoryUpdatedEvent(turnID string, now time.Time) *MemoryUpdatedEvent {
	return &MemoryUpdatedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeMemoryUpdated,
		EventID:       uuid.NewString(),
		EmittedAt:     now.UTC(),
		TurnID:        turnID,
		Applied:       []AppliedChange{},
	}
}
