// Package memory maintains lokal's long-term memory in the background.
//
// The chat path records each finished turn with RecordTurn and moves on. A
// single worker goroutine then asks the extraction model which enduring facts
// the turn adds, corrects or retracts, parses the answer into operations and
// applies them to the fact store as one batch. Readers never wait on this
// work; they only ever see committed store states.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/lokal/pkg/delta"
	"github.com/papercomputeco/lokal/pkg/eventstream"
	"github.com/papercomputeco/lokal/pkg/facts"
	"github.com/papercomputeco/lokal/pkg/llm"
	"github.com/papercomputeco/lokal/pkg/logger"
	"github.com/papercomputeco/lokal/pkg/retriever"
)

const (
	DefaultQueueSize         = 64
	DefaultExtractionTimeout = 60 * time.Second
	DefaultContextFacts      = 10

	eventBuffer = 16
)

// Turn is one finished exchange between the user and the assistant.
type Turn struct {
	ID        string
	User      string
	Assistant string
}

// Event reports the outcome of one processed turn.
type Event struct {
	TurnID string

	// Ignored is set for filler turns that were not sent for extraction.
	Ignored bool

	// Applied holds the changes that took effect, in emission order.
	Applied []facts.Result

	// Skipped counts operations dropped as duplicates, unresolvable or
	// invalid. Rejected counts operations the parser's policy filtered out.
	Skipped  int
	Rejected int

	// Count is the number of live facts after the cycle.
	Count int

	// Err is set when the cycle was abandoned.
	Err error
}

// Config configures a Manager.
type Config struct {
	Store     facts.Store
	Generator llm.Generator

	// Parser defaults to delta.NewParser with the manager's logger.
	Parser *delta.Parser

	// Retriever selects CURRENT MEMORY for the extraction prompt. Defaults to
	// a plain retriever over Store.
	Retriever *retriever.Retriever

	// Publisher optionally receives a MemoryUpdatedEvent per processed turn.
	Publisher eventstream.Publisher

	Logger *slog.Logger

	// QueueSize is the capacity of the pending turn queue.
	QueueSize int

	// ExtractionTimeout bounds each generation call.
	ExtractionTimeout time.Duration

	// ContextFacts is how many stored facts are shown to the model.
	ContextFacts int
}

// Manager owns the background extraction worker.
type Manager struct {
	config Config
	logger *slog.Logger

	queue  chan Turn
	events chan Event
	done   chan struct{}

	// ctx is cancelled when Close gives up waiting for the queue to drain.
	ctx    context.Context
	cancel context.CancelFunc

	// closeMu guards closed and the queue close against RecordTurn.
	closeMu sync.RWMutex
	closed  bool

	// writeMu serializes batches with EraseAll.
	writeMu sync.Mutex
}

// New validates c and starts the worker.
func New(c Config) (*Manager, error) {
	if c.Store == nil {
		return nil, errors.New("memory manager requires a fact store")
	}
	if c.Generator == nil {
		return nil, errors.New("memory manager requires a generator")
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	if c.Parser == nil {
		c.Parser = delta.NewParser(delta.WithLogger(c.Logger))
	}
	if c.Retriever == nil {
		r, err := retriever.New(retriever.Config{Store: c.Store, Logger: c.Logger})
		if err != nil {
			return nil, err
		}
		c.Retriever = r
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.ExtractionTimeout <= 0 {
		c.ExtractionTimeout = DefaultExtractionTimeout
	}
	if c.ContextFacts <= 0 {
		c.ContextFacts = DefaultContextFacts
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config: c,
		logger: c.Logger,
		queue:  make(chan Turn, c.QueueSize),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}

	go m.run()

	return m, nil
}

// RecordTurn queues a finished turn for extraction without blocking. It
// returns false when the queue is full or the manager is closed; the turn is
// dropped and the next one re-derives memory from the store.
func (m *Manager) RecordTurn(user, assistant string) bool {
	return m.Record(Turn{User: user, Assistant: assistant})
}

// Record is RecordTurn for a caller that wants to choose the turn id. An empty
// id is replaced with a new UUID.
func (m *Manager) Record(t Turn) bool {
	_, ok := m.Enqueue(t)
	return ok
}

// Enqueue is Record that also returns the id the turn was queued under.
func (m *Manager) Enqueue(t Turn) (string, bool) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	m.closeMu.RLock()
	defer m.closeMu.RUnlock()

	if m.closed {
		m.logger.Warn("turn dropped, memory manager closed", "turn_id", t.ID)
		return t.ID, false
	}

	select {
	case m.queue <- t:
		m.logger.Debug("turn queued", "turn_id", t.ID)
		return t.ID, true
	default:
		m.logger.Error("turn not queued, queue full, turn dropped", "turn_id", t.ID)
		return t.ID, false
	}
}

// Events returns processed-turn notifications. Events are dropped rather than
// block the worker when the channel is full. The channel is closed once the
// worker has stopped.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// EraseAll removes every fact. It waits for an in-flight batch to commit
// first, so an erase never interleaves with one.
func (m *Manager) EraseAll(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.config.Store.Clear(ctx); err != nil {
		return fmt.Errorf("erasing memory: %w", err)
	}

	m.logger.Info("memory erased")
	return nil
}

// Close stops accepting turns and waits for queued turns to be processed. If
// ctx ends first, the in-flight cycle is cancelled, its batch is rolled back
// and the remaining turns are discarded.
func (m *Manager) Close(ctx context.Context) error {
	m.closeMu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.closeMu.Unlock()

	select {
	case <-m.done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-m.done
		return fmt.Errorf("closing memory manager: %w", ctx.Err())
	}
}

func (m *Manager) run() {
	defer close(m.done)
	defer close(m.events)

	m.logger.Debug("memory worker started")

	for t := range m.queue {
		if m.ctx.Err() != nil {
			m.logger.Warn("turn discarded during shutdown", "turn_id", t.ID)
			continue
		}
		m.emit(m.process(m.ctx, t))
	}

	m.logger.Debug("memory worker stopped")
}

// process runs one extraction cycle.
func (m *Manager) process(ctx context.Context, t Turn) Event {
	ev := Event{TurnID: t.ID}

	if filler(t.User) {
		m.logger.Debug("filler turn ignored", "turn_id", t.ID)
		ev.Ignored = true
		return ev
	}

	current, err := m.config.Retriever.RelevantFacts(ctx, t.User+"\n"+t.Assistant, m.config.ContextFacts)
	if err != nil {
		return m.abandon(ev, StageRecall, err)
	}

	response, err := m.generate(ctx, current, t)
	if err != nil {
		return m.abandon(ev, StageGenerate, err)
	}

	parsed := m.config.Parser.ParseResult(response)
	ev.Rejected = len(parsed.Rejected)

	changes, dropped := plan(current, parsed.Operations)
	ev.Skipped = dropped

	if len(changes) > 0 {
		results, err := m.apply(ctx, changes)
		if err != nil {
			return m.abandon(ev, StageApply, err)
		}
		for _, r := range results {
			if r.Applied() {
				ev.Applied = append(ev.Applied, r)
				m.logger.Info("memory updated",
					"turn_id", t.ID,
					"op", string(r.Change.Op),
					"fact_id", r.Fact.ID,
					"content", r.Fact.Content,
				)
				continue
			}
			ev.Skipped++
			m.logger.Debug("memory change skipped",
				"turn_id", t.ID,
				"op", string(r.Change.Op),
				"ref", r.Change.Ref,
				"error", r.Err,
			)
		}
	}

	if n, err := m.config.Store.Count(ctx); err == nil {
		ev.Count = n
	} else {
		m.logger.Warn("counting facts failed", "error", err)
	}

	m.logger.Debug("extraction cycle finished",
		"turn_id", t.ID,
		"applied", len(ev.Applied),
		"skipped", ev.Skipped,
		"rejected", ev.Rejected,
	)
	return ev
}

func (m *Manager) generate(ctx context.Context, current []facts.Fact, t Turn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.ExtractionTimeout)
	defer cancel()

	zero := 0.0
	response, err := m.config.Generator.Generate(ctx, llm.Request{
		System:      systemPrompt,
		Messages:    []llm.Message{llm.UserMessage(userPrompt(current, t))},
		JSON:        true,
		Temperature: &zero,
	})
	if err != nil {
		return "", err
	}
	if response == "" {
		return "", llm.ErrEmptyResponse
	}

	m.logger.Debug("extraction response", "turn_id", t.ID, "response", response)
	return response, nil
}

func (m *Manager) apply(ctx context.Context, changes []facts.Change) ([]facts.Result, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	return m.config.Store.Apply(ctx, changes)
}

func (m *Manager) abandon(ev Event, stage string, err error) Event {
	ev.Err = &ExtractionError{Stage: stage, Err: err}
	m.logger.Error("memory extraction abandoned",
		"turn_id", ev.TurnID,
		"stage", stage,
		"error", err,
	)
	return ev
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.logger.Debug("memory event dropped, no listener", "turn_id", ev.TurnID)
	}

	if m.config.Publisher == nil || ev.Ignored {
		return
	}

	if err := m.config.Publisher.PublishMemoryUpdated(m.ctx, streamEvent(ev)); err != nil {
		m.logger.Warn("publishing memory event failed", "turn_id", ev.TurnID, "error", err)
	}
}

// plan turns parsed operations into store changes. Ordinal handles resolve to
// the ids of the facts listed in the prompt; ADDs that repeat a live fact or
// an earlier ADD of the same batch are dropped. A listed fact stops counting
// as live once an earlier REMOVE or UPDATE of the batch targets it.
func plan(current []facts.Fact, ops []delta.Operation) ([]facts.Change, int) {
	seen := make(map[string]struct{}, len(current)+len(ops))
	listed := make(map[string]string, 2*len(current))
	for _, f := range current {
		seen[f.Key()] = struct{}{}
		listed[f.ID] = f.Key()
		listed[f.Key()] = f.Key()
	}

	var (
		changes = make([]facts.Change, 0, len(ops))
		dropped int
	)

	for _, op := range ops {
		c := op.Change()

		if op.Ordinal > 0 {
			if op.Ordinal <= len(current) {
				c.Ref = current[op.Ordinal-1].ID
			} else if c.Ref == "" {
				dropped++
				continue
			}
		}

		switch op.Kind {
		case delta.KindAdd:
			key := facts.Key(c.Content)
			if _, dup := seen[key]; dup {
				dropped++
				continue
			}
			seen[key] = struct{}{}
		case delta.KindRemove, delta.KindUpdate:
			if key, ok := listed[c.Ref]; ok {
				delete(seen, key)
			} else if key, ok := listed[facts.Key(c.Ref)]; ok {
				delete(seen, key)
			}
			if op.Kind == delta.KindUpdate {
				seen[facts.Key(c.Content)] = struct{}{}
			}
		}

		changes = append(changes, c)
	}

	return changes, dropped
}

func streamEvent(ev Event) *eventstream.MemoryUpdatedEvent {
	out := eventstream.NewMemoryUpdatedEvent(ev.TurnID, time.Now())
	out.Skipped = ev.Skipped
	out.Rejected = ev.Rejected
	out.FactCount = ev.Count
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}

	for _, r := range ev.Applied {
		change := eventstream.AppliedChange{
			Op:       string(r.Change.Op),
			FactID:   r.Fact.ID,
			Content:  r.Fact.Content,
			Category: string(r.Fact.Category),
		}
		if r.Previous != nil {
			change.Previous = r.Previous.Content
		}
		out.Applied = append(out.Applied, change)
	}
	return out
}
