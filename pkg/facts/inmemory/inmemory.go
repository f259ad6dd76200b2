// Package inmemory provides an ephemeral, process-local facts.Store used for
// tests and session-only memory. Nothing is persisted.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/papercomputeco/lokal/pkg/facts"
)

// Store implements facts.Store using in-process maps guarded by a RWMutex.
// Batches are applied to a working copy that replaces the live state only
// when the whole batch succeeds, so readers never observe partial batches.
type Store struct {
	opts facts.Options

	mu    sync.RWMutex
	state *state
}

// NewStore creates an empty in-memory store.
func NewStore(opts ...facts.Option) *Store {
	return &Store{
		opts:  facts.NewOptions(opts...),
		state: newState(),
	}
}

func (s *Store) Insert(ctx context.Context, content string, category facts.Category) (*facts.Fact, error) {
	return facts.ApplyOne(ctx, s, facts.Change{Op: facts.OpAdd, Content: content, Category: category})
}

func (s *Store) Remove(ctx context.Context, ref string) (*facts.Fact, error) {
	return facts.ApplyOne(ctx, s, facts.Change{Op: facts.OpRemove, Ref: ref})
}

func (s *Store) Update(ctx context.Context, ref, content string) (*facts.Fact, error) {
	return facts.ApplyOne(ctx, s, facts.Change{Op: facts.OpUpdate, Ref: ref, Content: content})
}

func (s *Store) Apply(ctx context.Context, changes []facts.Change) ([]facts.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	results, err := facts.Execute(ctx, work, changes, s.opts)
	if err != nil {
		return nil, err
	}

	s.state = work
	return results, nil
}

func (s *Store) Get(_ context.Context, id string) (*facts.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.state.facts[id]
	if !ok {
		return nil, &facts.NotFoundError{Ref: id}
	}
	return &f, nil
}

func (s *Store) List(_ context.Context, opts facts.ListOptions) ([]facts.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]facts.Fact, 0, len(s.state.facts))
	for _, f := range s.state.facts {
		if opts.Category != "" && f.Category != opts.Category {
			continue
		}
		list = append(list, f)
	}

	sort.Slice(list, func(i, j int) bool { return facts.Newer(list[i], list[j]) })

	if opts.Limit > 0 && len(list) > opts.Limit {
		list = list[:opts.Limit]
	}
	return list, nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.state.facts), nil
}

func (s *Store) Search(_ context.Context, query string, limit int) ([]facts.Fact, error) {
	terms := facts.Terms(query)
	if len(terms) == 0 {
		return []facts.Fact{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.search(terms, facts.SearchLimit(limit)), nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = newState()
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// state is one consistent snapshot of the store. It implements facts.Tx.
type state struct {
	facts map[string]facts.Fact
	keys  map[string]string
	index map[string]map[string]struct{}
}

func newState() *state {
	return &state{
		facts: make(map[string]facts.Fact),
		keys:  make(map[string]string),
		index: make(map[string]map[string]struct{}),
	}
}

func (st *state) clone() *state {
	c := &state{
		facts: make(map[string]facts.Fact, len(st.facts)),
		keys:  make(map[string]string, len(st.keys)),
		index: make(map[string]map[string]struct{}, len(st.index)),
	}
	for id, f := range st.facts {
		c.facts[id] = f
	}
	for k, id := range st.keys {
		c.keys[k] = id
	}
	for term, ids := range st.index {
		set := make(map[string]struct{}, len(ids))
		for id := range ids {
			set[id] = struct{}{}
		}
		c.index[term] = set
	}
	return c
}

func (st *state) search(terms []string, limit int) []facts.Fact {
	hits := make(map[string]int)
	for _, term := range terms {
		for id := range st.index[term] {
			hits[id]++
		}
	}

	list := make([]facts.Fact, 0, len(hits))
	for id := range hits {
		list = append(list, st.facts[id])
	}
	facts.Rank(list, hits)

	if len(list) > limit {
		list = list[:limit]
	}
	return list
}

func (st *state) ByID(_ context.Context, id string) (*facts.Fact, error) {
	f, ok := st.facts[id]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (st *state) ByKey(_ context.Context, key string) (*facts.Fact, error) {
	id, ok := st.keys[key]
	if !ok {
		return nil, nil
	}
	f := st.facts[id]
	return &f, nil
}

func (st *state) Candidates(_ context.Context, terms []string, limit int) ([]facts.Fact, error) {
	return st.search(terms, limit), nil
}

func (st *state) Put(_ context.Context, f facts.Fact) error {
	st.facts[f.ID] = f
	st.keys[f.Key()] = f.ID
	st.indexFact(f)
	return nil
}

func (st *state) Replace(ctx context.Context, old, updated facts.Fact) error {
	if err := st.Delete(ctx, old); err != nil {
		return err
	}
	return st.Put(ctx, updated)
}

func (st *state) Delete(_ context.Context, f facts.Fact) error {
	stored, ok := st.facts[f.ID]
	if !ok {
		return nil
	}

	delete(st.facts, f.ID)
	delete(st.keys, stored.Key())
	for _, term := range facts.Terms(stored.Content) {
		ids := st.index[term]
		delete(ids, f.ID)
		if len(ids) == 0 {
			delete(st.index, term)
		}
	}
	return nil
}

func (st *state) indexFact(f facts.Fact) {
	for _, term := range facts.Terms(f.Content) {
		ids, ok := st.index[term]
		if !ok {
			ids = make(map[string]struct{})
			st.index[term] = ids
		}
		ids[f.ID] = struct{}{}
	}
}
