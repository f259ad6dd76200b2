package facts

import (
	"context"
	"time"
)

const (
	// DefaultSearchLimit is used when Search is called with a non-positive limit.
	DefaultSearchLimit = 10

	// DefaultMatchThreshold is the minimum term similarity for a REMOVE or
	// UPDATE reference to resolve to a stored fact. It sits above 0.5 so that
	// a reference sharing half of its terms ("user is named Sam" against
	// "user is named Samuel") does not match.
	DefaultMatchThreshold = 0.6

	// candidateLimit bounds how many indexed candidates fuzzy resolution
	// compares against.
	candidateLimit = 25
)

// Op is the kind of a store mutation.
type Op string

const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
	OpUpdate Op = "update"
)

// Change is a single mutation applied as part of a batch.
type Change struct {
	Op Op `json:"op"`

	// Ref identifies the fact to remove or update: an id, or text that
	// resolves to the closest stored fact.
	Ref string `json:"ref,omitempty"`

	// Content is the new content for add and update.
	Content string `json:"content,omitempty"`

	// Category is optional; add classifies content when it is empty.
	Category Category `json:"category,omitempty"`
}

// Result is the outcome of one Change in a batch.
type Result struct {
	Change Change

	// Fact is the inserted, updated or removed fact.
	Fact *Fact

	// Previous holds the fact as it was before an update.
	Previous *Fact

	// Err is a *ValidationError or *NotFoundError when the change was skipped.
	Err error
}

// Applied reports whether the change took effect.
func (r Result) Applied() bool {
	return r.Err == nil && r.Fact != nil
}

// ListOptions filters List.
type ListOptions struct {
	Category Category
	Limit    int
}

// Store is durable keyed storage for facts with keyword-ranked search.
//
// Apply is the only write path that matters for consistency: every change of
// a batch is applied in order inside one transaction. Per-change validation
// and not-found failures are recorded in the Result and skipped; an
// infrastructure failure aborts the batch, leaves the store untouched and
// returns an *UnavailableError. Insert, Remove and Update are one-change
// batches.
type Store interface {
	// Insert adds a new fact. Empty or duplicate content is a *ValidationError.
	Insert(ctx context.Context, content string, category Category) (*Fact, error)

	// Remove deletes the fact ref resolves to and returns it.
	Remove(ctx context.Context, ref string) (*Fact, error)

	// Update replaces the content of the fact ref resolves to, falling back to
	// an insert when nothing matches.
	Update(ctx context.Context, ref, content string) (*Fact, error)

	// Apply applies changes in order as one batch.
	Apply(ctx context.Context, changes []Change) ([]Result, error)

	// Get returns the fact with the given id.
	Get(ctx context.Context, id string) (*Fact, error)

	// List returns facts newest first.
	List(ctx context.Context, opts ListOptions) ([]Fact, error)

	// Count returns the number of live facts.
	Count(ctx context.Context) (int, error)

	// Search returns at most limit facts ranked by the number of distinct
	// query terms they contain, most recently updated first on ties.
	Search(ctx context.Context, query string, limit int) ([]Fact, error)

	// Clear atomically removes every fact.
	Clear(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// ApplyOne applies a single change through s.Apply and unwraps its result.
func ApplyOne(ctx context.Context, s Store, c Change) (*Fact, error) {
	results, err := s.Apply(ctx, []Change{c})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0].Fact, results[0].Err
}

// Options configures behavior shared by every backend.
type Options struct {
	MatchThreshold float64
	Now            func() time.Time
}

// Option mutates Options.
type Option func(*Options)

// WithMatchThreshold overrides DefaultMatchThreshold.
func WithMatchThreshold(t float64) Option {
	return func(o *Options) {
		if t > 0 && t <= 1 {
			o.MatchThreshold = t
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

// NewOptions resolves opts over the defaults.
func NewOptions(opts ...Option) Options {
	o := Options{
		MatchThreshold: DefaultMatchThreshold,
		Now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SearchLimit normalizes a caller-provided limit.
func SearchLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	return limit
}
