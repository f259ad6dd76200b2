package facts

import (
	"context"
	"sort"
	"strings"
)

// Tx is the view of a store inside one batch. Backends implement it over a
// database transaction or an in-memory working copy; Execute drives it so that
// every backend shares the same validation, resolution and fallback rules.
//
// Lookups return (nil, nil) when nothing matches. Any returned error is
// treated as an infrastructure failure.
type Tx interface {
	ByID(ctx context.Context, id string) (*Fact, error)
	ByKey(ctx context.Context, key string) (*Fact, error)

	// Candidates returns up to limit facts sharing at least one of terms.
	Candidates(ctx context.Context, terms []string, limit int) ([]Fact, error)

	Put(ctx context.Context, f Fact) error
	Replace(ctx context.Context, old, updated Fact) error
	Delete(ctx context.Context, f Fact) error
}

// Execute applies changes in order against tx. It stops at the first
// infrastructure failure and returns it wrapped as an *UnavailableError; the
// caller must then discard tx. Recoverable failures are recorded per result.
func Execute(ctx context.Context, tx Tx, changes []Change, o Options) ([]Result, error) {
	results := make([]Result, 0, len(changes))
	for _, c := range changes {
		if err := ctx.Err(); err != nil {
			return nil, Unavailable("apply", err)
		}

		r := applyChange(ctx, tx, c, o)
		if r.Err != nil && !IsRecoverable(r.Err) {
			return nil, Unavailable("apply", r.Err)
		}
		results = append(results, r)
	}
	return results, nil
}

func applyChange(ctx context.Context, tx Tx, c Change, o Options) Result {
	switch c.Op {
	case OpAdd:
		return add(ctx, tx, c, o)
	case OpRemove:
		target, err := Resolve(ctx, tx, c.Ref, o.MatchThreshold)
		if err != nil {
			return Result{Change: c, Err: err}
		}
		if err := tx.Delete(ctx, *target); err != nil {
			return Result{Change: c, Err: err}
		}
		return Result{Change: c, Fact: target}
	case OpUpdate:
		return update(ctx, tx, c, o)
	default:
		return Result{Change: c, Err: &ValidationError{Content: c.Content, Reason: "unknown operation " + string(c.Op)}}
	}
}

func add(ctx context.Context, tx Tx, c Change, o Options) Result {
	content := Normalize(c.Content)
	if Key(content) == "" {
		return Result{Change: c, Err: &ValidationError{Content: content, Reason: ReasonEmpty}}
	}

	existing, err := tx.ByKey(ctx, Key(content))
	if err != nil {
		return Result{Change: c, Err: err}
	}
	if existing != nil {
		return Result{Change: c, Err: &ValidationError{Content: content, Reason: ReasonDuplicate}}
	}

	f := NewFact(content, c.Category, o.Now())
	if err := tx.Put(ctx, f); err != nil {
		return Result{Change: c, Err: err}
	}
	return Result{Change: c, Fact: &f}
}

func update(ctx context.Context, tx Tx, c Change, o Options) Result {
	content := Normalize(c.Content)
	if Key(content) == "" {
		return Result{Change: c, Err: &ValidationError{Content: content, Reason: ReasonEmpty}}
	}

	target, err := Resolve(ctx, tx, c.Ref, o.MatchThreshold)
	if IsRecoverable(err) {
		r := add(ctx, tx, Change{Op: OpAdd, Content: content, Category: c.Category}, o)
		r.Change = c
		return r
	}
	if err != nil {
		return Result{Change: c, Err: err}
	}

	dup, err := tx.ByKey(ctx, Key(content))
	if err != nil {
		return Result{Change: c, Err: err}
	}
	if dup != nil && dup.ID != target.ID {
		return Result{Change: c, Err: &ValidationError{Content: content, Reason: ReasonDuplicate}}
	}

	updated := *target
	updated.Content = content
	updated.UpdatedAt = o.Now().UTC()
	if c.Category.Valid() {
		updated.Category = c.Category
	}

	if err := tx.Replace(ctx, *target, updated); err != nil {
		return Result{Change: c, Err: err}
	}
	return Result{Change: c, Fact: &updated, Previous: target}
}

// Resolve finds the fact ref refers to: an exact id, then an exact dedupe key,
// then the most similar indexed candidate scoring at least threshold. Ties go
// to the most recently updated fact.
func Resolve(ctx context.Context, tx Tx, ref string, threshold float64) (*Fact, error) {
	ref = Normalize(ref)
	if ref == "" {
		return nil, &NotFoundError{}
	}

	if !strings.ContainsRune(ref, ' ') {
		f, err := tx.ByID(ctx, ref)
		if err != nil || f != nil {
			return f, err
		}
	}

	f, err := tx.ByKey(ctx, Key(ref))
	if err != nil || f != nil {
		return f, err
	}

	terms := Terms(ref)
	if len(terms) == 0 {
		return nil, &NotFoundError{Ref: ref}
	}

	candidates, err := tx.Candidates(ctx, terms, candidateLimit)
	if err != nil {
		return nil, err
	}

	var (
		best      *Fact
		bestScore float64
	)
	for i := range candidates {
		c := candidates[i]
		score := Similarity(ref, c.Content)
		if score < threshold {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && Newer(c, *best)) {
			best, bestScore = &c, score
		}
	}

	if best == nil {
		return nil, &NotFoundError{Ref: ref}
	}
	return best, nil
}

// Rank orders facts by descending hit count, then recency. hits is keyed by
// fact id. Used by backends that score in process.
func Rank(list []Fact, hits map[string]int) {
	sort.SliceStable(list, func(i, j int) bool {
		hi, hj := hits[list[i].ID], hits[list[j].ID]
		if hi != hj {
			return hi > hj
		}
		return Newer(list[i], list[j])
	})
}
