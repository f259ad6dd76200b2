// Package retriever selects the stored facts relevant to a query for prompt
// construction. It only reads from the fact store and never waits on
// extraction.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/lokal/pkg/facts"
	"github.com/papercomputeco/lokal/pkg/logger"
)

// Config configures a Retriever.
type Config struct {
	Store facts.Store

	// PinIdentity is how many of the most recent identity facts are always
	// included, whether or not they match the query. Zero disables pinning.
	PinIdentity int

	Logger *slog.Logger
}

// Retriever wraps Store.Search with identity pinning.
type Retriever struct {
	store  facts.Store
	pin    int
	logger *slog.Logger
}

// New creates a Retriever.
func New(c Config) (*Retriever, error) {
	if c.Store == nil {
		return nil, errors.New("retriever requires a fact store")
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	return &Retriever{
		store:  c.Store,
		pin:    max(c.PinIdentity, 0),
		logger: c.Logger,
	}, nil
}

// RelevantFacts returns at most limit facts for query, best match first,
// followed by pinned identity facts not already matched. When pins do not fit,
// the lowest ranked unpinned matches give way to them; a pinned fact that
// matched keeps its rank.
func (r *Retriever) RelevantFacts(ctx context.Context, query string, limit int) ([]facts.Fact, error) {
	limit = facts.SearchLimit(limit)

	matched, err := r.store.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching facts: %w", err)
	}
	if r.pin == 0 {
		return matched, nil
	}

	pins, err := r.store.List(ctx, facts.ListOptions{
		Category: facts.CategoryIdentity,
		Limit:    min(r.pin, limit),
	})
	if err != nil {
		return nil, fmt.Errorf("listing identity facts: %w", err)
	}
	if len(pins) == 0 {
		return matched, nil
	}

	pinned := make(map[string]bool, len(pins))
	for _, f := range pins {
		pinned[f.ID] = false
	}
	for _, f := range matched {
		if _, ok := pinned[f.ID]; ok {
			pinned[f.ID] = true
		}
	}

	var extra []facts.Fact
	for _, f := range pins {
		if !pinned[f.ID] {
			extra = append(extra, f)
		}
	}

	// Every pin counts against the limit, wherever it lands.
	room := limit - len(pins)
	out := make([]facts.Fact, 0, limit)
	for _, f := range matched {
		if _, ok := pinned[f.ID]; ok {
			out = append(out, f)
			continue
		}
		if room > 0 {
			out = append(out, f)
			room--
		}
	}

	r.logger.Debug("pinned identity facts", "query", query, "pinned", len(pins), "appended", len(extra))
	return append(out, extra...), nil
}

// Format renders facts as a markdown bullet list, one fact per line.
func Format(list []facts.Fact) string {
	var b strings.Builder
	for _, f := range list {
		b.WriteString("- ")
		b.WriteString(f.Content)
		b.WriteByte('\n')
	}
	return b.String()
}
