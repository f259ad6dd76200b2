// Package sqlstore implements facts.Store on top of database/sql. The sqlite
// and postgres packages wrap it with their driver, schema dialect and
// connection setup.
//
// Layout: a facts table keyed by id with a unique dedupe key column, plus a
// fact_terms inverted index (term, fact_id). Search touches only the posting
// lists of the query terms.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/lokal/pkg/facts"
)

// Dialect captures the differences between SQL engines.
type Dialect struct {
	// Name is used in error messages.
	Name string

	// Schema is executed in order on open. Statements must be idempotent.
	Schema []string

	// Numbered selects $1-style placeholders instead of ?.
	Numbered bool
}

const factColumns = "id, content, category, created_at, updated_at"

// Store is a facts.Store backed by a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	opts    facts.Options
}

// New creates the schema on db and returns a store using it. The store owns
// db and closes it on Close.
func New(ctx context.Context, db *sql.DB, dialect Dialect, opts ...facts.Option) (*Store, error) {
	s := &Store{
		db:      db,
		dialect: dialect,
		opts:    facts.NewOptions(opts...),
	}

	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s schema: %w", dialect.Name, err)
		}
	}

	return s, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
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

// Apply runs the whole batch in one transaction.
func (s *Store) Apply(ctx context.Context, changes []facts.Change) ([]facts.Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, facts.Unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	results, err := facts.Execute(ctx, &batch{q: tx, s: s}, changes, s.opts)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, facts.Unavailable("commit", err)
	}
	return results, nil
}

func (s *Store) Get(ctx context.Context, id string) (*facts.Fact, error) {
	f, err := s.getBy(ctx, s.db, "id", id)
	if err != nil {
		return nil, facts.Unavailable("get", err)
	}
	if f == nil {
		return nil, &facts.NotFoundError{Ref: id}
	}
	return f, nil
}

func (s *Store) List(ctx context.Context, opts facts.ListOptions) ([]facts.Fact, error) {
	query := "SELECT " + factColumns + " FROM facts"
	var args []any
	if opts.Category != "" {
		query += " WHERE category = ?"
		args = append(args, string(opts.Category))
	}
	query += " ORDER BY updated_at DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, facts.Unavailable("list", err)
	}
	list, err := scanFacts(rows, false)
	if err != nil {
		return nil, facts.Unavailable("list", err)
	}
	return list, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM facts").Scan(&n); err != nil {
		return 0, facts.Unavailable("count", err)
	}
	return n, nil
}

func (s *Store) Search(ctx context.Context, query string, limit int) ([]facts.Fact, error) {
	terms := facts.Terms(query)
	if len(terms) == 0 {
		return []facts.Fact{}, nil
	}

	list, err := s.search(ctx, s.db, terms, facts.SearchLimit(limit))
	if err != nil {
		return nil, facts.Unavailable("search", err)
	}
	return list, nil
}

// Clear deletes the index and every fact in one transaction.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return facts.Unavailable("clear", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM fact_terms"); err != nil {
		return facts.Unavailable("clear", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM facts"); err != nil {
		return facts.Unavailable("clear", err)
	}

	if err := tx.Commit(); err != nil {
		return facts.Unavailable("clear", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getBy(ctx context.Context, q querier, column, value string) (*facts.Fact, error) {
	row := q.QueryRowContext(ctx, s.rebind("SELECT "+factColumns+" FROM facts WHERE "+column+" = ?"), value)

	f, err := scanFact(row.Scan, false)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &f, nil
}

func (s *Store) search(ctx context.Context, q querier, terms []string, limit int) ([]facts.Fact, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(terms)), ", ")
	query := `SELECT f.id, f.content, f.category, f.created_at, f.updated_at, COUNT(*) AS hits
		FROM fact_terms t
		JOIN facts f ON f.id = t.fact_id
		WHERE t.term IN (` + placeholders + `)
		GROUP BY f.id, f.content, f.category, f.created_at, f.updated_at
		ORDER BY hits DESC, f.updated_at DESC, f.id DESC
		LIMIT ?`

	args := make([]any, 0, len(terms)+1)
	for _, t := range terms {
		args = append(args, t)
	}
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return scanFacts(rows, true)
}

// rebind rewrites ? placeholders for dialects with numbered parameters.
func (s *Store) rebind(query string) string {
	if !s.dialect.Numbered {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func scanFacts(rows *sql.Rows, withHits bool) ([]facts.Fact, error) {
	defer rows.Close()

	list := []facts.Fact{}
	for rows.Next() {
		f, err := scanFact(rows.Scan, withHits)
		if err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	return list, rows.Err()
}

func scanFact(scan func(dest ...any) error, withHits bool) (facts.Fact, error) {
	var (
		f                    facts.Fact
		category             string
		createdAt, updatedAt int64
		hits                 int
	)

	dest := []any{&f.ID, &f.Content, &category, &createdAt, &updatedAt}
	if withHits {
		dest = append(dest, &hits)
	}
	if err := scan(dest...); err != nil {
		return facts.Fact{}, err
	}

	f.Category = facts.Category(category)
	f.CreatedAt = time.Unix(0, createdAt).UTC()
	f.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return f, nil
}

// batch implements facts.Tx over one *sql.Tx.
type batch struct {
	q querier
	s *Store
}

func (b *batch) ByID(ctx context.Context, id string) (*facts.Fact, error) {
	return b.s.getBy(ctx, b.q, "id", id)
}

func (b *batch) ByKey(ctx context.Context, key string) (*facts.Fact, error) {
	return b.s.getBy(ctx, b.q, "norm_key", key)
}

func (b *batch) Candidates(ctx context.Context, terms []string, limit int) ([]facts.Fact, error) {
	return b.s.search(ctx, b.q, terms, limit)
}

func (b *batch) Put(ctx context.Context, f facts.Fact) error {
	_, err := b.q.ExecContext(ctx, b.s.rebind(
		"INSERT INTO facts (id, content, norm_key, category, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)"),
		f.ID, f.Content, f.Key(), string(f.Category), f.CreatedAt.UnixNano(), f.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting fact: %w", err)
	}
	return b.indexTerms(ctx, f)
}

func (b *batch) Replace(ctx context.Context, old, updated facts.Fact) error {
	_, err := b.q.ExecContext(ctx, b.s.rebind(
		"UPDATE facts SET content = ?, norm_key = ?, category = ?, updated_at = ? WHERE id = ?"),
		updated.Content, updated.Key(), string(updated.Category), updated.UpdatedAt.UnixNano(), old.ID,
	)
	if err != nil {
		return fmt.Errorf("updating fact: %w", err)
	}

	if _, err := b.q.ExecContext(ctx, b.s.rebind("DELETE FROM fact_terms WHERE fact_id = ?"), old.ID); err != nil {
		return fmt.Errorf("clearing fact terms: %w", err)
	}
	return b.indexTerms(ctx, updated)
}

func (b *batch) Delete(ctx context.Context, f facts.Fact) error {
	if _, err := b.q.ExecContext(ctx, b.s.rebind("DELETE FROM fact_terms WHERE fact_id = ?"), f.ID); err != nil {
		return fmt.Errorf("deleting fact terms: %w", err)
	}
	if _, err := b.q.ExecContext(ctx, b.s.rebind("DELETE FROM facts WHERE id = ?"), f.ID); err != nil {
		return fmt.Errorf("deleting fact: %w", err)
	}
	return nil
}

func (b *batch) indexTerms(ctx context.Context, f facts.Fact) error {
	stmt := b.s.rebind("INSERT INTO fact_terms (term, fact_id) VALUES (?, ?)")
	for _, term := range facts.Terms(f.Content) {
		if _, err := b.q.ExecContext(ctx, stmt, term, f.ID); err != nil {
			return fmt.Errorf("indexing term %q: %w", term, err)
		}
	}
	return nil
}
