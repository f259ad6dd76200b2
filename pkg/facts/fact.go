// Package facts defines the durable fact model shared by every memory
// component: the Fact record, the Store contract that backends implement, and
// the text helpers (normalization, dedupe keys, search terms, similarity) that
// keep every backend's behavior identical.
//
// Facts are distilled, persistent statements about the user ("user's name is
// Alex", "user is allergic to peanuts"), never raw conversation messages.
package facts

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is a coarse label attached to a fact. It is informational only and
// never influences ranking.
type Category string

const (
	CategoryIdentity     Category = "identity"
	CategoryPreference   Category = "preference"
	CategoryRelationship Category = "relationship"
	CategoryOther        Category = "other"
)

// ParseCategory maps free-form text onto a known category. Unknown or empty
// values return the empty category so callers can fall back to Classify.
func ParseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "identity", "user", "personal":
		return CategoryIdentity
	case "preference", "preferences":
		return CategoryPreference
	case "relationship", "relationships", "family":
		return CategoryRelationship
	case "other", "misc":
		return CategoryOther
	default:
		return ""
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryIdentity, CategoryPreference, CategoryRelationship, CategoryOther:
		return true
	}
	return false
}

// Fact is one durable statement about the user.
type Fact struct {
	// ID is a time-ordered UUID (v7) assigned on insert and never reused.
	ID string `json:"id"`

	// Content is the normalized fact text.
	Content string `json:"content"`

	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFact builds a fact with a fresh id and timestamps. Content is normalized
// and an invalid category is replaced with the classified one.
func NewFact(content string, category Category, now time.Time) Fact {
	content = Normalize(content)
	if !category.Valid() {
		category = Classify(content)
	}

	return Fact{
		ID:        NewID(),
		Content:   content,
		Category:  category,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// NewID returns a new UUIDv7 string. v7 ids sort by creation time, which the
// backends rely on as the final ranking tie-break.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Key returns the dedupe key for the fact's content.
func (f Fact) Key() string {
	return Key(f.Content)
}

// Newer reports whether a should rank ahead of b on recency.
func Newer(a, b Fact) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID > b.ID
}
