// Package delta turns raw model output into an ordered list of validated
// memory operations (ADD, REMOVE, UPDATE).
//
// The parser is tolerant: it accepts tagged lines ("ADD: ...") and the JSON
// envelope {"operations": [...]}, skips anything it does not recognize, and
// never fails a whole response because of one malformed entry. Every ADD and
// UPDATE passes through a Policy that keeps only enduring facts.
package delta

import (
	"strconv"

	"github.com/papercomputeco/lokal/pkg/facts"
)

// Kind is the type of a memory operation.
type Kind string

const (
	KindAdd    Kind = "ADD"
	KindRemove Kind = "REMOVE"
	KindUpdate Kind = "UPDATE"
)

// Operation is one instruction derived from an extraction response. It is
// never persisted.
type Operation struct {
	Kind Kind `json:"kind"`

	// Target references the fact to remove or update by content or id.
	Target string `json:"target,omitempty"`

	// Ordinal is the "[ID: n]" handle the model used to reference a fact
	// listed in the prompt, or 0.
	Ordinal int `json:"ordinal,omitempty"`

	// Content is the new fact text for ADD and UPDATE.
	Content string `json:"content,omitempty"`

	Category  facts.Category `json:"category,omitempty"`
	Rationale string         `json:"rationale,omitempty"`
}

// Change converts the operation into a store mutation.
func (o Operation) Change() facts.Change {
	c := facts.Change{
		Ref:      o.Target,
		Content:  o.Content,
		Category: o.Category,
	}

	switch o.Kind {
	case KindAdd:
		c.Op = facts.OpAdd
	case KindRemove:
		c.Op = facts.OpRemove
	case KindUpdate:
		c.Op = facts.OpUpdate
	}
	return c
}

// String renders the operation in the tagged line format.
func (o Operation) String() string {
	ref := o.Target
	if ref == "" && o.Ordinal > 0 {
		ref = "[ID: " + strconv.Itoa(o.Ordinal) + "]"
	}

	switch o.Kind {
	case KindRemove:
		return "REMOVE: " + ref
	case KindUpdate:
		return "UPDATE: " + ref + " -> " + o.Content
	default:
		return string(o.Kind) + ": " + o.Content
	}
}

// Rejection records an operation dropped by the parser and why.
type Rejection struct {
	Operation Operation
	Reason    string
}

// Result is the full outcome of parsing one response.
type Result struct {
	Operations []Operation
	Rejected   []Rejection
}
