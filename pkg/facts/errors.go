package facts

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("invalid fact")

	// ErrNotFound matches every *NotFoundError via errors.Is.
	ErrNotFound = errors.New("fact not found")

	// ErrUnavailable matches every *UnavailableError via errors.Is.
	ErrUnavailable = errors.New("fact store unavailable")
)

// Validation failure reasons.
const (
	ReasonEmpty     = "empty content"
	ReasonDuplicate = "duplicate of a live fact"
)

// ValidationError is returned when content is empty after normalization or
// duplicates a live fact. The mutation is never partially applied.
type ValidationError struct {
	Content string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Content == "" {
		return "invalid fact: " + e.Reason
	}
	return fmt.Sprintf("invalid fact %q: %s", e.Content, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError is returned when a remove or update reference does not resolve
// to a live fact.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	if e.Ref == "" {
		return "fact not found"
	}
	return "fact not found: " + e.Ref
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// UnavailableError wraps an infrastructure failure of the underlying storage.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("fact store unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Unavailable wraps err as an *UnavailableError for op. Nil stays nil and an
// error that is already an *UnavailableError is returned unchanged.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return err
	}
	return &UnavailableError{Op: op, Err: err}
}

// IsRecoverable reports whether err is a per-change failure (validation or
// not found) that a batch skips rather than aborting on.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound)
}
