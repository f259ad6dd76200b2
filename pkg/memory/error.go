package memory

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when memory operations are attempted
// but memory is disabled.
var ErrNotConfigured = errors.New("memory not configured")

// Extraction stages reported by ExtractionError.
const (
	StageRecall   = "recall"
	StageGenerate = "generate"
	StageApply    = "apply"
)

// ExtractionError reports an abandoned extraction cycle. The store is left as
// it was before the cycle started.
type ExtractionError struct {
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("memory extraction failed at %s: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
