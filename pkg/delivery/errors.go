package delivery

import (
	"context"
	"errors"
	"fmt"
)

// GenerationError represents a failed content generation with the HTTP
// status it maps to. Failed generations are never cached; the next
// request retries.
type GenerationError struct {
	StatusCode int
	Timeout    bool
	Err        error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("feed generation timed out (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("feed generation failed (status %d): %v", e.StatusCode, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *GenerationError) Unwrap() error {
	return e.Err
}

// classifyGenerationError maps a generator error onto a response status.
// Timeouts become 503 (the backend is overloaded, try again later),
// everything else 500.
func classifyGenerationError(err error) *GenerationError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &GenerationError{StatusCode: 503, Timeout: true, Err: err}
	}
	return &GenerationError{StatusCode: 500, Err: err}
}
