package decision

import (
	"errors"
	"fmt"

	"github.com/thiskanishk/healthassist-cds/generation"
)

// ErrInvalidInput is returned when a request fails validation.
var ErrInvalidInput = errors.New("invalid input")

// GenerationError reports that no completion could be obtained. Nothing is
// enriched in that case, so the error always reaches the caller.
type GenerationError struct {
	Kind generation.ErrorKind
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("suggestion generation failed (%s): %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
