package templates

import (
	"errors"
	"fmt"
)

var ErrValidation = errors.New("template validation failed")

// ValidationError carries every problem found in one template document.
type ValidationError struct {
	TemplateID string
	Source     string
	Err        error
}

func (e *ValidationError) Error() string {
	id := e.TemplateID
	if id == "" {
		id = "<unknown>"
	}
	return fmt.Sprintf("template [%s] from [%s]: %s", id, e.Source, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
