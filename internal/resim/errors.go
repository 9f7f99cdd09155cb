package resim

import (
	"errors"
	"fmt"

	"epinet/internal/model"
)

var (
	ErrTooManyGroups   = model.ErrTooManyGroups
	ErrMissingBaseline = errors.New("no baseline population counts recorded")
)

// StepError wraps a hard failure of the sampler for one network at one step.
type StepError struct {
	At      int
	Network int
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("simulate network %d at step %d: %v", e.Network+1, e.At, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
