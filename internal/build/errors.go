package build

import (
	"errors"
	"fmt"
)

var ErrProvision = errors.New("provision failed")

// Reports a setup step whose underlying service failed.
//
// The failing container and step are identified so the user can tell which
// part of the definition broke. Matches [ErrProvision] under errors.Is; the
// cause remains reachable through Unwrap.
type ProvisionError struct {
	Container string // Container being built.
	Step      string // Label of the failing step.
	Index     int    // 1-based position of the step in the setup list.
	Err       error  // Underlying cause.
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("container %q: step %d (%s): %v", e.Container, e.Index, e.Step, e.Err)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

func (e *ProvisionError) Is(target error) bool {
	return target == ErrProvision
}
