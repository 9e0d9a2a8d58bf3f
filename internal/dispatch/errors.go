package dispatch

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("unknown command")

// Reports an invocation name that matches neither a command nor an alias.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown command %q", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
