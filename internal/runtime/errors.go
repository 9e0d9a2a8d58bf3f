package runtime

import "errors"

var (
	ErrRuntime          = errors.New("runtime error")
	ErrProgramNotFound  = errors.New("program not found in build root")
	ErrNoPackageManager = errors.New("no supported package manager in build root")
)
