package cli

import "fmt"

// Carries a child process exit code through the command tree to main.
//
// A non-zero exit from a dispatched tool is not a kiln failure; main
// terminates with the same code without logging an error.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}
