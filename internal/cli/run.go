package cli

import "context"

// Represents the 'kiln run' command.
type RunCmd struct {
	Command string   `arg:"" help:"Command name from the manifest."`
	Args    []string `arg:"" optional:"" passthrough:"" help:"Arguments passed through to the command."`
}

// Executes the run command.
//
// The target container's image is ensured before the command starts, so a
// changed definition rebuilds transparently. The child's exit code becomes
// the process exit code.
func (c *RunCmd) Run(ctx context.Context) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	code, err := eng.dispatcher.Invoke(ctx, c.Command, c.Args)
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
