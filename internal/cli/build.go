package cli

import (
	"context"
	"fmt"

	"github.com/kilnhq/kiln/internal/manifest"
)

// Represents the 'kiln build' command.
type BuildCmd struct {
	Containers []string `arg:"" optional:"" help:"Containers to build; all containers when omitted."`
	Force      bool     `help:"Rebuild even when a cached image matches."`
}

// Executes the build command.
func (c *BuildCmd) Run(ctx context.Context) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	containers := eng.manifest.Containers
	if len(c.Containers) > 0 {
		selected := make(map[string]*manifest.Container, len(c.Containers))
		for _, name := range c.Containers {
			ctr, ok := containers[name]
			if !ok {
				return fmt.Errorf("%w: unknown container %q", manifest.ErrDefinition, name)
			}
			selected[name] = ctr
		}
		containers = selected
	}

	return eng.planner.BuildAll(ctx, containers, c.Force)
}
