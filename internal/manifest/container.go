package manifest

import "fmt"

// A named build environment: an ordered step list plus an environment
// mapping.
//
// The name, the full ordered step list, and the environment mapping together
// determine the container's fingerprint; changing any of them invalidates a
// cached image.
type Container struct {
	Name    string
	Setup   []Step
	Environ map[string]string
}

// Validates the container's structure.
func (c *Container) validate() error {
	if len(c.Setup) == 0 {
		return fmt.Errorf("%w: container has no setup steps", ErrDefinition)
	}

	for i := range c.Setup {
		if err := c.Setup[i].validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	for key := range c.Environ {
		if key == "" {
			return fmt.Errorf("%w: environ contains an empty key", ErrDefinition)
		}
	}

	return nil
}
