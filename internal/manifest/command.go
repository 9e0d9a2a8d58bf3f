package manifest

import "fmt"

// A named invocation: an argv template executed inside a container.
//
// The description is documentation only and never affects behavior. When
// SymlinkName is set, invoking the tool under that name is equivalent to
// invoking the command directly, with trailing arguments appended to the
// argv template.
type Command struct {
	Name        string
	Description string
	Container   string
	Run         []string
	SymlinkName string
}

// Validates the command's structure.
//
// The container reference is checked against the manifest's container
// mapping by the caller, which owns both mappings.
func (c *Command) validate() error {
	if c.Container == "" {
		return fmt.Errorf("%w: command has no container", ErrDefinition)
	}

	if len(c.Run) == 0 {
		return fmt.Errorf("%w: command has an empty run list", ErrDefinition)
	}
	if c.Run[0] == "" {
		return fmt.Errorf("%w: run has an empty program name", ErrDefinition)
	}

	if c.SymlinkName == c.Name && c.SymlinkName != "" {
		return fmt.Errorf("%w: symlink-name matches the command name", ErrDefinition)
	}

	return nil
}
