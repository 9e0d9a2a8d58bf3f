package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
)

// Represents the 'kiln list' command.
type ListCmd struct {
	Containers bool `help:"List containers instead of commands."`
}

// Executes the list command.
//
// The default output is the command table with descriptions; --containers
// lists container names instead. Both are sorted for stable output.
func (c *ListCmd) Run(ctx context.Context) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if c.Containers {
		names := make([]string, 0, len(eng.manifest.Containers))
		for name := range eng.manifest.Containers {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, name := range eng.dispatcher.Commands() {
		cmd := eng.manifest.Commands[name]
		fmt.Fprintf(w, "%s\t%s\n", name, cmd.Description)
	}
	return w.Flush()
}
