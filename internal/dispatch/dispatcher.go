package dispatch

import (
	"context"
	"os"
	"sort"

	"github.com/kilnhq/kiln/internal/cache"
	"github.com/kilnhq/kiln/internal/manifest"
	"github.com/kilnhq/kiln/internal/runtime"
)

// Produces an up-to-date image for a container.
//
// Satisfied by [build.Planner]; tests substitute fakes.
type ImagePlanner interface {
	EnsureImage(ctx context.Context, ctr *manifest.Container) (*cache.Image, error)
}

// Executes an argv inside an image, returning the child's exit code.
type Runner interface {
	Run(ctx context.Context, imageDir string, argv, env []string) (int, error)
}

// Runs commands chrooted into the image with the caller's standard streams.
type ChrootRunner struct{}

func (ChrootRunner) Run(ctx context.Context, imageDir string, argv, env []string) (int, error) {
	root := runtime.NewRoot(imageDir)
	return root.Run(ctx, argv, env, "", os.Stdin, os.Stdout, os.Stderr)
}

// Maps invocation names to manifest commands and runs them.
type Dispatcher struct {
	manifest *manifest.Manifest
	planner  ImagePlanner
	runner   Runner
	table    map[string]*manifest.Command // Primary names and aliases.
}

// Builds a dispatcher over a validated manifest.
//
// The lookup table is fixed at construction: every command is reachable
// under its primary name, and additionally under its symlink alias when one
// is declared. Alias collisions were rejected at manifest load time.
func New(m *manifest.Manifest, planner ImagePlanner, runner Runner) *Dispatcher {
	table := make(map[string]*manifest.Command, len(m.Commands)*2)
	for name, cmd := range m.Commands {
		table[name] = cmd
		if cmd.SymlinkName != "" {
			table[cmd.SymlinkName] = cmd
		}
	}

	return &Dispatcher{
		manifest: m,
		planner:  planner,
		runner:   runner,
		table:    table,
	}
}

// Resolves an invocation name to its command.
func (d *Dispatcher) Resolve(name string) (*manifest.Command, error) {
	cmd, ok := d.table[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return cmd, nil
}

// Runs the named command with extra arguments appended to its argv
// template.
//
// The container's image is ensured first, so invoking a command after a
// definition change transparently rebuilds. Extra arguments pass through
// verbatim; nothing is interpreted as a flag. The returned code is the
// child's exit code; a non-zero exit is not an error.
func (d *Dispatcher) Invoke(ctx context.Context, name string, extra []string) (int, error) {
	cmd, err := d.Resolve(name)
	if err != nil {
		return 0, err
	}

	ctr := d.manifest.Containers[cmd.Container]

	img, err := d.planner.EnsureImage(ctx, ctr)
	if err != nil {
		return 0, err
	}

	argv := make([]string, 0, len(cmd.Run)+len(extra))
	argv = append(argv, cmd.Run...)
	argv = append(argv, extra...)

	return d.runner.Run(ctx, img.Path, argv, commandEnviron(ctr))
}

// Returns the primary command names in sorted order.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.manifest.Commands))
	for name := range d.manifest.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
