// Package runtime executes processes inside build roots.
//
// A [Root] is a handle over a directory holding a container filesystem,
// either a staging root under construction or a committed image. Commands
// run chrooted into the root with a caller-supplied environment; the
// isolation primitive beyond the filesystem boundary is an external concern.
// Exit codes are surfaced, never interpreted.
//
// The package also hosts the package-installation service: the target
// distribution's package manager is detected from the root's layout and
// invoked inside it.
//
// Example usage:
//
//	root := runtime.NewRoot(img.Path)
//
//	result, err := root.Exec(ctx, []string{"cargo", "test"}, env, "/work")
//	if err != nil {
//	    return err
//	}
//	os.Exit(result.ExitCode)
package runtime
