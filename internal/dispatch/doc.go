// Package dispatch resolves invocation names to manifest commands and runs
// them inside their container images.
//
// A [Dispatcher] is built from a validated manifest and exposes a static
// lookup table over command names and symlink aliases. Invoking a name
// ensures the target container's image is up to date, overlays the
// container's environment on the base environment, and executes the
// command's argv template with any extra arguments appended verbatim. The
// child's exit code is reported as-is; a failing tool is not a dispatcher
// error.
//
// Example usage:
//
//	d := dispatch.New(m, planner, dispatch.ChrootRunner{})
//
//	code, err := d.Invoke(ctx, "make", os.Args[1:])
//	if err != nil {
//	    return err
//	}
//	os.Exit(code)
package dispatch
