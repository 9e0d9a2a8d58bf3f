// Package build turns container definitions into committed, cached images.
//
// The [Planner] owns the ensure-image algorithm: compute the container's
// fingerprint, return the committed image on a cache hit, otherwise execute
// the setup steps in declaration order against a fresh staging root and
// atomically commit the result. A step failure aborts the build and
// discards the staging root; no partial image is ever committed. Builds of
// the same fingerprint are serialized on a per-fingerprint lock, so
// concurrent callers share one build instead of duplicating work. Builds of
// independent containers proceed concurrently.
//
// Step execution dispatches over the closed step set: OS bootstrap is
// delegated to the bootstrap provider, package installs to the root's
// package manager, and tar steps to the fetcher. Steps within one container
// never reorder or run speculatively; each may depend on the filesystem
// state left by its predecessor.
//
// Example usage:
//
//	planner := build.New(c, fetcher, provider)
//
//	img, err := planner.EnsureImage(ctx, container)
//	if err != nil {
//	    return err
//	}
package build
