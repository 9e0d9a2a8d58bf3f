// Package cache manages the persistent store of built images.
//
// The cache directory is the one shared mutable resource surviving across
// invocations. Committed images live under images/, keyed by the container
// fingerprint; an SQLite index maps fingerprints to image rows. In-progress
// build roots live under staging/ and become visible only through an atomic
// rename into images/ followed by an index insert, so no reader ever
// observes a fingerprint mapped to a half-written image. Staging roots left
// behind by interrupted builds are garbage and are reclaimed
// opportunistically.
//
// Access is arbitrated per fingerprint: a named in-process mutex plus a
// flock(2) lock file serialize builds of the same fingerprint within and
// across engine processes. Builds of different fingerprints proceed
// concurrently.
//
// The cache has an explicit lifecycle: open it at engine start, close it at
// exit.
//
// Example usage:
//
//	c, err := cache.Open(paths.Cache())
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	release, err := c.LockFingerprint(ctx, fp)
//	if err != nil {
//	    return err
//	}
//	defer release()
//
//	img, err := c.Lookup(ctx, fp)
package cache
