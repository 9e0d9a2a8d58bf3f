// Package fetch downloads tarballs, verifies their checksums, and extracts
// them with destination-path scoping.
//
// Downloads stream through a digest verifier into the downloads directory.
// A verified artifact is committed under its digest via an atomic rename,
// so re-fetching the same content is a no-op and a partially written file
// is never visible under a verified name. A checksum mismatch discards the
// download and fails with an [IntegrityError]; the artifact is never
// installed. Transient network failures are retried with bounded
// exponential backoff; integrity failures are not.
//
// Extraction rejects any archive entry that would resolve outside the
// destination root, including entries reached through symlinks planted by
// earlier entries. [ApplyLayer] additionally understands OCI whiteout
// entries, for unpacking image layers on top of each other.
//
// Example usage:
//
//	f := fetch.New(c.Downloads())
//
//	path, err := f.Fetch(ctx, url, expected)
//	if err != nil {
//	    return err
//	}
//
//	if err := f.Extract(path, root); err != nil {
//	    return err
//	}
package fetch
