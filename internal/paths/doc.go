// Package paths centralizes filesystem locations used by kiln.
//
// All persistent state lives under a single XDG cache directory. The cache
// holds committed build images keyed by container fingerprint, staged build
// roots for in-progress builds, verified tarball downloads, per-fingerprint
// lock files, and the SQLite index mapping fingerprints to images.
package paths
