// Package bootstrap materializes minimal base filesystems for build roots.
//
// The bootstrap service is modeled as a [Provider] so the build planner does
// not care where base filesystems come from. The registry provider resolves
// a distribution/release pair to a container image reference, pulls it for
// the host platform, and flattens its layers oldest-first into the build
// root, honoring OCI whiteouts. Transient registry faults are retried with
// bounded backoff; a cancelled pull leaves only staging state behind, which
// the cache reclaims.
package bootstrap
