// Package manifest loads and validates kiln manifests.
//
// A manifest declares two top-level mappings: containers and commands. A
// container is an ordered list of setup steps plus an environment mapping;
// a command names a container, an argv to run inside it, and optionally a
// symlink alias. Steps form a closed set of variants (OS bootstrap, package
// install, tar install, tar extract) and are decoded into a tagged struct so
// step handling stays exhaustive.
//
// Validation is exhaustive at load time: duplicate names, dangling container
// references, malformed steps, and alias collisions are all rejected before
// any build is attempted. A manifest that loads successfully cannot fail a
// build for structural reasons, only environmental ones.
//
// Example usage:
//
//	m, err := manifest.Load("kiln.yaml")
//	if err != nil {
//	    return err
//	}
//
//	ctr := m.Containers["ubuntu"]
//	fmt.Println(ctr.Fingerprint())
package manifest
