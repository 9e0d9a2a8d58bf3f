package manifest

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/opencontainers/go-digest"
)

// Computes the container's content fingerprint.
//
// The fingerprint is a digest over a canonical serialization of the
// container's name, its ordered step list, and its environment mapping.
// Fields are written netstring-style (length-prefixed), the step list and
// variable-length package sets carry explicit counts, and every other
// variant has a fixed field count, so no two distinct definitions can
// serialize to the same byte stream. Environment keys and package sets are
// sorted first, making the fingerprint independent of mapping iteration
// order and package author order.
func (c *Container) Fingerprint() digest.Digest {
	digester := digest.Canonical.Digester()
	w := digester.Hash()

	writeField(w, "container")
	writeField(w, c.Name)

	writeField(w, "setup")
	writeCount(w, len(c.Setup))
	for i := range c.Setup {
		c.Setup[i].fingerprint(w)
	}

	keys := make([]string, 0, len(c.Environ))
	for key := range c.Environ {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	writeField(w, "environ")
	for _, key := range keys {
		writeField(w, key)
		writeField(w, c.Environ[key])
	}

	return digester.Digest()
}

// Writes the step's canonical serialization.
func (s *Step) fingerprint(w io.Writer) {
	writeField(w, string(s.Kind))

	switch s.Kind {
	case StepBootstrap:
		writeField(w, s.Bootstrap.Distribution)
		writeField(w, s.Bootstrap.Release)

	case StepInstall:
		pkgs := s.Install.SortedPackages()
		writeCount(w, len(pkgs))
		for _, pkg := range pkgs {
			writeField(w, pkg)
		}

	case StepTarInstall:
		writeField(w, s.TarInstall.URL)
		writeField(w, s.TarInstall.Script)
		writeField(w, s.TarInstall.Checksum)

	case StepTarExtract:
		writeField(w, s.TarExtract.URL)
		writeField(w, s.TarExtract.Checksum)
		writeField(w, s.TarExtract.Path)
	}
}

// Writes a single length-prefixed field.
func writeField(w io.Writer, s string) {
	fmt.Fprintf(w, "%d:%s,", len(s), s)
}

// Writes an element count as a field.
func writeCount(w io.Writer, n int) {
	writeField(w, strconv.Itoa(n))
}
