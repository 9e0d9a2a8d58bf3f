package dispatch

import (
	"os"
	"sort"
	"strings"

	"github.com/kilnhq/kiln/internal/manifest"
	"github.com/kilnhq/kiln/internal/runtime"
)

// Computes the environment for a command running in the container.
//
// The host environment never leaks through: the result is the base root
// environment, the host's TERM when set, and the container's declared
// variables, in increasing precedence. The slice is sorted by key so the
// same definition always yields the same environment.
func commandEnviron(ctr *manifest.Container) []string {
	merged := make(map[string]string, len(ctr.Environ)+3)

	for _, entry := range runtime.BaseEnviron() {
		if k, v, ok := strings.Cut(entry, "="); ok {
			merged[k] = v
		}
	}

	if term := os.Getenv("TERM"); term != "" {
		merged["TERM"] = term
	}

	for k, v := range ctr.Environ {
		merged[k] = v
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}
