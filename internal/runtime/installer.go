package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// A supported package manager, detected from the build root's layout.
type packageManager struct {
	name    string   // Human-readable name for logs and errors.
	probe   string   // In-root path whose presence selects this manager.
	update  []string // Optional index-refresh command, run before install.
	install []string // Install command prefix; package names are appended.
	environ []string // Extra environment entries for the manager.
}

var packageManagers = []packageManager{
	{
		name:    "apt",
		probe:   "/usr/bin/apt-get",
		update:  []string{"/usr/bin/apt-get", "update"},
		install: []string{"/usr/bin/apt-get", "install", "-y", "--no-install-recommends"},
		environ: []string{"DEBIAN_FRONTEND=noninteractive"},
	},
	{
		name:    "apk",
		probe:   "/sbin/apk",
		install: []string{"/sbin/apk", "add", "--no-cache"},
	},
	{
		name:    "dnf",
		probe:   "/usr/bin/dnf",
		install: []string{"/usr/bin/dnf", "install", "-y"},
	},
}

// Installs a package set inside the root with its native package manager.
//
// The caller is expected to pass the set pre-sorted; the installer treats
// the list as a set either way, since the underlying manager resolves its
// own dependency order. Fails when the root carries no supported manager,
// which usually means no bootstrap step ran first.
func (r *Root) InstallPackages(ctx context.Context, packages []string) error {
	pm, err := r.detectPackageManager()
	if err != nil {
		return err
	}

	slog.Info("installing packages", "manager", pm.name, "count", len(packages))

	env := mergeEnv(BaseEnviron(), pm.environ)

	if len(pm.update) > 0 {
		if err := r.runInstaller(ctx, pm.name, pm.update, env); err != nil {
			return err
		}
	}

	argv := append(append([]string{}, pm.install...), packages...)
	return r.runInstaller(ctx, pm.name, argv, env)
}

// Runs one package manager command, treating a non-zero exit as an error.
func (r *Root) runInstaller(ctx context.Context, name string, argv, env []string) error {
	result, err := r.Exec(ctx, argv, env, "/")
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: %s exited with code %d: %s", ErrRuntime, name, result.ExitCode, result.Stderr)
	}
	return nil
}

// Picks the package manager present in the root.
func (r *Root) detectPackageManager() (*packageManager, error) {
	for i := range packageManagers {
		pm := &packageManagers[i]
		if _, err := os.Stat(filepath.Join(r.dir, pm.probe)); err == nil {
			return pm, nil
		}
	}
	return nil, ErrNoPackageManager
}
