package cli

import (
	"github.com/kilnhq/kiln/internal/bootstrap"
	"github.com/kilnhq/kiln/internal/build"
	"github.com/kilnhq/kiln/internal/cache"
	"github.com/kilnhq/kiln/internal/dispatch"
	"github.com/kilnhq/kiln/internal/fetch"
	"github.com/kilnhq/kiln/internal/manifest"
	"github.com/kilnhq/kiln/internal/paths"
)

// Bundles the loaded manifest with the services built from it.
type engine struct {
	manifest   *manifest.Manifest
	cache      *cache.Cache
	planner    *build.Planner
	dispatcher *dispatch.Dispatcher
}

// Loads the manifest and wires the cache, planner, and dispatcher.
func newEngine() (*engine, error) {
	m, err := manifest.Load(manifestPath())
	if err != nil {
		return nil, err
	}

	c, err := cache.Open(paths.Cache())
	if err != nil {
		return nil, err
	}

	fetcher := fetch.New(c.Downloads())
	provider := bootstrap.NewRegistryProvider(m.Settings.BootstrapRegistry)
	planner := build.New(c, fetcher, provider)

	return &engine{
		manifest:   m,
		cache:      c,
		planner:    planner,
		dispatcher: dispatch.New(m, planner, dispatch.ChrootRunner{}),
	}, nil
}

func (e *engine) Close() error {
	return e.cache.Close()
}

// Path to the manifest, honoring the --file override.
func manifestPath() string {
	if RootCmd.File != "" {
		return RootCmd.File
	}
	return paths.Manifest()
}
