package cli

import (
	"context"
	"log/slog"

	"github.com/kilnhq/kiln/internal/cache"
	"github.com/kilnhq/kiln/internal/paths"
)

// Represents the 'kiln clean' command.
type CleanCmd struct {
	All bool `help:"Remove every cached image, not just garbage."`
}

// Executes the clean command.
//
// The default pass reclaims staging garbage left by interrupted builds and
// drops index rows whose image directories are gone. With --all the entire
// image cache is removed; the next run rebuilds from scratch. The manifest
// is not needed for either pass.
func (c *CleanCmd) Run(ctx context.Context) error {
	store, err := cache.Open(paths.Cache())
	if err != nil {
		return err
	}
	defer store.Close()

	var removed int
	if c.All {
		removed, err = store.RemoveAll(ctx)
	} else {
		removed, err = store.Reclaim(ctx)
	}
	if err != nil {
		return err
	}

	slog.Info("cache cleaned", "removed", removed, "all", c.All)
	return nil
}
