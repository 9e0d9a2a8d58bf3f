package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/kilnhq/kiln/internal"
)

const (

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644

	// Name of the manifest file looked up in the working directory.
	ManifestFilename = internal.Name + ".yaml"
)

// Path to the persistent cache directory holding committed images, staged
// build roots, verified downloads, and the cache index. The layout under it
// is owned by internal/cache.
//
//	Linux:   $XDG_CACHE_HOME/kiln or ~/.cache/kiln
//	macOS:   ~/Library/Caches/kiln
func Cache() string {
	return filepath.Join(xdg.CacheHome, internal.Name)
}

// Default path to the manifest, resolved in the current working directory.
func Manifest() string {
	return ManifestFilename
}
