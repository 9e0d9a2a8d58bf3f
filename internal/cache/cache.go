package cache

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kilnhq/kiln/internal/paths"
	_ "github.com/mattn/go-sqlite3"
	"github.com/moby/locker"
	"github.com/opencontainers/go-digest"
)

//go:embed schema.sql
var schemaFiles embed.FS

// Subdirectories of the cache root.
const (
	imagesDir    = "images"
	stagingDir   = "staging"
	downloadsDir = "downloads"
	locksDir     = "locks"
	indexFile    = "index.db"
)

// A committed, cached build image.
type Image struct {
	Fingerprint digest.Digest // Cache key: digest of the container definition.
	Container   string        // Container name the image was built from.
	Path        string        // Directory holding the image filesystem.
	CreatedAt   time.Time     // When the image was committed.
}

// The persistent image store.
//
// All methods are safe for concurrent use. Mutating access to a single
// fingerprint must be guarded with [Cache.LockFingerprint].
type Cache struct {
	dir   string         // Cache root directory.
	db    *sql.DB        // Index mapping fingerprints to images.
	locks *locker.Locker // In-process per-fingerprint locks.
}

// Opens the cache rooted at dir, creating its layout and index as needed.
func Open(dir string) (*Cache, error) {
	for _, sub := range []string{imagesDir, stagingDir, downloadsDir, locksDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), paths.DefaultDirMode); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCache, err)
		}
	}

	// The busy timeout lets concurrent engine processes queue on the index
	// instead of failing; WAL keeps readers unblocked during commits.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", filepath.Join(dir, indexFile))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCache, err)
	}

	schema, err := schemaFiles.ReadFile("schema.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrCache, err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initializing index: %w", ErrCache, err)
	}

	return &Cache{
		dir:   dir,
		db:    db,
		locks: locker.New(),
	}, nil
}

// Closes the cache index.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Path to the verified downloads directory, shared with the fetcher.
func (c *Cache) Downloads() string {
	return filepath.Join(c.dir, downloadsDir)
}

// Looks up a committed image by fingerprint.
//
// Returns nil without error on a miss. An index row whose directory has
// vanished is dropped and treated as a miss, so the index never reports an
// image that cannot be entered.
func (c *Cache) Lookup(ctx context.Context, fp digest.Digest) (*Image, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT container, path, created_at FROM images WHERE fingerprint = ?`, fp.String())

	img := Image{Fingerprint: fp}
	err := row.Scan(&img.Container, &img.Path, &img.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCache, err)
	}

	if _, err := os.Stat(img.Path); err != nil {
		slog.Warn("dropping index row for missing image", "fingerprint", fp, "path", img.Path)
		c.db.ExecContext(ctx, `DELETE FROM images WHERE fingerprint = ?`, fp.String())
		return nil, nil
	}

	c.db.ExecContext(ctx,
		`UPDATE images SET last_used = CURRENT_TIMESTAMP WHERE fingerprint = ?`, fp.String())

	return &img, nil
}

// Allocates a fresh staging root for a build.
//
// Staging roots live on the same filesystem as images/ so the commit rename
// is atomic.
func (c *Cache) Stage(fp digest.Digest) (string, error) {
	root, err := os.MkdirTemp(filepath.Join(c.dir, stagingDir), fp.Encoded()[:12]+"-*")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCache, err)
	}
	return root, nil
}

// Commits a fully built staging root as the image for a fingerprint.
//
// The root is renamed into images/ first and the index row is inserted
// second, so a crash can at worst leave a committed directory without a
// row; the next Commit for the fingerprint adopts it. The rename is the
// atomicity point: partial build state is never visible under images/.
func (c *Cache) Commit(ctx context.Context, fp digest.Digest, container, staged string) (*Image, error) {
	dest := c.imagePath(fp)

	if _, err := os.Stat(dest); err == nil {
		// Another process committed this fingerprint first; adopt its
		// image and discard ours.
		c.Discard(staged)
	} else {
		if err := os.Rename(staged, dest); err != nil {
			return nil, fmt.Errorf("%w: committing image: %w", ErrCache, err)
		}
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO images (fingerprint, container, path) VALUES (?, ?, ?)
		 ON CONFLICT (fingerprint) DO UPDATE SET last_used = CURRENT_TIMESTAMP`,
		fp.String(), container, dest)
	if err != nil {
		return nil, fmt.Errorf("%w: indexing image: %w", ErrCache, err)
	}

	slog.Debug("image committed", "fingerprint", fp, "container", container)

	return &Image{
		Fingerprint: fp,
		Container:   container,
		Path:        dest,
		CreatedAt:   time.Now(),
	}, nil
}

// Commits a staging root as the image for a fingerprint, displacing any
// committed one.
//
// Used by forced rebuilds: the old image stays in place until the
// replacement is fully built, so a failed rebuild never costs a previously
// good image. Callers hold the fingerprint lock, so no concurrent committer
// can race the displacement.
func (c *Cache) Replace(ctx context.Context, fp digest.Digest, container, staged string) (*Image, error) {
	if err := os.RemoveAll(c.imagePath(fp)); err != nil {
		return nil, fmt.Errorf("%w: displacing image: %w", ErrCache, err)
	}
	return c.Commit(ctx, fp, container, staged)
}

// Removes a staging root that will not be committed.
func (c *Cache) Discard(staged string) {
	if err := os.RemoveAll(staged); err != nil {
		slog.Warn("failed to discard staging root", "path", staged, "error", err)
	}
}

// Removes a committed image and its index row.
func (c *Cache) Remove(ctx context.Context, fp digest.Digest) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM images WHERE fingerprint = ?`, fp.String()); err != nil {
		return fmt.Errorf("%w: %w", ErrCache, err)
	}
	if err := os.RemoveAll(c.imagePath(fp)); err != nil {
		return fmt.Errorf("%w: %w", ErrCache, err)
	}
	return nil
}

// Lists all committed images.
func (c *Cache) Images(ctx context.Context) ([]Image, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT fingerprint, container, path, created_at FROM images ORDER BY container, created_at`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCache, err)
	}
	defer rows.Close()

	var images []Image
	for rows.Next() {
		var img Image
		var fp string
		if err := rows.Scan(&fp, &img.Container, &img.Path, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCache, err)
		}
		img.Fingerprint = digest.Digest(fp)
		images = append(images, img)
	}
	return images, rows.Err()
}

// Reclaims garbage: staging roots from interrupted builds and index rows
// whose image directories have vanished.
//
// Returns the number of items removed. Safe to run while builds are active
// in other processes only insofar as those builds hold their fingerprint
// locks; callers should treat this as a maintenance operation.
func (c *Cache) Reclaim(ctx context.Context) (int, error) {
	removed := 0

	entries, err := os.ReadDir(filepath.Join(c.dir, stagingDir))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCache, err)
	}
	for _, entry := range entries {
		path := filepath.Join(c.dir, stagingDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("%w: %w", ErrCache, err)
		}
		slog.Debug("reclaimed staging root", "path", path)
		removed++
	}

	images, err := c.Images(ctx)
	if err != nil {
		return removed, err
	}
	for _, img := range images {
		if _, err := os.Stat(img.Path); os.IsNotExist(err) {
			if err := c.Remove(ctx, img.Fingerprint); err != nil {
				return removed, err
			}
			removed++
		}
	}

	return removed, nil
}

// Removes all committed images and their index rows.
func (c *Cache) RemoveAll(ctx context.Context) (int, error) {
	images, err := c.Images(ctx)
	if err != nil {
		return 0, err
	}
	for _, img := range images {
		if err := c.Remove(ctx, img.Fingerprint); err != nil {
			return 0, err
		}
	}
	return len(images), nil
}

// Returns the committed location for a fingerprint.
func (c *Cache) imagePath(fp digest.Digest) string {
	return filepath.Join(c.dir, imagesDir, fp.Encoded())
}
