package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/kilnhq/kiln/internal/paths"
	"github.com/opencontainers/go-digest"
)

// Acquires the build lock for a fingerprint.
//
// Two layers serialize builds of the same fingerprint: a named in-process
// mutex, and a flock(2) on a per-fingerprint lock file for engine processes
// sharing the cache. At most one build for a given fingerprint is in flight
// anywhere; concurrent requests queue here instead of duplicating work.
// Builds of different fingerprints do not contend.
//
// The returned release function must be called exactly once. Cancelling ctx
// while waiting abandons the acquisition.
func (c *Cache) LockFingerprint(ctx context.Context, fp digest.Digest) (func(), error) {
	key := fp.String()
	c.locks.Lock(key)

	fh, err := os.OpenFile(c.lockPath(fp), os.O_CREATE|os.O_RDWR, paths.DefaultFileMode)
	if err != nil {
		c.locks.Unlock(key)
		return nil, fmt.Errorf("%w: %w", ErrCache, err)
	}

	if err := flock(ctx, fh); err != nil {
		fh.Close()
		c.locks.Unlock(key)
		return nil, err
	}

	release := func() {
		syscall.Flock(int(fh.Fd()), syscall.LOCK_UN)
		fh.Close()
		c.locks.Unlock(key)
	}
	return release, nil
}

// Acquires an exclusive flock on the file, honoring context cancellation.
//
// flock(2) has no deadline form, so the blocking call runs in a goroutine.
// It operates on a private dup of the descriptor: closing fh after an
// abandoned acquisition cannot free the dup's fd number, so the blocked
// syscall never acts on an unrelated descriptor that reuses it. The dup
// shares fh's open file description, so a lock taken through it is held by
// fh and survives the dup's close.
func flock(ctx context.Context, fh *os.File) error {
	fd, err := syscall.Dup(int(fh.Fd()))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCache, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- syscall.Flock(fd, syscall.LOCK_EX)
	}()

	select {
	case err := <-done:
		syscall.Close(fd)
		if err != nil {
			return fmt.Errorf("%w: acquiring file lock: %w", ErrCache, err)
		}
		return nil
	case <-ctx.Done():
		go func() {
			// The abandoned acquisition may still succeed later; release
			// the lock it took before dropping the dup.
			if <-done == nil {
				syscall.Flock(fd, syscall.LOCK_UN)
			}
			syscall.Close(fd)
		}()
		return fmt.Errorf("%w: %w", ErrCache, ctx.Err())
	}
}

// Returns the lock file path for a fingerprint.
func (c *Cache) lockPath(fp digest.Digest) string {
	return filepath.Join(c.dir, locksDir, fp.Encoded()+".lock")
}
