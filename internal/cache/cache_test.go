package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func stageWithFile(t *testing.T, c *Cache, fp digest.Digest) string {
	t.Helper()
	staged, err := c.Stage(fp)
	if err != nil {
		t.Fatalf("staging: %v", err)
	}
	if err := os.WriteFile(filepath.Join(staged, "marker"), []byte("built"), 0644); err != nil {
		t.Fatalf("writing marker: %v", err)
	}
	return staged
}

func TestLookupMiss(t *testing.T) {
	c := openTestCache(t)

	img, err := c.Lookup(context.Background(), digest.FromString("nope"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img != nil {
		t.Fatalf("img = %+v, want nil", img)
	}
}

func TestCommitAndLookup(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	fp := digest.FromString("container-def")

	staged := stageWithFile(t, c, fp)

	img, err := c.Commit(ctx, fp, "ubuntu", staged)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if img.Container != "ubuntu" {
		t.Fatalf("container = %q, want ubuntu", img.Container)
	}

	// The staging root has moved.
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Fatal("staging root still exists after commit")
	}
	if _, err := os.Stat(filepath.Join(img.Path, "marker")); err != nil {
		t.Fatalf("committed content missing: %v", err)
	}

	found, err := c.Lookup(ctx, fp)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found == nil {
		t.Fatal("lookup missed a committed image")
	}
	if found.Path != img.Path {
		t.Fatalf("path = %q, want %q", found.Path, img.Path)
	}
}

func TestCommitAdoptsExistingImage(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	fp := digest.FromString("racing")

	first := stageWithFile(t, c, fp)
	if _, err := c.Commit(ctx, fp, "ubuntu", first); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	second := stageWithFile(t, c, fp)
	img, err := c.Commit(ctx, fp, "ubuntu", second)
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}

	if _, err := os.Stat(second); !os.IsNotExist(err) {
		t.Fatal("losing staging root was not discarded")
	}
	if _, err := os.Stat(filepath.Join(img.Path, "marker")); err != nil {
		t.Fatalf("adopted image content missing: %v", err)
	}
}

func TestReplaceDisplacesCommittedImage(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	fp := digest.FromString("replaced")

	staged := stageWithFile(t, c, fp)
	if _, err := c.Commit(ctx, fp, "ubuntu", staged); err != nil {
		t.Fatalf("commit: %v", err)
	}

	second, err := c.Stage(fp)
	if err != nil {
		t.Fatalf("staging: %v", err)
	}
	if err := os.WriteFile(filepath.Join(second, "marker"), []byte("rebuilt"), 0644); err != nil {
		t.Fatalf("writing marker: %v", err)
	}

	img, err := c.Replace(ctx, fp, "ubuntu", second)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(img.Path, "marker"))
	if err != nil {
		t.Fatalf("reading marker: %v", err)
	}
	if string(data) != "rebuilt" {
		t.Fatalf("marker = %q, want %q (old image not displaced)", data, "rebuilt")
	}
}

func TestLookupDropsRowForMissingDirectory(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	fp := digest.FromString("vanishing")

	staged := stageWithFile(t, c, fp)
	img, err := c.Commit(ctx, fp, "ubuntu", staged)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := os.RemoveAll(img.Path); err != nil {
		t.Fatalf("removing image dir: %v", err)
	}

	found, err := c.Lookup(ctx, fp)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found != nil {
		t.Fatal("lookup returned an image whose directory is gone")
	}
}

func TestDiscard(t *testing.T) {
	c := openTestCache(t)
	fp := digest.FromString("abandoned")

	staged := stageWithFile(t, c, fp)
	c.Discard(staged)

	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Fatal("staging root still exists after discard")
	}
}

func TestReclaim(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	// An interrupted build leaves a staging root behind.
	stageWithFile(t, c, digest.FromString("interrupted"))

	// A committed image whose directory vanished leaves a stale row.
	fp := digest.FromString("stale-row")
	staged := stageWithFile(t, c, fp)
	img, err := c.Commit(ctx, fp, "ubuntu", staged)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := os.RemoveAll(img.Path); err != nil {
		t.Fatalf("removing image dir: %v", err)
	}

	removed, err := c.Reclaim(ctx)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	images, err := c.Images(ctx)
	if err != nil {
		t.Fatalf("images: %v", err)
	}
	if len(images) != 0 {
		t.Fatalf("len(images) = %d, want 0", len(images))
	}
}

func TestRemoveAll(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		fp := digest.FromString(name)
		staged := stageWithFile(t, c, fp)
		if _, err := c.Commit(ctx, fp, name, staged); err != nil {
			t.Fatalf("commit %s: %v", name, err)
		}
	}

	removed, err := c.RemoveAll(ctx)
	if err != nil {
		t.Fatalf("remove all: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
}

func TestLockFingerprintSerializes(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	fp := digest.FromString("contended")

	release, err := c.LockFingerprint(ctx, fp)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}

	acquired := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		release2, err := c.LockFingerprint(ctx, fp)
		if err != nil {
			t.Errorf("second lock: %v", err)
			return
		}
		close(acquired)
		release2()
	}()

	// Give the second acquirer time to reach the lock.
	time.Sleep(50 * time.Millisecond)

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first is held")
	default:
	}

	release()
	wg.Wait()

	select {
	case <-acquired:
	default:
		t.Fatal("second lock never acquired after release")
	}
}

func TestLockFingerprintCancelledWhileWaiting(t *testing.T) {
	dir := t.TempDir()
	fp := digest.FromString("abandoned-wait")

	// Two cache handles over one directory contend on the file lock, not
	// the in-process one.
	holder, err := Open(dir)
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	t.Cleanup(func() { holder.Close() })

	waiter, err := Open(dir)
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	t.Cleanup(func() { waiter.Close() })

	release, err := holder.LockFingerprint(context.Background(), fp)
	if err != nil {
		t.Fatalf("holder lock: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		rel, err := waiter.LockFingerprint(ctx, fp)
		if err == nil {
			rel()
		}
		errs <- err
	}()

	// Give the waiter time to block on the file lock, then abandon it.
	time.Sleep(50 * time.Millisecond)
	cancel()

	if err := <-errs; err == nil {
		t.Fatal("cancelled acquisition reported success")
	}

	release()

	// The abandoned waiter must not leave the file locked behind it.
	again, err := waiter.LockFingerprint(context.Background(), fp)
	if err != nil {
		t.Fatalf("lock after cancelled wait: %v", err)
	}
	again()
}
